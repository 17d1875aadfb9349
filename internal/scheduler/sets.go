package scheduler

import (
	"encoding/binary"
	"sort"

	"go.etcd.io/bbolt"
)

// taskSet maintains a bucket-per-key multimap of string key -> sorted
// uint32 task uids, backing the Indexes/by-status/by-kind reverse indices
// (spec §4.5 "Indexes: task_uid -> index_uid, plus reverse sets per
// status/kind/index"). Each outer bucket holds one nested bucket per key,
// with task uids as keys (empty values) so membership and iteration are
// both native bbolt operations.
type taskSet struct {
	bucketName string
	tx         *bbolt.Tx
}

func indexSet(tx *bbolt.Tx) taskSet  { return taskSet{bucketName: bucketByIndex, tx: tx} }
func statusSet(tx *bbolt.Tx) taskSet { return taskSet{bucketName: bucketByStatus, tx: tx} }
func kindSet(tx *bbolt.Tx) taskSet   { return taskSet{bucketName: bucketByKind, tx: tx} }

func (s taskSet) add(key string, uid uint32) error {
	outer := s.tx.Bucket([]byte(s.bucketName))
	inner, err := outer.CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	return inner.Put(beUint32(uid), nil)
}

func (s taskSet) remove(key string, uid uint32) error {
	outer := s.tx.Bucket([]byte(s.bucketName))
	inner := outer.Bucket([]byte(key))
	if inner == nil {
		return nil
	}
	return inner.Delete(beUint32(uid))
}

// reassign is add/remove combined for the status set, where a task moves
// between exactly one status bucket at a time: it scans every existing
// status bucket for uid and deletes it there before adding it under the
// new status. Status buckets are small enough (five total) that this is
// cheaper than threading the previous status through every call site.
func (s taskSet) reassign(uid uint32, newKey string) error {
	outer := s.tx.Bucket([]byte(s.bucketName))
	c := outer.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			continue // not a nested bucket
		}
		inner := outer.Bucket(k)
		if inner == nil {
			continue
		}
		if inner.Get(beUint32(uid)) != nil || string(k) == newKey {
			_ = inner.Delete(beUint32(uid))
		}
	}
	return s.add(newKey, uid)
}

func (s taskSet) members(key string) ([]uint32, error) {
	outer := s.tx.Bucket([]byte(s.bucketName))
	inner := outer.Bucket([]byte(key))
	if inner == nil {
		return nil, nil
	}
	var uids []uint32
	err := inner.ForEach(func(k, _ []byte) error {
		uids = append(uids, binary.BigEndian.Uint32(k))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}
