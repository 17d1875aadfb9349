package store

import (
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
)

// quantizedMarkerKey is a sentinel key inside an embedder's bucket
// recording that vectors under it are stored binary-quantized (spec §4.6
// "once enabled, quantisation is irreversible"). Document docids never
// collide with it because document keys are fixed-width BE u32.
var quantizedMarkerKey = []byte("__quantized__")

// EmbedderVectors exposes the per-embedder vector table named embedders/{name}
// (spec §3.2), one bucket per configured embedder holding each document's
// stored embedding keyed by its internal docid.
type EmbedderVectors struct {
	env  *Environment
	name string
}

// Embedder returns the vector table for the named embedder.
func (e *Environment) Embedder(name string) EmbedderVectors {
	return EmbedderVectors{env: e, name: name}
}

func (v EmbedderVectors) bucketName() []byte {
	return []byte(tableEmbeddersPrefix + v.name)
}

// EnsureBucket creates this embedder's bucket if it does not exist yet,
// called the first time an embedder is configured or a document is written
// under it.
func (v EmbedderVectors) EnsureBucket(tx *bbolt.Tx) error {
	_, err := tx.CreateBucketIfNotExists(v.bucketName())
	return err
}

// Put stores docid's raw (unquantized) embedding.
func (v EmbedderVectors) Put(tx *bbolt.Tx, docid uint32, vec []float32) error {
	b, err := tx.CreateBucketIfNotExists(v.bucketName())
	if err != nil {
		return err
	}
	return b.Put(BEUint32(docid), codec.EncodeVector(vec))
}

// PutQuantized stores docid's embedding already collapsed to its sign-bit
// form and marks the bucket as quantized.
func (v EmbedderVectors) PutQuantized(tx *bbolt.Tx, docid uint32, packed []byte) error {
	b, err := tx.CreateBucketIfNotExists(v.bucketName())
	if err != nil {
		return err
	}
	if err := b.Put(quantizedMarkerKey, []byte{1}); err != nil {
		return err
	}
	return b.Put(BEUint32(docid), packed)
}

// IsQuantized reports whether this embedder's stored vectors are
// binary-quantized, read from the bucket's own marker key rather than
// settings, so the check survives a settings rollback attempt (spec §4.6
// "disabling it fails with CannotDisableBinaryQuantization").
func (v EmbedderVectors) IsQuantized(tx *bbolt.Tx) bool {
	b := tx.Bucket(v.bucketName())
	if b == nil {
		return false
	}
	return b.Get(quantizedMarkerKey) != nil
}

// Get returns docid's raw embedding, or nil if none is stored.
func (v EmbedderVectors) Get(tx *bbolt.Tx, docid uint32) ([]float32, error) {
	b := tx.Bucket(v.bucketName())
	if b == nil {
		return nil, nil
	}
	data := b.Get(BEUint32(docid))
	if data == nil {
		return nil, nil
	}
	return codec.DecodeVector(data)
}

// GetQuantized returns docid's packed sign-bit embedding, or nil if none.
func (v EmbedderVectors) GetQuantized(tx *bbolt.Tx, docid uint32) []byte {
	b := tx.Bucket(v.bucketName())
	if b == nil {
		return nil
	}
	return b.Get(BEUint32(docid))
}

// Delete removes docid's stored embedding, for document deletion/update.
func (v EmbedderVectors) Delete(tx *bbolt.Tx, docid uint32) error {
	b := tx.Bucket(v.bucketName())
	if b == nil {
		return nil
	}
	return b.Delete(BEUint32(docid))
}

// ForEach calls fn with every stored docid and its raw vector bytes
// (still encoded; the caller decides whether to DecodeVector or treat them
// as packed quantized bits), used to rebuild the in-memory ANN graph on
// index open.
func (v EmbedderVectors) ForEach(tx *bbolt.Tx, fn func(docid uint32, data []byte) error) error {
	b := tx.Bucket(v.bucketName())
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, val []byte) error {
		if len(k) != 4 {
			return nil // skip the quantized marker key
		}
		docid := uint32(k[0])<<24 | uint32(k[1])<<16 | uint32(k[2])<<8 | uint32(k[3])
		return fn(docid, val)
	})
}
