package indexer

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// MinPrefixLength is the shortest prefix the word-prefix FST indexes (spec
// §4.3.2 step 6 "word_prefixes_fst, built from prefixes of length >= 1 up to
// a configured maximum").
const MinPrefixLength = 1

// MaxPrefixLength bounds how long a prefix can be before it stops being
// worth precomputing a dedicated postings entry for.
const MaxPrefixLength = 4

// FSTMaintainer rebuilds the words FST and the word-prefixes FST from the
// current word_docids/word_prefix_docids key sets after a commit (spec
// §4.3.2 step 6 "FST maintenance"). Like the docid bimap in C2, vellum's FST
// builder is append-only, so maintenance here means collecting the full
// current key set and rebuilding the FST wholesale rather than patching it
// incrementally.
type FSTMaintainer struct {
	env *store.Environment
}

// NewFSTMaintainer builds a maintainer bound to env.
func NewFSTMaintainer(env *store.Environment) *FSTMaintainer {
	return &FSTMaintainer{env: env}
}

// Rebuild walks every key currently present in word_docids, builds the words
// FST, recomputes prefix postings for prefixes in [MinPrefixLength,
// MaxPrefixLength] of the words the commit added or removed (prefixes of
// untouched words keep their stored postings), and builds the word-prefixes
// FST. It
// writes both FSTs plus the prefix postings in one transaction.
func (m *FSTMaintainer) Rebuild(result *CommitResult) error {
	return m.env.Update(func(tx *bbolt.Tx) error {
		words, err := collectKeys(tx, "word_docids")
		if err != nil {
			return err
		}

		wordsFST, err := buildKeyFST(words)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte("main")).Put([]byte("words_fst"), wordsFST); err != nil {
			return err
		}

		if err := rebuildPrefixPostings(tx, result); err != nil {
			return err
		}

		prefixes, err := collectKeys(tx, "word_prefix_docids")
		if err != nil {
			return err
		}
		prefixesFST, err := buildKeyFST(prefixes)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte("main")).Put([]byte("word_prefixes_fst"), prefixesFST)
	})
}

func collectKeys(tx *bbolt.Tx, bucket string) ([]string, error) {
	var keys []string
	c := tx.Bucket([]byte(bucket)).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys, nil
}

func buildKeyFST(keys []string) ([]byte, error) {
	sort.Strings(keys)
	var buf strings.Builder
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := builder.Insert([]byte(k), 0); err != nil {
			return nil, err
		}
	}
	if err := builder.Close(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// rebuildPrefixPostings recomputes word_prefix_docids as the union of
// word_docids postings for every word sharing that prefix, restricted to
// words touched by this commit (spec §4.3.2 step 6 "prefix postings
// recomputed for affected prefixes only").
func rebuildPrefixPostings(tx *bbolt.Tx, result *CommitResult) error {
	affectedPrefixes := map[string]struct{}{}
	for w := range result.ModifiedWords {
		addAffectedPrefixes(affectedPrefixes, w)
	}
	for w := range result.DeletedWords {
		addAffectedPrefixes(affectedPrefixes, w)
	}
	if len(affectedPrefixes) == 0 {
		return nil
	}

	wordBucket := tx.Bucket([]byte("word_docids"))
	prefixBucket := tx.Bucket([]byte("word_prefix_docids"))

	for prefix := range affectedPrefixes {
		union := roaring.New()
		empty := true
		c := wordBucket.Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			bm, err := codec.DecodePostings(v)
			if err != nil {
				return err
			}
			union.Or(bm)
			empty = false
		}

		if empty || union.IsEmpty() {
			if err := prefixBucket.Delete([]byte(prefix)); err != nil {
				return err
			}
			continue
		}
		encoded, err := codec.EncodePostings(union)
		if err != nil {
			return err
		}
		if err := prefixBucket.Put([]byte(prefix), encoded); err != nil {
			return err
		}
	}
	return nil
}

func addAffectedPrefixes(set map[string]struct{}, word string) {
	runes := []rune(word)
	for n := MinPrefixLength; n <= MaxPrefixLength && n <= len(runes); n++ {
		set[string(runes[:n])] = struct{}{}
	}
}
