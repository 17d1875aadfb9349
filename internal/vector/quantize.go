package vector

import (
	"math"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/errors"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// QuantizedIndex is an ANN-less linear scan over binary-quantized vectors,
// used once an embedder's binaryQuantized setting is enabled (spec §4.6).
// coder/hnsw has no native bit-vector mode, so quantized search falls back
// to a brute-force Hamming scan — acceptable because quantized vectors are
// an explicit size/speed tradeoff the operator opted into, not the default
// path.
type QuantizedIndex struct {
	dimensions int
}

// NewQuantizedIndex builds a scanner for vectors of the given dimension.
func NewQuantizedIndex(dimensions int) *QuantizedIndex {
	return &QuantizedIndex{dimensions: dimensions}
}

// QuantizeDisableError reports that an embedder already has quantized
// vectors on disk, so binaryQuantized cannot be turned back off (spec
// §4.6 "disabling it fails with CannotDisableBinaryQuantization").
func QuantizeDisableError(embedderName string) error {
	return errors.New(errors.CodeCannotDisableBinaryQuantize,
		"embedder \""+embedderName+"\" already has binary-quantized vectors stored; quantization cannot be disabled", nil)
}

// Search scans every stored quantized vector under v, ranking by Hamming
// distance converted to a [0,1] score (fewer differing bits is closer).
func (q *QuantizedIndex) Search(tx *bbolt.Tx, v store.EmbedderVectors, query []float32, k int) ([]ANNResult, error) {
	packedQuery := codec.EncodeQuantizedVector(query)
	bitLen := q.dimensions

	var results []ANNResult
	err := v.ForEach(tx, func(docid uint32, data []byte) error {
		dist := codec.HammingDistance(packedQuery, data)
		results = append(results, ANNResult{
			Docid:    docid,
			Distance: float32(dist),
			Score:    hammingToScore(dist, bitLen),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Partial selection sort for the top k; quantized collections are
	// expected to be small enough that a full sort is unnecessary overhead.
	for i := 0; i < len(results) && i < k; i++ {
		best := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[best].Score {
				best = j
			}
		}
		results[i], results[best] = results[best], results[i]
	}
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func hammingToScore(dist, bitLen int) float32 {
	if bitLen == 0 {
		return 0
	}
	return float32(1 - math.Min(1, float64(dist)/float64(bitLen)))
}
