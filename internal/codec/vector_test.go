package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVectorRoundTrips(t *testing.T) {
	v := []float32{0.5, -1.25, 3, 0, -0.001}
	data := EncodeVector(v)
	got, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDecodeVectorRejectsMisalignedLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeQuantizedVectorPacksSignBits(t *testing.T) {
	v := []float32{1, -1, 2, -2, 0.5, -0.5, 1, -1, 1}
	packed := EncodeQuantizedVector(v)
	require.Len(t, packed, 2)
	assert.Equal(t, byte(0b01010101), packed[0])
	assert.Equal(t, byte(0b00000001), packed[1])
}

func TestHammingDistanceCountsDifferingBits(t *testing.T) {
	a := []byte{0b1111}
	b := []byte{0b1010}
	assert.Equal(t, 2, HammingDistance(a, b))
	assert.Equal(t, 0, HammingDistance(a, a))
}
