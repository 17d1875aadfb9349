package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatHighlightsMatchedWords(t *testing.T) {
	opts := DefaultFormatOptions()
	matchWords := map[string]struct{}{"fox": {}}

	out, positions := Format("the quick brown fox jumps", testQuerySettings(), matchWords, opts, false, true)

	assert.Equal(t, "the quick brown <em>fox</em> jumps", out)
	assert.Len(t, positions, 1)
}

func TestFormatCropsAroundMatch(t *testing.T) {
	opts := DefaultFormatOptions()
	opts.CropLength = 2
	matchWords := map[string]struct{}{"fox": {}}

	out, _ := Format("the quick brown fox jumps over the lazy dog", testQuerySettings(), matchWords, opts, true, false)

	assert.Contains(t, out, "fox")
	assert.Contains(t, out, opts.CropMarker)
}

func TestFormatNoMatchReturnsTextUnchangedWhenNotCropping(t *testing.T) {
	opts := DefaultFormatOptions()
	out, positions := Format("nothing matches here", testQuerySettings(), map[string]struct{}{}, opts, false, true)

	assert.Equal(t, "nothing matches here", out)
	assert.Empty(t, positions)
}
