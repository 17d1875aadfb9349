package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributionShiftApplyRecentresAroundMean(t *testing.T) {
	shift := DefaultDistributionShift()
	assert.InDelta(t, 0.5, shift.Apply(0.5), 0.0001)
	assert.Greater(t, shift.Apply(0.9), shift.Apply(0.5))
	assert.Less(t, shift.Apply(0.1), shift.Apply(0.5))
}

func TestDistributionShiftApplyClampsToOpenClosedUnitInterval(t *testing.T) {
	shift := DefaultDistributionShift()
	assert.Equal(t, 1.0, shift.Apply(10))
	assert.Greater(t, shift.Apply(-10), 0.0)
}
