package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWARCProcessedIncr_AdvancesShadowCounter(t *testing.T) {
	before := warcsProcessedValue()
	WARCProcessedIncr()
	assert.Equal(t, before+1, warcsProcessedValue())
}

func TestItemExportedIncr_AdvancesItemRate(t *testing.T) {
	before := ItemRate()
	ItemExportedIncr()
	assert.GreaterOrEqual(t, ItemRate(), before+1)
}

func TestHarvestRunningIncrDecr_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		HarvestRunningIncr()
		HarvestRunningDecr()
	})
}
