package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayCounter_OrderedBucketsByDay(t *testing.T) {
	dc := NewDayCounter()
	day1 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	dc.Incr(day1, "items", 3)
	dc.Incr(day2, "items", 5)
	dc.Incr(day1, "items", 1)

	ordered := dc.Ordered()
	require.Len(t, ordered, 2)
	assert.Equal(t, "2026-01-01", ordered[0].Day)
	assert.Equal(t, 5, ordered[0].Counts["items"])
	assert.Equal(t, "2026-01-02", ordered[1].Day)
	assert.Equal(t, 4, ordered[1].Counts["items"])
}

func TestHarvestResult_SnapshotRoundTrip(t *testing.T) {
	hr := NewHarvestResult()
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hr.Started = &started
	hr.Warcs = []string{"a.warc.gz"}
	hr.WarcBytes = 1024
	hr.IncrHarvestCounter("items", 10)
	hr.Info("STARTED", "harvest started", nil)

	snap := hr.Snapshot()

	restored := NewHarvestResult()
	restored.RestoreSnapshot(snap)

	assert.Equal(t, hr.Warcs, restored.Warcs)
	assert.Equal(t, hr.WarcBytes, restored.WarcBytes)
	assert.Equal(t, hr.Started.Unix(), restored.Started.Unix())
	require.Len(t, restored.Infos, 1)
	assert.Equal(t, "STARTED", restored.Infos[0].Code)
	assert.Equal(t, hr.Stats.Ordered(), restored.Stats.Ordered())
}

func TestMsg_ToMapFoldsExtras(t *testing.T) {
	m := NewMsg("CODE", "message", map[string]interface{}{"path": "/tmp/x"})
	asMap := m.ToMap()
	assert.Equal(t, "CODE", asMap["code"])
	assert.Equal(t, "message", asMap["message"])
	assert.Equal(t, "/tmp/x", asMap["path"])
}
