package ipcbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordCallAccumulatesCountsAndLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordCall(1, 1, 5_000, true)
	m.RecordCall(1, 2, 50_000, true)
	m.RecordCall(1, 3, 500_000, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.Calls)
	assert.Equal(t, uint64(1), snap.CallErrors)
	assert.InDelta(t, 33.33, snap.ErrorRate, 0.1)
	assert.NotZero(t, snap.AvgLatencyNs)
}

func TestSnapshotWithNoCallsIsZeroValued(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()

	assert.Zero(t, snap.Calls)
	assert.Zero(t, snap.CallErrors)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.AvgLatencyNs)
}

func TestLatencyHistogramBucketsAreCumulative(t *testing.T) {
	m := NewMetrics()
	m.RecordCall(1, 1, 500, false)    // falls in every bucket
	m.RecordCall(1, 1, 50_000, false) // falls in buckets >= 100us

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.LatencyHistogram[0]) // 1us bucket: only the 500ns sample
	assert.Equal(t, uint64(2), snap.LatencyHistogram[2]) // 100us bucket: both samples
}

func TestReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCall(1, 1, 1_000, true)
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.Calls)
	assert.Zero(t, m.OpCount.Load())
}

func TestMetricsObserverFeedsMetrics(t *testing.T) {
	m := NewMetrics()
	obs := m.asObserver(nil)

	obs.ObserveCall(1, 1, 1_000, 0)
	obs.ObserveCall(1, 1, 1_000, -1)
	obs.ObservePendingCalls(3)
	obs.ObserveHeartbeatMiss(7)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Calls)
	assert.Equal(t, uint64(1), snap.CallErrors)
	assert.Equal(t, uint64(3), snap.PendingCalls)
	assert.Equal(t, uint64(1), snap.HeartbeatMisses)
}
