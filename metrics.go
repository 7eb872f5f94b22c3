package ipcbridge

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kestrelio/ipcbridge/internal/interfaces"
	"github.com/kestrelio/ipcbridge/internal/telemetry"
)

// LatencyBuckets defines the call-latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks call-level statistics for one Host or Client instance.
// This feeds (and is independent of) the Prometheus collectors in
// internal/telemetry — Metrics is a cheap in-process snapshot a caller can
// read without scraping.
type Metrics struct {
	Calls           atomic.Uint64 // Total proxy/stub calls dispatched
	CallErrors      atomic.Uint64 // Calls that returned a non-zero error_code
	PendingCalls    atomic.Uint64 // Current run-loop outstanding call count
	HeartbeatMisses atomic.Uint64 // Heartbeat timeouts observed

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano, zero while running
}

// NewMetrics creates a fresh Metrics instance with its start time stamped.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCall records one dispatched call. interfaceID/methodID are
// accepted for symmetry with the Prometheus collectors' per-method labels
// but are not broken out in this in-process snapshot.
func (m *Metrics) RecordCall(interfaceID, methodID uint32, latencyNs uint64, success bool) {
	_ = interfaceID
	_ = methodID
	m.Calls.Add(1)
	if !success {
		m.CallErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the instance as stopped, fixing UptimeNs in future snapshots.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time read of Metrics with derived
// statistics computed.
type MetricsSnapshot struct {
	Calls      uint64
	CallErrors uint64
	ErrorRate  float64 // Percentage of calls that errored

	AvgLatencyNs  uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	CallsPerSecond  float64
	PendingCalls    uint64
	HeartbeatMisses uint64
	UptimeNs        uint64
}

// Snapshot computes a MetricsSnapshot from the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Calls:           m.Calls.Load(),
		CallErrors:      m.CallErrors.Load(),
		PendingCalls:    m.PendingCalls.Load(),
		HeartbeatMisses: m.HeartbeatMisses.Load(),
	}

	if snap.Calls > 0 {
		snap.ErrorRate = float64(snap.CallErrors) / float64(snap.Calls) * 100.0
	}

	opCount := m.OpCount.Load()
	totalLatencyNs := m.TotalLatencyNs.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.CallsPerSecond = float64(snap.Calls) / uptimeSeconds
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter and restamps the start time. Useful in tests.
func (m *Metrics) Reset() {
	m.Calls.Store(0)
	m.CallErrors.Store(0)
	m.PendingCalls.Store(0)
	m.HeartbeatMisses.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// metricsObserver adapts Metrics to interfaces.Observer so it can be
// installed directly on a runloop.RunLoop via SetObserver. When collectors
// is non-nil, pending-call and heartbeat-miss observations are also pushed
// onto the matching Prometheus gauge/counter so a scraper sees the same
// numbers this in-process snapshot does. ObserveCall updates only the
// in-process snapshot; the call-latency histogram is fed by
// Host.dispatchRequest.
type metricsObserver struct {
	m          *Metrics
	collectors *telemetry.Collectors
}

func (m *Metrics) asObserver(collectors *telemetry.Collectors) interfaces.Observer {
	return metricsObserver{m: m, collectors: collectors}
}

func (o metricsObserver) ObserveCall(interfaceID, methodID uint32, latencyNs uint64, errorCode int32) {
	o.m.RecordCall(interfaceID, methodID, latencyNs, errorCode == 0)
}

func (o metricsObserver) ObservePendingCalls(n int) {
	o.m.PendingCalls.Store(uint64(n))
	if o.collectors != nil {
		o.collectors.PendingCalls.Set(float64(n))
	}
}

func (o metricsObserver) ObserveHeartbeatMiss(sessionID uint16) {
	o.m.HeartbeatMisses.Add(1)
	if o.collectors != nil {
		o.collectors.HeartbeatMisses.WithLabelValues(strconv.FormatUint(uint64(sessionID), 10)).Inc()
	}
}

var _ interfaces.Observer = metricsObserver{}
