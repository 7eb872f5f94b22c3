// Package telemetry exposes Prometheus collectors for call latency,
// pending-call depth, registry/session size, and heartbeat misses — the
// observability layer spec §4.K and §4.I's "observability" notes call for
// without mandating a specific backend.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric ipcbridge components feed. A process
// hosting more than one Host/Client should register one Collectors value
// per instance with a distinct registry, or label calls by session
// externally.
type Collectors struct {
	CallLatency      *prometheus.HistogramVec
	PendingCalls     prometheus.Gauge
	RegistrySize     prometheus.Gauge
	SessionCount     prometheus.Gauge
	ShmPoolUsedBytes prometheus.Gauge
	HeartbeatMisses  *prometheus.CounterVec
	RouteSuccesses   prometheus.Counter
	RouteFailures    prometheus.Counter
}

// NewCollectors builds a fresh Collectors and registers it with reg. Pass
// prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in a long-lived host process.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		CallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ipcbridge_call_latency_seconds",
			Help:    "Latency of proxy calls observed at send_request, labeled by interface/method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"interface_id", "method_id"}),
		PendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipcbridge_run_loop_pending_calls",
			Help: "Current number of outstanding send_request calls awaiting a response.",
		}),
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipcbridge_registry_object_count",
			Help: "Current number of objects published in the remote object registry.",
		}),
		SessionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipcbridge_session_count",
			Help: "Current number of connected peer sessions.",
		}),
		ShmPoolUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipcbridge_shm_pool_used_bytes",
			Help: "Bytes currently allocated from the shared memory pool.",
		}),
		HeartbeatMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcbridge_heartbeat_misses_total",
			Help: "Count of heartbeat timeouts observed per session.",
		}, []string{"session_id"}),
		RouteSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcbridge_router_route_successes_total",
			Help: "Count of forwarding router lookups that found a target.",
		}),
		RouteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcbridge_router_route_failures_total",
			Help: "Count of forwarding router lookups that found no target.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.CallLatency, c.PendingCalls, c.RegistrySize, c.SessionCount,
			c.ShmPoolUsedBytes, c.HeartbeatMisses, c.RouteSuccesses, c.RouteFailures,
		)
	}
	return c
}
