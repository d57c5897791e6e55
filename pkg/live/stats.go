package live

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

type stats struct {
	registry        metrics.Registry
	sent            metrics.Counter
	received        metrics.Counter
	unmatched       metrics.Counter
	dispatchErrors  metrics.Counter
	reconnects      metrics.Counter
	subscribeFailed metrics.Counter
	subscribeTime   metrics.Histogram
	listeners       metrics.Gauge
}

func newStats(r metrics.Registry) *stats {
	return &stats{
		registry:        r,
		sent:            metrics.NewRegisteredCounter("frames.sent", r),
		received:        metrics.NewRegisteredCounter("frames.received", r),
		unmatched:       metrics.NewRegisteredCounter("dispatch.unmatched", r),
		dispatchErrors:  metrics.NewRegisteredCounter("dispatch.errors", r),
		reconnects:      metrics.NewRegisteredCounter("reconnects", r),
		subscribeFailed: metrics.NewRegisteredCounter("subscribe.failures", r),
		// Nanoseconds. A metrics.Timer would start the global meter ticker.
		subscribeTime: metrics.NewRegisteredHistogram("subscribe.latency", r, metrics.NewExpDecaySample(1028, 0.015)),
		listeners:     metrics.NewRegisteredGauge("listeners", r),
	}
}

// Stats is a snapshot of a Manager's counters.
type Stats struct {
	FramesSent        int64
	FramesReceived    int64
	Unmatched         int64
	DispatchErrors    int64
	Reconnects        int64
	SubscribeFailures int64
	Subscribes        int64
	SubscribeP50      time.Duration
	SubscribeP99      time.Duration
	Listeners         int64
}

// Stats snapshots the manager metrics.
func (m *Manager) Stats() Stats {
	s := m.stats
	latency := s.subscribeTime.Snapshot()
	return Stats{
		FramesSent:        s.sent.Count(),
		FramesReceived:    s.received.Count(),
		Unmatched:         s.unmatched.Count(),
		DispatchErrors:    s.dispatchErrors.Count(),
		Reconnects:        s.reconnects.Count(),
		SubscribeFailures: s.subscribeFailed.Count(),
		Subscribes:        latency.Count(),
		SubscribeP50:      time.Duration(latency.Percentile(0.5)),
		SubscribeP99:      time.Duration(latency.Percentile(0.99)),
		Listeners:         int64(m.registry.Len()),
	}
}

// Metrics exposes the underlying registry, e.g. for metrics.WriteOnce.
func (m *Manager) Metrics() metrics.Registry {
	return m.stats.registry
}
