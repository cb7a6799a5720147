package fundauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single client counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful credential exchanges.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed login attempts.
	MetricLoginFailure
	// MetricRenewalIssued counts renewal calls that actually reached the
	// server (single-flight winners).
	MetricRenewalIssued
	// MetricRenewalJoined counts requests whose renewal result was shared
	// with at least one other request in the same flight.
	MetricRenewalJoined
	// MetricRenewalSuccess counts renewals that produced a fresh token.
	MetricRenewalSuccess
	// MetricRenewalFailure counts renewals that ended the session.
	MetricRenewalFailure
	// MetricRequestReplayed counts original requests replayed after a
	// renewal.
	MetricRequestReplayed
	// MetricSessionTerminated counts terminal session events, any reason.
	MetricSessionTerminated
	// MetricUserDeleted counts terminations caused by a deleted principal.
	MetricUserDeleted
	// MetricIdleTimeout counts idle-monitor expirations.
	MetricIdleTimeout
	// MetricLogout counts caller-initiated logouts.
	MetricLogout
	// MetricPasswordChangeSuccess counts successful password rotations.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeFailure counts failed password rotations.
	MetricPasswordChangeFailure
	// MetricRequestLatency is the request round-trip latency histogram.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size set of atomic counters plus one request-latency
// histogram. Disabled metrics cost a single branch per call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a metrics set honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a request round-trip duration.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
