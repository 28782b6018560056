package stepup

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricEvaluate counts sign-in state evaluations.
	MetricEvaluate MetricID = iota
	// MetricEmailConfirmed counts successful email confirmations.
	MetricEmailConfirmed
	// MetricPhoneConfirmed counts successful phone confirmations.
	MetricPhoneConfirmed
	// MetricPasswordChanged counts accepted password changes.
	MetricPasswordChanged
	// MetricPasswordReuseRejected counts changes rejected by password history.
	MetricPasswordReuseRejected
	// MetricPasswordMismatch counts changes rejected on the current password check.
	MetricPasswordMismatch
	// MetricDeviceRegistered counts accepted device registrations.
	MetricDeviceRegistered
	// MetricDeviceRejected counts registrations refused by the device limit.
	MetricDeviceRejected
	// MetricDeviceRemoved counts device removals.
	MetricDeviceRemoved
	// MetricDeviceTrustExtended counts sliding trust-window extensions.
	MetricDeviceTrustExtended
	// MetricCodeSent counts dispatched one-time codes.
	MetricCodeSent
	// MetricCodeThrottled counts sends refused by the anti-replay throttle.
	MetricCodeThrottled
	// MetricCodeVerified counts successful code verifications.
	MetricCodeVerified
	// MetricCodeVerifyFailed counts failed code verifications.
	MetricCodeVerifyFailed
	// MetricCodeVerifyRateLimited counts verifications refused by the attempt limiter.
	MetricCodeVerifyRateLimited
	// MetricMFAEnrolled counts completed MFA enrollments.
	MetricMFAEnrolled
	// MetricMFAVerified counts completed step-up MFA verifications.
	MetricMFAVerified
	// MetricMFAFailed counts failed step-up MFA verifications.
	MetricMFAFailed
	// MetricStepTokenIssued counts issued step tokens.
	MetricStepTokenIssued
	// MetricEvaluateLatency is the state-evaluation latency histogram.
	MetricEvaluateLatency
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

// Metrics holds the engine's in-process counters. Counters are padded to
// cache-line size so hot increments on different IDs do not false-share.
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

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEvaluateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEvaluateLatency].buckets[i])
		}
		s.Histograms[MetricEvaluateLatency] = buckets
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
