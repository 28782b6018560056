package stepup

import (
	"time"

	"github.com/idforge/stepup/password"
)

// Engine is the account lifecycle and step-up evaluator. It owns no
// persistence: accounts, devices, and password history live behind the
// adapter interfaces, while ephemeral state (code throttling, verify attempt
// counting) lives in Redis.
//
// Engine instances are intended to be configured during initialization and
// then treated as immutable.
type Engine struct {
	config        Config
	directory     UserDirectory
	devices       DeviceStore
	history       PasswordHistoryStore
	senders       map[DeliveryChannel]CodeSender
	throttle      *throttleStore
	verifyLimiter *verifyLimiter
	hasher        *password.Hasher
	otp           *codeGenerator
	audit         *auditDispatcher
	metrics       *Metrics
	messages      *MessageCatalog

	// now is the engine clock, replaceable in tests.
	now func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the live metrics collector for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Describe resolves an error code through the configured message catalog.
func (e *Engine) Describe(code ErrorCode) string {
	if e == nil {
		return defaultMessage(code)
	}
	return e.messages.Describe(code)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ruleErr(code ErrorCode) error {
	return e.messages.ruleError(code)
}

func (e *Engine) clock() time.Time {
	if e == nil || e.now == nil {
		return time.Now().UTC()
	}
	return e.now()
}

func (e *Engine) ready() bool {
	return e != nil && e.directory != nil
}
