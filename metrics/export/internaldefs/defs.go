package internaldefs

import (
	stepup "github.com/idforge/stepup"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter. Order is the exposition
// order.
var CounterDefs = []CounterDef{
	{ID: stepup.MetricEvaluate, Name: "stepup_evaluate_total", Help: "Sign-in state evaluations."},
	{ID: stepup.MetricEmailConfirmed, Name: "stepup_email_confirmed_total", Help: "Successful email confirmations."},
	{ID: stepup.MetricPhoneConfirmed, Name: "stepup_phone_confirmed_total", Help: "Successful phone confirmations."},
	{ID: stepup.MetricPasswordChanged, Name: "stepup_password_changed_total", Help: "Accepted password changes."},
	{ID: stepup.MetricPasswordReuseRejected, Name: "stepup_password_reuse_rejected_total", Help: "Password changes rejected by history."},
	{ID: stepup.MetricPasswordMismatch, Name: "stepup_password_mismatch_total", Help: "Password changes rejected on the current-password check."},
	{ID: stepup.MetricDeviceRegistered, Name: "stepup_device_registered_total", Help: "Accepted device registrations."},
	{ID: stepup.MetricDeviceRejected, Name: "stepup_device_rejected_total", Help: "Device registrations refused by the limit."},
	{ID: stepup.MetricDeviceRemoved, Name: "stepup_device_removed_total", Help: "Device removals."},
	{ID: stepup.MetricDeviceTrustExtended, Name: "stepup_device_trust_extended_total", Help: "Device trust window extensions."},
	{ID: stepup.MetricCodeSent, Name: "stepup_code_sent_total", Help: "Dispatched one-time codes."},
	{ID: stepup.MetricCodeThrottled, Name: "stepup_code_throttled_total", Help: "Code sends refused by the resend throttle."},
	{ID: stepup.MetricCodeVerified, Name: "stepup_code_verified_total", Help: "Successful code verifications."},
	{ID: stepup.MetricCodeVerifyFailed, Name: "stepup_code_verify_failed_total", Help: "Failed code verifications."},
	{ID: stepup.MetricCodeVerifyRateLimited, Name: "stepup_code_verify_rate_limited_total", Help: "Verifications refused by the attempt limiter."},
	{ID: stepup.MetricMFAEnrolled, Name: "stepup_mfa_enrolled_total", Help: "Completed MFA enrollments."},
	{ID: stepup.MetricMFAVerified, Name: "stepup_mfa_verified_total", Help: "Completed step-up MFA verifications."},
	{ID: stepup.MetricMFAFailed, Name: "stepup_mfa_failed_total", Help: "Failed step-up MFA verifications."},
	{ID: stepup.MetricStepTokenIssued, Name: "stepup_step_token_issued_total", Help: "Issued step tokens."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: stepup.MetricEvaluateLatency, Name: "stepup_evaluate_latency_seconds", Help: "State evaluation latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the core
// histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are attribute-safe renderings of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
