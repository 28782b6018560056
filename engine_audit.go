package stepup

import (
	"context"
	"time"
)

const (
	auditEventStateEvaluated      = "state_evaluated"
	auditEventEmailConfirmed      = "email_confirmed"
	auditEventPhoneConfirmed      = "phone_confirmed"
	auditEventPasswordChanged     = "password_changed"
	auditEventPasswordReuse       = "password_reuse_attempt"
	auditEventPasswordMismatch    = "password_mismatch"
	auditEventMFAVerified         = "mfa_verified"
	auditEventMFAFailure          = "mfa_failure"
	auditEventMFAEnrolled         = "mfa_enrolled"
	auditEventDeviceRegistered    = "device_registered"
	auditEventDeviceRejected      = "device_rejected"
	auditEventDeviceRemoved       = "device_removed"
	auditEventDeviceLimitChanged  = "device_limit_changed"
	auditEventDeviceTrustExtended = "device_trust_extended"
	auditEventCodeSent            = "code_sent"
	auditEventCodeThrottled       = "code_throttled"
	auditEventCodeVerified        = "code_verified"
	auditEventCodeVerifyFailed    = "code_verify_failed"
	auditEventCodeRateLimited     = "code_rate_limited"
	auditEventStepTokenIssued     = "step_token_issued"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := CodeOf(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
