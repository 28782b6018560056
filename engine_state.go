package stepup

import (
	"context"
	"time"
)

// Evaluate computes the account's current sign-in state. The state is
// derived from the account snapshot and policy alone, never persisted, so
// two evaluations of the same snapshot always agree.
//
// Obligations resolve in a fixed order: a blocked or locked-out account is
// LoggedOut before anything else is considered, identity confirmations come
// before the password lifecycle, and the password lifecycle comes before
// second-factor obligations. Completing one obligation surfaces the next on
// re-evaluation.
func (e *Engine) Evaluate(account *Account) UserState {
	start := time.Now()
	state := e.evaluateAt(account, e.clock())

	e.metricInc(MetricEvaluate)
	e.metrics.Observe(MetricEvaluateLatency, time.Since(start))
	return state
}

// accountDisabled reports whether the account is blocked or inside an
// active lockout at the given instant.
func accountDisabled(account *Account, now time.Time) bool {
	if account.Blocked {
		return true
	}
	return account.LockoutEnd != nil && account.LockoutEnd.After(now)
}

func (e *Engine) evaluateAt(account *Account, now time.Time) UserState {
	if account == nil {
		return LoggedOut
	}
	if accountDisabled(account, now) {
		return LoggedOut
	}
	if e.config.Policy.RequireConfirmedEmail && !account.EmailConfirmed {
		return RequiresEmailVerification
	}
	if e.config.Policy.RequireConfirmedPhone && !account.PhoneConfirmed {
		return RequiresPhoneNumberVerification
	}
	if e.passwordExpiredAt(account, now) {
		return RequiresPasswordChange
	}
	if account.TwoFactorEnabled {
		return RequiresMFA
	}
	if e.config.Policy.RequireMFA {
		return RequiresMFAOnboarding
	}
	return LoggedIn
}

// EvaluateForDevice evaluates the account in the context of a known client
// device. A device inside its trust window satisfies the second-factor
// obligation, so RequiresMfa resolves to LoggedIn; every other state is
// unaffected by device trust.
func (e *Engine) EvaluateForDevice(ctx context.Context, account *Account, deviceID string) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}

	now := e.clock()
	state := e.evaluateAt(account, now)
	e.metricInc(MetricEvaluate)

	if state != RequiresMFA || deviceID == "" || e.devices == nil {
		return state, nil
	}

	device, err := e.devices.FindDevice(ctx, account.ID, deviceID)
	if err != nil {
		return state, err
	}
	if device.Trusted(now) && !device.RequiresPassword {
		state = LoggedIn
	}

	e.emitAudit(ctx, auditEventStateEvaluated, true, account.ID, deviceID, nil, func() map[string]string {
		return map[string]string{"state": state.String()}
	})
	return state, nil
}

// ConfirmEmail marks the account's email address as confirmed and returns
// the next pending state. Confirming an already confirmed address is a
// no-op success. A blocked or locked-out account cannot complete
// obligations and is rejected with AccountBlocked before any mutation.
func (e *Engine) ConfirmEmail(ctx context.Context, account *Account) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}
	if accountDisabled(account, e.clock()) {
		return LoggedOut, e.ruleErr(CodeAccountBlocked)
	}

	if !account.EmailConfirmed {
		account.EmailConfirmed = true
		if result := e.directory.Update(ctx, account); !result.Succeeded() {
			account.EmailConfirmed = false
			err := result.Err()
			e.emitAudit(ctx, auditEventEmailConfirmed, false, account.ID, "", err, nil)
			return e.Evaluate(account), err
		}
		e.metricInc(MetricEmailConfirmed)
		e.emitAudit(ctx, auditEventEmailConfirmed, true, account.ID, "", nil, nil)
	}

	return e.Evaluate(account), nil
}

// ConfirmPhone marks the account's phone number as confirmed and returns
// the next pending state. Confirming an already confirmed number is a
// no-op success.
func (e *Engine) ConfirmPhone(ctx context.Context, account *Account) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}
	if accountDisabled(account, e.clock()) {
		return LoggedOut, e.ruleErr(CodeAccountBlocked)
	}

	if !account.PhoneConfirmed {
		account.PhoneConfirmed = true
		if result := e.directory.Update(ctx, account); !result.Succeeded() {
			account.PhoneConfirmed = false
			err := result.Err()
			e.emitAudit(ctx, auditEventPhoneConfirmed, false, account.ID, "", err, nil)
			return e.Evaluate(account), err
		}
		e.metricInc(MetricPhoneConfirmed)
		e.emitAudit(ctx, auditEventPhoneConfirmed, true, account.ID, "", nil, nil)
	}

	return e.Evaluate(account), nil
}

// VerifyMFACode completes the pending second-factor obligation with an
// account-bound code. On success the account's security stamp rotates and,
// when a device id is supplied, the device's trust window is re-extended so
// subsequent evaluations from it skip the second factor.
//
// Calling this while the account has no second factor enabled is a caller
// contract violation and returns ErrNoPendingObligation.
func (e *Engine) VerifyMFACode(ctx context.Context, account *Account, deviceID, code string) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}
	if accountDisabled(account, e.clock()) {
		return LoggedOut, e.ruleErr(CodeAccountBlocked)
	}
	if !account.TwoFactorEnabled {
		return e.Evaluate(account), ErrNoPendingObligation
	}

	if err := e.checkVerifyBudget(ctx, account.ID); err != nil {
		e.metricInc(MetricCodeVerifyRateLimited)
		e.emitAudit(ctx, auditEventCodeRateLimited, false, account.ID, deviceID, err, nil)
		return e.Evaluate(account), err
	}

	ok, err := e.directory.VerifyToken(ctx, account.ID, e.config.OTP.TokenProvider, PurposeMFA, code)
	if err != nil {
		return e.Evaluate(account), err
	}
	if !ok {
		e.metricInc(MetricMFAFailed)
		failErr := e.recordVerifyFailure(ctx, account.ID)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, deviceID, failErr, nil)
		return e.Evaluate(account), failErr
	}

	e.resetVerifyBudget(ctx, account.ID)

	if result := e.directory.UpdateSecurityStamp(ctx, account.ID); !result.Succeeded() {
		return e.Evaluate(account), result.Err()
	}
	if deviceID != "" {
		if err := e.extendDeviceTrust(ctx, account.ID, deviceID); err != nil {
			e.emitAudit(ctx, auditEventMFAVerified, true, account.ID, deviceID, err, nil)
			return e.stateAfterMFA(account), nil
		}
	}

	e.metricInc(MetricMFAVerified)
	e.emitAudit(ctx, auditEventMFAVerified, true, account.ID, deviceID, nil, nil)
	return e.stateAfterMFA(account), nil
}

// EnrollMFA enables the second factor for the account after verifying an
// enrollment code. Enrolling an already enrolled account is a no-op
// success; the pending verification obligation still applies.
func (e *Engine) EnrollMFA(ctx context.Context, account *Account, code string) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}
	if accountDisabled(account, e.clock()) {
		return LoggedOut, e.ruleErr(CodeAccountBlocked)
	}
	if account.TwoFactorEnabled {
		return e.Evaluate(account), nil
	}

	if err := e.checkVerifyBudget(ctx, account.ID); err != nil {
		e.metricInc(MetricCodeVerifyRateLimited)
		e.emitAudit(ctx, auditEventCodeRateLimited, false, account.ID, "", err, nil)
		return e.Evaluate(account), err
	}

	ok, err := e.directory.VerifyToken(ctx, account.ID, e.config.OTP.TokenProvider, PurposeMFAEnroll, code)
	if err != nil {
		return e.Evaluate(account), err
	}
	if !ok {
		failErr := e.recordVerifyFailure(ctx, account.ID)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, "", failErr, nil)
		return e.Evaluate(account), failErr
	}

	e.resetVerifyBudget(ctx, account.ID)

	account.TwoFactorEnabled = true
	if result := e.directory.Update(ctx, account); !result.Succeeded() {
		account.TwoFactorEnabled = false
		err := result.Err()
		e.emitAudit(ctx, auditEventMFAEnrolled, false, account.ID, "", err, nil)
		return e.Evaluate(account), err
	}
	if result := e.directory.UpdateSecurityStamp(ctx, account.ID); !result.Succeeded() {
		return e.stateAfterMFA(account), result.Err()
	}

	e.metricInc(MetricMFAEnrolled)
	e.emitAudit(ctx, auditEventMFAEnrolled, true, account.ID, "", nil, nil)
	return e.stateAfterMFA(account), nil
}

// stateAfterMFA evaluates the account with the just-completed second-factor
// obligation treated as satisfied for this session.
func (e *Engine) stateAfterMFA(account *Account) UserState {
	state := e.Evaluate(account)
	if state == RequiresMFA {
		return LoggedIn
	}
	return state
}

// FallbackChannel returns the lower-assurance delivery channel a client may
// explicitly offer during the second-factor step. The downgrade is an
// alternative the user chooses, never a silent substitution; the second
// reported value is false when policy disallows downgrades.
func (e *Engine) FallbackChannel() (DeliveryChannel, bool) {
	if e == nil || !e.config.Policy.AllowChannelDowngrade {
		return "", false
	}
	return e.config.Policy.FallbackChannel, true
}
