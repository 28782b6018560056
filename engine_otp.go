package stepup

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Well-known code purposes. A purpose scopes generation and verification:
// a code issued for one purpose never verifies for another.
const (
	PurposeEmailConfirmation = "EmailConfirmation"
	PurposePhoneConfirmation = "PhoneConfirmation"
	PurposeMFA               = "Mfa"
	PurposeMFAEnroll         = "MfaEnroll"
	PurposePasswordReset     = "PasswordReset"
)

// codeBodyToken is the placeholder replaced with the generated code in the
// message body template.
const codeBodyToken = "{code}"

// SendCode generates a one-time code and dispatches it through the
// requested channel. Two binding modes exist: with req.Account set the code
// comes from the directory's token provider, with req.Secret set it is
// derived statelessly from the secret, the purpose, and the contact
// identifier. Exactly one mode must be selected.
//
// A send of a still fresh (subject, channel, code, purpose) combination is
// refused with CodeNotExpired until the resend throttle expires. The
// throttle window is independent of the code's validity window.
func (e *Engine) SendCode(ctx context.Context, req SendCodeRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.validateSendRequest(req); err != nil {
		return err
	}

	// E-token codes come from the user's hardware device; there is nothing
	// to generate or dispatch.
	if req.Channel == ChannelEToken {
		return nil
	}

	sender, ok := e.senders[req.Channel]
	if !ok || sender == nil {
		return e.ruleErr(CodeChannelNotSupported)
	}

	contact := e.contactFor(req.Channel, req.Account, req.PhoneNumber, req.Email)
	if contact == "" {
		return e.ruleErr(CodeInvalidRequest)
	}

	var (
		code    string
		err     error
		subject = throttleSubject(req.Account, contact)
	)
	if req.Account != nil {
		code, err = e.directory.GenerateToken(ctx, req.Account.ID, e.config.OTP.TokenProvider, req.Purpose)
	} else {
		code, err = e.otp.Generate(req.Secret, codeModifier(req.Purpose, contact), e.clock())
	}
	if err != nil {
		return err
	}

	reserved, err := e.throttle.Reserve(ctx, subject, req.Channel, code, req.Purpose, e.config.OTP.ResendThrottle)
	if err != nil {
		return e.ruleErr(CodeStoreFailure)
	}
	if !reserved {
		e.metricInc(MetricCodeThrottled)
		throttled := e.ruleErr(CodeNotExpired)
		e.emitAudit(ctx, auditEventCodeThrottled, false, accountIDOf(req.Account), "", throttled, func() map[string]string {
			return map[string]string{"channel": string(req.Channel), "purpose": req.Purpose}
		})
		return throttled
	}

	body := req.Body
	if body == "" {
		body = code
	} else {
		body = strings.ReplaceAll(body, codeBodyToken, code)
	}

	if err := sender.Send(ctx, contact, req.Subject, body); err != nil {
		log.Print("stepup: code dispatch failed: ", err)
		if relErr := e.throttle.Release(ctx, subject, req.Channel, code, req.Purpose); relErr != nil {
			log.Print("stepup: throttle release failed: ", relErr)
		}
		delivery := e.ruleErr(CodeDeliveryFailure)
		e.emitAudit(ctx, auditEventCodeSent, false, accountIDOf(req.Account), "", delivery, func() map[string]string {
			return map[string]string{"channel": string(req.Channel), "purpose": req.Purpose}
		})
		return delivery
	}

	e.metricInc(MetricCodeSent)
	e.emitAudit(ctx, auditEventCodeSent, true, accountIDOf(req.Account), "", nil, func() map[string]string {
		return map[string]string{"channel": string(req.Channel), "purpose": req.Purpose}
	})
	return nil
}

// VerifyCode checks a previously delivered code. The binding mode and the
// contact fields must match the originating send. Failed attempts count
// against the per-subject budget; once exhausted, further attempts are
// refused with VerifyAttemptsExceeded until the cooldown passes.
func (e *Engine) VerifyCode(ctx context.Context, req VerifyCodeRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.validateVerifyRequest(req); err != nil {
		return err
	}

	contact := req.PhoneNumber
	if contact == "" {
		contact = req.Email
	}
	subject := throttleSubject(req.Account, contact)

	if err := e.checkVerifyBudget(ctx, subject); err != nil {
		e.metricInc(MetricCodeVerifyRateLimited)
		e.emitAudit(ctx, auditEventCodeRateLimited, false, accountIDOf(req.Account), "", err, nil)
		return err
	}

	var (
		ok  bool
		err error
	)
	if req.Account != nil {
		ok, err = e.directory.VerifyToken(ctx, req.Account.ID, e.config.OTP.TokenProvider, req.Purpose, req.Code)
	} else {
		ok, err = e.otp.Verify(req.Secret, codeModifier(req.Purpose, contact), req.Code, e.clock())
	}
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricCodeVerifyFailed)
		failErr := e.recordVerifyFailure(ctx, subject)
		e.emitAudit(ctx, auditEventCodeVerifyFailed, false, accountIDOf(req.Account), "", failErr, func() map[string]string {
			return map[string]string{"purpose": req.Purpose}
		})
		return failErr
	}

	e.resetVerifyBudget(ctx, subject)

	if req.Account != nil {
		if result := e.directory.UpdateSecurityStamp(ctx, req.Account.ID); !result.Succeeded() {
			return result.Err()
		}
	}

	e.metricInc(MetricCodeVerified)
	e.emitAudit(ctx, auditEventCodeVerified, true, accountIDOf(req.Account), "", nil, func() map[string]string {
		return map[string]string{"purpose": req.Purpose}
	})
	return nil
}

func (e *Engine) validateSendRequest(req SendCodeRequest) error {
	if (req.Account == nil) == (req.Secret == "") {
		return e.ruleErr(CodeInvalidRequest)
	}
	if req.Purpose == "" || req.Channel == "" {
		return e.ruleErr(CodeInvalidRequest)
	}
	if req.Account == nil && req.PhoneNumber == "" && req.Email == "" {
		return e.ruleErr(CodeInvalidRequest)
	}
	return nil
}

func (e *Engine) validateVerifyRequest(req VerifyCodeRequest) error {
	if (req.Account == nil) == (req.Secret == "") {
		return e.ruleErr(CodeInvalidRequest)
	}
	if req.Purpose == "" || strings.TrimSpace(req.Code) == "" {
		return e.ruleErr(CodeInvalidRequest)
	}
	if req.Account == nil && req.PhoneNumber == "" && req.Email == "" {
		return e.ruleErr(CodeInvalidRequest)
	}
	return nil
}

// contactFor resolves the delivery address: explicit request fields win,
// then the account's own contact details.
func (e *Engine) contactFor(channel DeliveryChannel, account *Account, phone, email string) string {
	if channel == ChannelEmail {
		if email != "" {
			return email
		}
		if account != nil {
			return account.Email
		}
		return ""
	}
	if phone != "" {
		return phone
	}
	if account != nil {
		return account.PhoneNumber
	}
	return ""
}

// throttleSubject identifies the throttled party: the account when one is
// bound, otherwise the contact identifier of the anonymous flow.
func throttleSubject(account *Account, contact string) string {
	if account != nil {
		return account.ID
	}
	return "anon:" + contact
}

func accountIDOf(account *Account) string {
	if account == nil {
		return ""
	}
	return account.ID
}

func (e *Engine) checkVerifyBudget(ctx context.Context, subject string) error {
	if e.verifyLimiter == nil {
		return nil
	}
	err := e.verifyLimiter.Check(ctx, subject)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errVerifyRateLimited):
		return e.ruleErr(CodeVerifyAttemptsExceeded)
	default:
		return e.ruleErr(CodeStoreFailure)
	}
}

// recordVerifyFailure charges the failed attempt and returns the rejection
// the caller should surface: InvalidCode normally, VerifyAttemptsExceeded
// when this failure exhausted the budget.
func (e *Engine) recordVerifyFailure(ctx context.Context, subject string) error {
	if e.verifyLimiter == nil {
		return e.ruleErr(CodeInvalidCode)
	}
	err := e.verifyLimiter.RecordFailure(ctx, subject)
	switch {
	case err == nil:
		return e.ruleErr(CodeInvalidCode)
	case errors.Is(err, errVerifyRateLimited):
		return e.ruleErr(CodeVerifyAttemptsExceeded)
	default:
		log.Print("stepup: verify limiter unavailable: ", err)
		return e.ruleErr(CodeInvalidCode)
	}
}

func (e *Engine) resetVerifyBudget(ctx context.Context, subject string) {
	if e.verifyLimiter == nil {
		return
	}
	if err := e.verifyLimiter.Reset(ctx, subject); err != nil {
		log.Print("stepup: verify limiter reset failed: ", err)
	}
}
