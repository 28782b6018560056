package stepup

import (
	"context"
	"crypto/subtle"
)

// BypassCodeEngine wraps a CodeEngine with pre-provisioned codes for fixed
// contact identifiers, so review builds and automated acceptance tests run
// without real deliveries. Requests for any other contact pass through to
// the wrapped engine unchanged.
//
// Never wire this in production.
type BypassCodeEngine struct {
	inner CodeEngine
	codes map[string]string
}

// NewBypassCodeEngine creates the decorator. codes maps a contact
// identifier (phone number or email) to its accepted code.
func NewBypassCodeEngine(inner CodeEngine, codes map[string]string) *BypassCodeEngine {
	cloned := make(map[string]string, len(codes))
	for contact, code := range codes {
		cloned[contact] = code
	}
	return &BypassCodeEngine{inner: inner, codes: cloned}
}

func (b *BypassCodeEngine) bypassCode(phone, email string) (string, bool) {
	if code, ok := b.codes[phone]; ok && phone != "" {
		return code, true
	}
	if code, ok := b.codes[email]; ok && email != "" {
		return code, true
	}
	return "", false
}

// SendCode suppresses dispatch for bypassed contacts and delegates
// everything else.
func (b *BypassCodeEngine) SendCode(ctx context.Context, req SendCodeRequest) error {
	if _, ok := b.bypassCode(req.PhoneNumber, req.Email); ok {
		return nil
	}
	return b.inner.SendCode(ctx, req)
}

// VerifyCode accepts the pre-provisioned code for bypassed contacts and
// delegates everything else.
func (b *BypassCodeEngine) VerifyCode(ctx context.Context, req VerifyCodeRequest) error {
	expected, ok := b.bypassCode(req.PhoneNumber, req.Email)
	if !ok {
		return b.inner.VerifyCode(ctx, req)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(req.Code)) == 1 {
		return nil
	}
	return &RuleError{Code: CodeInvalidCode, Description: defaultMessage(CodeInvalidCode)}
}
