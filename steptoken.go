package stepup

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StepToken carries a computed sign-in state between obligation pages so
// the hosting application does not re-evaluate the account on every
// navigation step. The token is advisory: completing an obligation always
// re-evaluates against the live account record.
type StepToken struct {
	AccountID string
	State     UserState
	DeviceID  string
}

var errSigningKeyRequired = errors.New("step token signing key not configured")

type stepTokenClaims struct {
	State    string `json:"st"`
	DeviceID string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// IssueStepToken signs a short-lived token binding the account to its
// computed state and, optionally, the originating device.
func (e *Engine) IssueStepToken(ctx context.Context, account *Account, state UserState, deviceID string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if account == nil {
		return "", ErrNilAccount
	}
	if len(e.config.StepToken.SigningKey) == 0 {
		return "", errSigningKeyRequired
	}

	now := e.clock()
	claims := stepTokenClaims{
		State:    state.String(),
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.config.StepToken.Issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.config.StepToken.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(e.config.StepToken.SigningKey)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricStepTokenIssued)
	e.emitAudit(ctx, auditEventStepTokenIssued, true, account.ID, deviceID, nil, func() map[string]string {
		return map[string]string{"state": state.String()}
	})
	return signed, nil
}

// ParseStepToken validates a step token and returns its contents. Any
// signature, issuer, or lifetime failure yields ErrStepTokenInvalid.
func (e *Engine) ParseStepToken(token string) (*StepToken, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if len(e.config.StepToken.SigningKey) == 0 {
		return nil, errSigningKeyRequired
	}

	claims := &stepTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return e.config.StepToken.SigningKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(e.config.StepToken.Issuer),
		jwt.WithTimeFunc(e.clock),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrStepTokenInvalid, err)
	}

	state, ok := ParseUserState(claims.State)
	if !ok {
		return nil, ErrStepTokenInvalid
	}

	return &StepToken{
		AccountID: claims.Subject,
		State:     state,
		DeviceID:  claims.DeviceID,
	}, nil
}
