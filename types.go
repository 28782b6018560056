package stepup

import (
	"context"
	"time"
)

// UserState is the single step-up obligation computed for an account. It is
// never persisted: every evaluation re-derives it from the account's current
// fields, so it cannot drift from the underlying record.
type UserState uint8

const (
	// LoggedOut means sign-in is denied outright (blocked, locked out, or
	// otherwise disabled account).
	LoggedOut UserState = iota
	// LoggedIn means no obligation is pending and the session may proceed.
	LoggedIn
	// RequiresEmailVerification means the account must confirm its email
	// address before proceeding.
	RequiresEmailVerification
	// RequiresPhoneNumberVerification means the account must confirm its
	// phone number before proceeding.
	RequiresPhoneNumberVerification
	// RequiresPasswordChange means the account's password has expired and
	// must be rotated before proceeding.
	RequiresPasswordChange
	// RequiresMFA means a second factor must be verified before proceeding.
	RequiresMFA
	// RequiresMFAOnboarding means policy mandates a second factor that the
	// account has not enrolled yet.
	RequiresMFAOnboarding
)

var userStateNames = map[UserState]string{
	LoggedOut:                       "LoggedOut",
	LoggedIn:                        "LoggedIn",
	RequiresEmailVerification:       "RequiresEmailVerification",
	RequiresPhoneNumberVerification: "RequiresPhoneNumberVerification",
	RequiresPasswordChange:          "RequiresPasswordChange",
	RequiresMFA:                     "RequiresMfa",
	RequiresMFAOnboarding:           "RequiresMfaOnboarding",
}

// String returns the wire name of the state. Names are stable strings that
// client UIs branch on.
func (s UserState) String() string {
	if name, ok := userStateNames[s]; ok {
		return name
	}
	return "LoggedOut"
}

// ParseUserState resolves a wire name back to a UserState.
func ParseUserState(name string) (UserState, bool) {
	for state, n := range userStateNames {
		if n == name {
			return state, true
		}
	}
	return LoggedOut, false
}

// PasswordExpirationPolicy is the rotation interval for a password, in days
// counted from the moment it was set. A nil policy pointer means the
// password never expires.
type PasswordExpirationPolicy int

const (
	// ExpireOnNextLogin forces a password change at the next sign-in.
	ExpireOnNextLogin PasswordExpirationPolicy = 0
	// ExpireMonthly rotates passwords every 30 days.
	ExpireMonthly PasswordExpirationPolicy = 30
	// ExpireQuarterly rotates passwords every 90 days.
	ExpireQuarterly PasswordExpirationPolicy = 90
	// ExpireSemesterly rotates passwords every 180 days.
	ExpireSemesterly PasswordExpirationPolicy = 180
	// ExpireAnnually rotates passwords every 365 days.
	ExpireAnnually PasswordExpirationPolicy = 365
	// ExpireBiannually rotates passwords every 730 days.
	ExpireBiannually PasswordExpirationPolicy = 730
)

// Account is the identity record the engine evaluates. Persistence belongs
// to the directory; the engine treats the struct as a snapshot and writes
// changes back through [UserDirectory.Update].
//
// PasswordExpiresAt is always recomputed from (PasswordSetAt, policy) by the
// password lifecycle operations; it is never set independently.
type Account struct {
	ID                string
	Username          string
	Email             string
	EmailConfirmed    bool
	PhoneNumber       string
	PhoneConfirmed    bool
	PasswordHash      string
	PasswordSetAt     time.Time
	PasswordExpiresAt *time.Time
	PasswordExpired   bool
	ExpirationPolicy  *PasswordExpirationPolicy
	TwoFactorEnabled  bool
	LockoutEnd        *time.Time
	Blocked           bool
	LastSignInAt      *time.Time
}

// Claim is a typed key/value attached to an account in the directory.
type Claim struct {
	Type  string
	Value string
}

// PasswordHistoryEntry is one retained previous password hash. Entries are
// append-only and pruned to the configured retention limit on every change.
type PasswordHistoryEntry struct {
	AccountID string
	Hash      string
	CreatedAt time.Time
}

// Device is a client installation registered to an account. DeviceID is
// client-supplied, opaque, and stable per install; it is unique within the
// account but not globally.
type Device struct {
	AccountID        string
	DeviceID         string
	ClientType       string
	Platform         string
	Name             string
	Model            string
	OSVersion        string
	RequiresPassword bool
	TrustExpiresAt   *time.Time
	CreatedAt        time.Time
}

// Trusted reports whether the device is currently remembered: present for
// the account and inside its trust window at the given instant.
func (d *Device) Trusted(now time.Time) bool {
	return d != nil && d.TrustExpiresAt != nil && d.TrustExpiresAt.After(now)
}

// DeliveryChannel identifies how a one-time code reaches the user.
type DeliveryChannel string

const (
	// ChannelSMS delivers codes as text messages.
	ChannelSMS DeliveryChannel = "Sms"
	// ChannelTelephone delivers codes as voice calls.
	ChannelTelephone DeliveryChannel = "Telephone"
	// ChannelPush delivers codes as push notifications.
	ChannelPush DeliveryChannel = "PushNotification"
	// ChannelViber delivers codes as Viber messages.
	ChannelViber DeliveryChannel = "Viber"
	// ChannelEmail delivers codes as email messages.
	ChannelEmail DeliveryChannel = "Email"
	// ChannelEToken verifies against a hardware e-token; no dispatch occurs.
	ChannelEToken DeliveryChannel = "EToken"
)

// UserDirectory is the credential store adapter. The hosting application
// implements it against its own persistence; the engine never talks to a
// database directly. Mutations return a [StoreResult] so expected failures
// (concurrency conflicts, validation) surface as typed results, not errors.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByName(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account *Account) StoreResult
	Update(ctx context.Context, account *Account) StoreResult

	GetClaims(ctx context.Context, accountID string) ([]Claim, error)
	AddClaim(ctx context.Context, accountID string, claim Claim) StoreResult
	ReplaceClaim(ctx context.Context, accountID string, claim Claim) StoreResult
	RemoveClaims(ctx context.Context, accountID, claimType string) StoreResult

	// GenerateToken and VerifyToken delegate account-bound one-time-code
	// generation to the store's token provider, scoped by provider+purpose.
	GenerateToken(ctx context.Context, accountID, provider, purpose string) (string, error)
	VerifyToken(ctx context.Context, accountID, provider, purpose, token string) (bool, error)

	// UpdateSecurityStamp rotates the account's security stamp so sessions
	// relying on the old stamp become stale.
	UpdateSecurityStamp(ctx context.Context, accountID string) StoreResult
}

// DeviceStore persists trusted devices, scoped strictly to the owning
// account.
type DeviceStore interface {
	ListDevices(ctx context.Context, accountID string) ([]Device, error)
	// FindDevice returns (nil, nil) when the device is unknown; errors are
	// reserved for store failures.
	FindDevice(ctx context.Context, accountID, deviceID string) (*Device, error)
	AddDevice(ctx context.Context, device *Device) StoreResult
	UpdateDevice(ctx context.Context, device *Device) StoreResult
	RemoveDevice(ctx context.Context, accountID, deviceID string) StoreResult
}

// PasswordHistoryStore persists previous password hashes for reuse checks.
type PasswordHistoryStore interface {
	// ListPasswordHistory returns up to limit entries, most recent first.
	ListPasswordHistory(ctx context.Context, accountID string, limit int) ([]PasswordHistoryEntry, error)
	AddPasswordHistory(ctx context.Context, entry PasswordHistoryEntry) StoreResult
	// PrunePasswordHistory drops all but the keep most recent entries.
	PrunePasswordHistory(ctx context.Context, accountID string, keep int) StoreResult
}

// CodeSender dispatches a one-time code through one concrete channel.
// Failures are delivery errors and are surfaced, never swallowed.
type CodeSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// CodeSenderFunc adapts a function to the CodeSender interface.
type CodeSenderFunc func(ctx context.Context, to, subject, body string) error

// Send calls f.
func (f CodeSenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// SendCodeRequest asks the engine to generate and dispatch a one-time code.
// Exactly one of Account and Secret must be set: Account selects the
// directory-backed token provider, Secret selects stateless time-windowed
// derivation. In secret mode a PhoneNumber or Email is required because the
// contact identifier is part of the derivation modifier.
type SendCodeRequest struct {
	Account     *Account
	Secret      string
	Channel     DeliveryChannel
	Purpose     string
	PhoneNumber string
	Email       string
	Subject     string
	// Body is the message template; the literal token {code} is replaced
	// with the generated code. An empty body sends the code alone.
	Body string
}

// VerifyCodeRequest asks the engine to verify a previously delivered code.
// The Account/Secret and contact fields must match the originating send.
type VerifyCodeRequest struct {
	Account     *Account
	Secret      string
	Purpose     string
	PhoneNumber string
	Email       string
	Code        string
}

// CodeEngine is the one-time-code surface. The concrete implementation is
// the Engine itself; decorators such as [BypassCodeEngine] wrap this
// interface so production and test behavior stay interchangeable.
type CodeEngine interface {
	SendCode(ctx context.Context, req SendCodeRequest) error
	VerifyCode(ctx context.Context, req VerifyCodeRequest) error
}
