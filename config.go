package stepup

import (
	"errors"
	"time"
)

// Config defines the engine's tuning and policy surface.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Password  PasswordPolicyConfig
	Devices   DeviceConfig
	OTP       OTPConfig
	Policy    SignInPolicyConfig
	StepToken StepTokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	// Messages overrides the user-safe description for individual error
	// codes; unlisted codes keep the built-in text.
	Messages map[ErrorCode]string
}

// PasswordPolicyConfig governs hashing, history, and expiration.
type PasswordPolicyConfig struct {
	// HistoryLimit is the number of previous hashes retained for reuse
	// checks. Zero disables history; the current hash is checked always.
	HistoryLimit int
	// DefaultExpiration applies to accounts without a per-account policy.
	// Nil means passwords never expire by default.
	DefaultExpiration *PasswordExpirationPolicy

	// Argon2id parameters, in the units of golang.org/x/crypto/argon2.
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DeviceConfig governs trusted-device registration and remembering.
type DeviceConfig struct {
	// DefaultMaxDevices is the per-account limit used when the account has
	// no override claim. Zero means unbounded.
	DefaultMaxDevices int
	// AbsoluteMaxDevices is the ceiling no per-account override may exceed.
	AbsoluteMaxDevices int
	// TrustWindow is the sliding remembered-client window, re-extended on
	// every successful step-up completion from the device.
	TrustWindow time.Duration
}

// OTPConfig governs one-time-code generation, throttling, and verification.
type OTPConfig struct {
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of adjacent time steps accepted on verification;
	// together with Period it defines the code validity window.
	Skew int
	// ResendThrottle is the anti-replay window: a second send of a still
	// fresh (channel, code, purpose) combination is refused until it ends.
	// It is independent of the code validity window, which is typically
	// longer.
	ResendThrottle time.Duration
	// MaxVerifyAttempts and VerifyCooldown bound failed verification
	// attempts per subject.
	MaxVerifyAttempts int
	VerifyCooldown    time.Duration
	// TokenProvider names the directory token provider used for
	// account-bound codes.
	TokenProvider string
}

// SignInPolicyConfig decides which step-up obligations policy mandates.
type SignInPolicyConfig struct {
	RequireConfirmedEmail bool
	RequireConfirmedPhone bool
	// RequireMFA mandates enrollment: accounts without a second factor are
	// directed to onboarding.
	RequireMFA bool
	// AllowChannelDowngrade permits offering FallbackChannel as an explicit
	// lower-assurance alternative during RequiresMfa. Never a silent
	// substitution.
	AllowChannelDowngrade bool
	FallbackChannel       DeliveryChannel
}

// StepTokenConfig governs the signed token that carries a computed state
// between obligation pages.
type StepTokenConfig struct {
	SigningKey []byte
	TTL        time.Duration
	Issuer     string
}

// AuditConfig governs the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig governs the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Password: PasswordPolicyConfig{
			HistoryLimit: 5,
			Memory:       64 * 1024,
			Time:         3,
			Parallelism:  2,
			SaltLength:   16,
			KeyLength:    32,
		},
		Devices: DeviceConfig{
			DefaultMaxDevices:  0,
			AbsoluteMaxDevices: 50,
			TrustWindow:        90 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			Digits:            6,
			Period:            30,
			Algorithm:         "SHA1",
			Skew:              3,
			ResendThrottle:    30 * time.Second,
			MaxVerifyAttempts: 5,
			VerifyCooldown:    time.Minute,
			TokenProvider:     "StepUp",
		},
		Policy: SignInPolicyConfig{
			RequireConfirmedEmail: true,
			RequireConfirmedPhone: false,
			RequireMFA:            false,
		},
		StepToken: StepTokenConfig{
			TTL:    10 * time.Minute,
			Issuer: "stepup",
		},
		Audit:   AuditConfig{Enabled: false, BufferSize: 256, DropIfFull: true},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// DefaultConfig returns the baseline configuration: email confirmation
// required, five retained password hashes, unbounded devices with a 90-day
// trust window, 6-digit codes with a 30-second resend throttle.
func DefaultConfig() Config {
	return defaultConfig()
}

// StrictPolicyConfig returns a hardened preset: email and phone
// confirmation required, MFA mandated, monthly password rotation, two
// devices per account.
func StrictPolicyConfig() Config {
	cfg := defaultConfig()
	policy := ExpireMonthly
	cfg.Password.DefaultExpiration = &policy
	cfg.Policy.RequireConfirmedEmail = true
	cfg.Policy.RequireConfirmedPhone = true
	cfg.Policy.RequireMFA = true
	cfg.Devices.DefaultMaxDevices = 2
	cfg.Devices.AbsoluteMaxDevices = 10
	return cfg
}

// Validate checks the configuration for internally inconsistent values.
func (c Config) Validate() error {
	if c.Password.HistoryLimit < 0 {
		return errors.New("password history limit must not be negative")
	}
	if c.Password.SaltLength < 8 || c.Password.KeyLength < 16 {
		return errors.New("password hash salt/key lengths too small")
	}
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("password hash parameters must be positive")
	}
	if c.Devices.DefaultMaxDevices < 0 || c.Devices.AbsoluteMaxDevices < 0 {
		return errors.New("device limits must not be negative")
	}
	if c.Devices.AbsoluteMaxDevices > 0 && c.Devices.DefaultMaxDevices > c.Devices.AbsoluteMaxDevices {
		return errors.New("default device limit exceeds absolute ceiling")
	}
	if c.Devices.TrustWindow <= 0 {
		return errors.New("device trust window must be positive")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.Period <= 0 {
		return errors.New("otp period must be positive")
	}
	if c.OTP.Skew < 0 {
		return errors.New("otp skew must not be negative")
	}
	switch c.OTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported otp algorithm")
	}
	if c.OTP.ResendThrottle <= 0 {
		return errors.New("otp resend throttle must be positive")
	}
	if c.OTP.MaxVerifyAttempts <= 0 || c.OTP.VerifyCooldown <= 0 {
		return errors.New("otp verify attempt limits must be positive")
	}
	if c.OTP.TokenProvider == "" {
		return errors.New("otp token provider name required")
	}
	if c.Policy.AllowChannelDowngrade && c.Policy.FallbackChannel == "" {
		return errors.New("channel downgrade requires a fallback channel")
	}
	if c.StepToken.TTL <= 0 {
		return errors.New("step token ttl must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Password.DefaultExpiration != nil {
		policy := *cfg.Password.DefaultExpiration
		out.Password.DefaultExpiration = &policy
	}
	out.StepToken.SigningKey = cloneBytes(cfg.StepToken.SigningKey)
	if cfg.Messages != nil {
		out.Messages = make(map[ErrorCode]string, len(cfg.Messages))
		for code, msg := range cfg.Messages {
			out.Messages[code] = msg
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
