package stepup

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := StrictPolicyConfig().Validate(); err != nil {
		t.Fatalf("strict preset invalid: %v", err)
	}
}

func TestStrictPolicyPreset(t *testing.T) {
	cfg := StrictPolicyConfig()

	if !cfg.Policy.RequireConfirmedEmail || !cfg.Policy.RequireConfirmedPhone || !cfg.Policy.RequireMFA {
		t.Fatal("expected all confirmations and MFA mandated")
	}
	if cfg.Password.DefaultExpiration == nil || *cfg.Password.DefaultExpiration != ExpireMonthly {
		t.Fatalf("expected monthly rotation, got %v", cfg.Password.DefaultExpiration)
	}
	if cfg.Devices.DefaultMaxDevices != 2 {
		t.Fatalf("expected two devices per account, got %d", cfg.Devices.DefaultMaxDevices)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative history limit", func(c *Config) { c.Password.HistoryLimit = -1 }},
		{"tiny salt", func(c *Config) { c.Password.SaltLength = 4 }},
		{"zero argon memory", func(c *Config) { c.Password.Memory = 0 }},
		{"negative device limit", func(c *Config) { c.Devices.DefaultMaxDevices = -1 }},
		{"default above ceiling", func(c *Config) {
			c.Devices.DefaultMaxDevices = 20
			c.Devices.AbsoluteMaxDevices = 10
		}},
		{"zero trust window", func(c *Config) { c.Devices.TrustWindow = 0 }},
		{"too few digits", func(c *Config) { c.OTP.Digits = 3 }},
		{"too many digits", func(c *Config) { c.OTP.Digits = 11 }},
		{"zero period", func(c *Config) { c.OTP.Period = 0 }},
		{"negative skew", func(c *Config) { c.OTP.Skew = -1 }},
		{"unknown algorithm", func(c *Config) { c.OTP.Algorithm = "MD5" }},
		{"zero throttle", func(c *Config) { c.OTP.ResendThrottle = 0 }},
		{"zero attempts", func(c *Config) { c.OTP.MaxVerifyAttempts = 0 }},
		{"empty token provider", func(c *Config) { c.OTP.TokenProvider = "" }},
		{"downgrade without fallback", func(c *Config) {
			c.Policy.AllowChannelDowngrade = true
			c.Policy.FallbackChannel = ""
		}},
		{"zero step token ttl", func(c *Config) { c.StepToken.TTL = 0 }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIndependence(t *testing.T) {
	policy := ExpireQuarterly
	cfg := DefaultConfig()
	cfg.Password.DefaultExpiration = &policy
	cfg.StepToken.SigningKey = []byte("secret-key")
	cfg.Messages = map[ErrorCode]string{CodeInvalidCode: "nope"}

	cloned := cloneConfig(cfg)

	*cfg.Password.DefaultExpiration = ExpireAnnually
	cfg.StepToken.SigningKey[0] = 'X'
	cfg.Messages[CodeInvalidCode] = "changed"

	if *cloned.Password.DefaultExpiration != ExpireQuarterly {
		t.Fatal("expected cloned expiration policy to be independent")
	}
	if cloned.StepToken.SigningKey[0] == 'X' {
		t.Fatal("expected cloned signing key to be independent")
	}
	if cloned.Messages[CodeInvalidCode] != "nope" {
		t.Fatal("expected cloned messages to be independent")
	}
}

func TestMessageCatalogOverrides(t *testing.T) {
	catalog := NewMessageCatalog(map[ErrorCode]string{
		CodeInvalidCode: "Der Code ist ungültig.",
	})

	if got := catalog.Describe(CodeInvalidCode); got != "Der Code ist ungültig." {
		t.Fatalf("expected override, got %q", got)
	}
	if got := catalog.Describe(CodeNotExpired); got != defaultMessage(CodeNotExpired) {
		t.Fatalf("expected default fallback, got %q", got)
	}
	if got := catalog.Describe(ErrorCode("Unknown")); got != "Unknown" {
		t.Fatalf("expected code echo for unknown code, got %q", got)
	}
}

func TestEngineUsesConfiguredMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Messages = map[ErrorCode]string{CodeChannelNotSupported: "custom text"}
	engine, _, _, done := newTestEngine(t, cfg)
	defer done()

	if got := engine.Describe(CodeChannelNotSupported); got != "custom text" {
		t.Fatalf("expected configured message, got %q", got)
	}

	err := engine.ruleErr(CodeChannelNotSupported)
	if err.Error() != "custom text" {
		t.Fatalf("expected rule error to carry configured text, got %q", err.Error())
	}
	if !IsCode(err, CodeChannelNotSupported) {
		t.Fatal("expected code preserved")
	}
}

func TestRuleErrorMatching(t *testing.T) {
	err := &RuleError{Code: CodePasswordHistory, Description: "x"}

	if !IsCode(err, CodePasswordHistory) {
		t.Fatal("expected IsCode match")
	}
	if IsCode(err, CodeInvalidCode) {
		t.Fatal("unexpected IsCode match")
	}
	if CodeOf(err) != CodePasswordHistory {
		t.Fatalf("expected code extraction, got %s", CodeOf(err))
	}
	if CodeOf(nil) != "" {
		t.Fatal("expected empty code for nil error")
	}
}

func TestStoreResult(t *testing.T) {
	ok := StoreOK()
	if !ok.Succeeded() || ok.Err() != nil {
		t.Fatal("expected zero result to succeed")
	}

	failed := StoreFailed(CodeConcurrencyFailure, CodeStoreFailure)
	if failed.Succeeded() {
		t.Fatal("expected failure")
	}
	if !failed.HasCode(CodeConcurrencyFailure) || !failed.HasCode(CodeStoreFailure) {
		t.Fatal("expected both codes present")
	}
	if !IsCode(failed.Err(), CodeConcurrencyFailure) {
		t.Fatalf("expected first code surfaced, got %v", failed.Err())
	}
}

func TestPasswordExpirationPolicyDays(t *testing.T) {
	tests := map[PasswordExpirationPolicy]int{
		ExpireOnNextLogin: 0,
		ExpireMonthly:     30,
		ExpireQuarterly:   90,
		ExpireSemesterly:  180,
		ExpireAnnually:    365,
		ExpireBiannually:  730,
	}
	for policy, days := range tests {
		if int(policy) != days {
			t.Fatalf("expected %d days, got %d", days, int(policy))
		}
	}
}
