package stepup

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStepTokenRoundTrip(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	dir.Create(context.Background(), account)

	signed, err := engine.IssueStepToken(context.Background(), account, RequiresMFA, "d1")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}

	token, err := engine.ParseStepToken(signed)
	if err != nil {
		t.Fatalf("ParseStepToken failed: %v", err)
	}
	if token.AccountID != "u1" || token.State != RequiresMFA || token.DeviceID != "d1" {
		t.Fatalf("unexpected token contents: %+v", token)
	}
}

func TestStepTokenTamperedRejected(t *testing.T) {
	engine, _, _, done := newTestEngine(t, testConfig())
	defer done()

	signed, err := engine.IssueStepToken(context.Background(), testAccount("u1"), LoggedIn, "")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := engine.ParseStepToken(tampered); !errors.Is(err, ErrStepTokenInvalid) {
		t.Fatalf("expected ErrStepTokenInvalid, got %v", err)
	}
	if _, err := engine.ParseStepToken("not-a-token"); !errors.Is(err, ErrStepTokenInvalid) {
		t.Fatalf("expected ErrStepTokenInvalid for garbage, got %v", err)
	}
}

func TestStepTokenExpires(t *testing.T) {
	engine, _, _, done := newTestEngine(t, testConfig())
	defer done()

	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	signed, err := engine.IssueStepToken(context.Background(), testAccount("u1"), RequiresPasswordChange, "")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}

	engine.now = func() time.Time { return base.Add(engine.config.StepToken.TTL + time.Minute) }
	if _, err := engine.ParseStepToken(signed); !errors.Is(err, ErrStepTokenInvalid) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestStepTokenWrongKeyRejected(t *testing.T) {
	engine, _, _, done := newTestEngine(t, testConfig())
	defer done()

	cfg := testConfig()
	cfg.StepToken.SigningKey = []byte("a-different-key")
	other, _, _, done2 := newTestEngine(t, cfg)
	defer done2()

	signed, err := engine.IssueStepToken(context.Background(), testAccount("u1"), LoggedIn, "")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}
	if _, err := other.ParseStepToken(signed); !errors.Is(err, ErrStepTokenInvalid) {
		t.Fatalf("expected token signed with another key rejected, got %v", err)
	}
}

func TestStepTokenRequiresSigningKey(t *testing.T) {
	cfg := testConfig()
	cfg.StepToken.SigningKey = nil
	engine, _, _, done := newTestEngine(t, cfg)
	defer done()

	if _, err := engine.IssueStepToken(context.Background(), testAccount("u1"), LoggedIn, ""); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestStepTokenAuditCarriesClientIP(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 8

	dir := newMockDirectory()
	sink := NewChannelSink(8)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(context.Background(), "198.51.100.7")
	if _, err := engine.IssueStepToken(ctx, testAccount("u1"), RequiresMFA, "d1"); err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventStepTokenIssued {
			t.Fatalf("expected step_token_issued event, got %s", event.EventType)
		}
		if event.IP != "198.51.100.7" {
			t.Fatalf("expected client IP from context, got %q", event.IP)
		}
		if event.DeviceID != "d1" {
			t.Fatalf("expected device id recorded, got %q", event.DeviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestStepTokenUniqueIDs(t *testing.T) {
	engine, _, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	first, err := engine.IssueStepToken(context.Background(), account, LoggedIn, "")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}
	second, err := engine.IssueStepToken(context.Background(), account, LoggedIn, "")
	if err != nil {
		t.Fatalf("IssueStepToken failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens per issuance")
	}
}
