package stepup

import (
	"context"
	"testing"
	"time"
)

func TestComputeExpiration(t *testing.T) {
	setAt := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	if got := ComputeExpiration(setAt, nil); got != nil {
		t.Fatalf("expected nil expiration without policy, got %v", got)
	}

	monthly := ExpireMonthly
	got := ComputeExpiration(setAt, &monthly)
	if got == nil || !got.Equal(setAt.AddDate(0, 0, 30)) {
		t.Fatalf("expected +30 days, got %v", got)
	}

	immediate := ExpireOnNextLogin
	got = ComputeExpiration(setAt, &immediate)
	if got == nil || !got.Equal(setAt) {
		t.Fatalf("expected expiration at the set instant, got %v", got)
	}
}

func TestExpireOnNextLoginForcesChange(t *testing.T) {
	engine, _, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	policy := ExpireOnNextLogin
	account.ExpirationPolicy = &policy

	if got := engine.Evaluate(account); got != RequiresPasswordChange {
		t.Fatalf("expected RequiresPasswordChange, got %s", got)
	}
}

func TestDefaultExpirationPolicyApplies(t *testing.T) {
	cfg := testConfig()
	monthly := ExpireMonthly
	cfg.Password.DefaultExpiration = &monthly
	engine, _, _, done := newTestEngine(t, cfg)
	defer done()

	account := testAccount("u1")
	account.PasswordSetAt = time.Now().UTC().Add(-31 * 24 * time.Hour)

	if got := engine.Evaluate(account); got != RequiresPasswordChange {
		t.Fatalf("expected RequiresPasswordChange under default policy, got %s", got)
	}

	// A per-account policy overrides the default.
	annual := ExpireAnnually
	account.ExpirationPolicy = &annual
	if got := engine.Evaluate(account); got != LoggedIn {
		t.Fatalf("expected per-account policy to win, got %s", got)
	}
}

func TestChangeExpiredPassword(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	hash, err := engine.hasher.Hash("old-password-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	account.PasswordHash = hash
	account.PasswordExpired = true
	dir.Create(context.Background(), account)

	if got := engine.Evaluate(account); got != RequiresPasswordChange {
		t.Fatalf("expected RequiresPasswordChange, got %s", got)
	}

	stampBefore := dir.stamp("u1")

	state, err := engine.ChangeExpiredPassword(context.Background(), account, "old-password-1", "new-password-2")
	if err != nil {
		t.Fatalf("ChangeExpiredPassword failed: %v", err)
	}
	if state != LoggedIn {
		t.Fatalf("expected LoggedIn after rotation, got %s", state)
	}
	if account.PasswordExpired {
		t.Fatal("expected expired flag cleared")
	}
	if dir.stamp("u1") == stampBefore {
		t.Fatal("expected security stamp rotation")
	}

	ok, err := engine.hasher.Verify("new-password-2", account.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password to verify, ok=%v err=%v", ok, err)
	}
}

func TestChangeExpiredPasswordWrongCurrent(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	hash, _ := engine.hasher.Hash("old-password-1")
	account.PasswordHash = hash
	account.PasswordExpired = true
	dir.Create(context.Background(), account)

	state, err := engine.ChangeExpiredPassword(context.Background(), account, "wrong", "new-password-2")
	if !IsCode(err, CodePasswordMismatch) {
		t.Fatalf("expected PasswordMismatch, got %v", err)
	}
	if state != RequiresPasswordChange {
		t.Fatalf("expected obligation to remain, got %s", state)
	}
}

func TestPasswordHistoryBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.Password.HistoryLimit = 3
	engine, dir, _, done := newTestEngine(t, cfg)
	defer done()

	ctx := context.Background()
	account := testAccount("u1")
	hash, _ := engine.hasher.Hash("password-1")
	account.PasswordHash = hash
	dir.Create(ctx, account)

	// Rotate through password-2..password-4 so history holds exactly three
	// previous hashes.
	for _, next := range []string{"password-2", "password-3", "password-4"} {
		if err := engine.RecordPasswordChange(ctx, account, next); err != nil {
			t.Fatalf("RecordPasswordChange(%s) failed: %v", next, err)
		}
	}

	// Current and all three retained passwords are rejected.
	for _, reused := range []string{"password-4", "password-3", "password-2", "password-1"} {
		if err := engine.ValidatePasswordReuse(ctx, account, reused); !IsCode(err, CodePasswordHistory) {
			t.Fatalf("expected PasswordHistory for %s, got %v", reused, err)
		}
	}

	// One more rotation evicts password-1 from the retained window.
	if err := engine.RecordPasswordChange(ctx, account, "password-5"); err != nil {
		t.Fatalf("RecordPasswordChange failed: %v", err)
	}
	if err := engine.ValidatePasswordReuse(ctx, account, "password-1"); err != nil {
		t.Fatalf("expected evicted password to be accepted, got %v", err)
	}
	if err := engine.ValidatePasswordReuse(ctx, account, "password-2"); !IsCode(err, CodePasswordHistory) {
		t.Fatalf("expected PasswordHistory for password-2, got %v", err)
	}
}

func TestCurrentPasswordRejectedWithoutHistory(t *testing.T) {
	cfg := testConfig()
	cfg.Password.HistoryLimit = 0
	engine, dir, _, done := newTestEngine(t, cfg)
	defer done()

	ctx := context.Background()
	account := testAccount("u1")
	hash, _ := engine.hasher.Hash("password-1")
	account.PasswordHash = hash
	dir.Create(ctx, account)

	if err := engine.ValidatePasswordReuse(ctx, account, "password-1"); !IsCode(err, CodePasswordHistory) {
		t.Fatalf("expected current password rejected even without history, got %v", err)
	}
	if err := engine.ValidatePasswordReuse(ctx, account, "password-2"); err != nil {
		t.Fatalf("expected fresh password accepted, got %v", err)
	}
}

func TestRecordPasswordChangeRecomputesExpiration(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	account := testAccount("u1")
	monthly := ExpireMonthly
	account.ExpirationPolicy = &monthly
	dir.Create(ctx, account)

	if err := engine.RecordPasswordChange(ctx, account, "fresh-password"); err != nil {
		t.Fatalf("RecordPasswordChange failed: %v", err)
	}
	if !account.PasswordSetAt.Equal(now) {
		t.Fatalf("expected PasswordSetAt=%v, got %v", now, account.PasswordSetAt)
	}
	if account.PasswordExpiresAt == nil || !account.PasswordExpiresAt.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expected expiration recomputed, got %v", account.PasswordExpiresAt)
	}
}

func TestRecordPasswordChangeSkipsHistoryForEmptyHash(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	account := testAccount("u1")
	dir.Create(ctx, account)

	if err := engine.RecordPasswordChange(ctx, account, "first-password"); err != nil {
		t.Fatalf("RecordPasswordChange failed: %v", err)
	}

	entries, err := dir.ListPasswordHistory(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListPasswordHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no history entry for an account without a prior hash, got %d", len(entries))
	}
}
