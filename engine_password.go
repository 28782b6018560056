package stepup

import (
	"context"
	"time"
)

// ComputeExpiration derives the password expiration instant from the moment
// the password was set and the rotation policy. A nil policy means the
// password never expires and yields nil. ExpireOnNextLogin yields the set
// instant itself, so the password is expired from the moment it exists.
func ComputeExpiration(setAt time.Time, policy *PasswordExpirationPolicy) *time.Time {
	if policy == nil {
		return nil
	}
	expires := setAt.AddDate(0, 0, int(*policy))
	return &expires
}

// effectivePolicy resolves the rotation policy for the account: a
// per-account policy wins, otherwise the configured default applies.
func (e *Engine) effectivePolicy(account *Account) *PasswordExpirationPolicy {
	if account != nil && account.ExpirationPolicy != nil {
		return account.ExpirationPolicy
	}
	if e == nil {
		return nil
	}
	return e.config.Password.DefaultExpiration
}

func (e *Engine) passwordExpiredAt(account *Account, now time.Time) bool {
	if account.PasswordExpired {
		return true
	}
	expires := account.PasswordExpiresAt
	if expires == nil {
		expires = ComputeExpiration(account.PasswordSetAt, e.effectivePolicy(account))
	}
	return expires != nil && !expires.After(now)
}

// ValidatePasswordReuse rejects a candidate password that matches the
// account's current password or any retained historical one. The current
// hash is checked even when history retention is disabled.
func (e *Engine) ValidatePasswordReuse(ctx context.Context, account *Account, candidate string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if account == nil {
		return ErrNilAccount
	}

	if account.PasswordHash != "" {
		match, err := e.hasher.Verify(candidate, account.PasswordHash)
		if err != nil {
			return err
		}
		if match {
			e.metricInc(MetricPasswordReuseRejected)
			return e.ruleErr(CodePasswordHistory)
		}
	}

	limit := e.config.Password.HistoryLimit
	if limit <= 0 || e.history == nil {
		return nil
	}

	entries, err := e.history.ListPasswordHistory(ctx, account.ID, limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Hash == "" {
			continue
		}
		match, err := e.hasher.Verify(candidate, entry.Hash)
		if err != nil {
			return err
		}
		if match {
			e.metricInc(MetricPasswordReuseRejected)
			e.emitAudit(ctx, auditEventPasswordReuse, false, account.ID, "", e.ruleErr(CodePasswordHistory), nil)
			return e.ruleErr(CodePasswordHistory)
		}
	}
	return nil
}

// RecordPasswordChange installs the new password on the account: the old
// hash moves into history, retention is pruned, and the expiration fields
// are recomputed from the change instant and the effective policy.
//
// Reuse validation is the caller's responsibility; lifecycle operations such
// as ChangeExpiredPassword run it first.
func (e *Engine) RecordPasswordChange(ctx context.Context, account *Account, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if account == nil {
		return ErrNilAccount
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := e.clock()
	previousHash := account.PasswordHash

	if e.history != nil && e.config.Password.HistoryLimit > 0 && previousHash != "" {
		entry := PasswordHistoryEntry{
			AccountID: account.ID,
			Hash:      previousHash,
			CreatedAt: now,
		}
		if result := e.history.AddPasswordHistory(ctx, entry); !result.Succeeded() {
			return result.Err()
		}
		if result := e.history.PrunePasswordHistory(ctx, account.ID, e.config.Password.HistoryLimit); !result.Succeeded() {
			return result.Err()
		}
	}

	prior := *account
	account.PasswordHash = hash
	account.PasswordSetAt = now
	account.PasswordExpiresAt = ComputeExpiration(now, e.effectivePolicy(account))
	account.PasswordExpired = false

	if result := e.directory.Update(ctx, account); !result.Succeeded() {
		*account = prior
		err := result.Err()
		e.emitAudit(ctx, auditEventPasswordChanged, false, account.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, account.ID, "", nil, nil)
	return nil
}

// ChangeExpiredPassword rotates an expired password in one step: the current
// password must verify, the new one must clear the reuse check, and on
// success the security stamp rotates and the next pending state is returned.
func (e *Engine) ChangeExpiredPassword(ctx context.Context, account *Account, currentPassword, newPassword string) (UserState, error) {
	if !e.ready() {
		return LoggedOut, ErrEngineNotReady
	}
	if account == nil {
		return LoggedOut, ErrNilAccount
	}
	if accountDisabled(account, e.clock()) {
		return LoggedOut, e.ruleErr(CodeAccountBlocked)
	}

	if account.PasswordHash != "" {
		match, err := e.hasher.Verify(currentPassword, account.PasswordHash)
		if err != nil {
			return e.Evaluate(account), err
		}
		if !match {
			e.metricInc(MetricPasswordMismatch)
			mismatch := e.ruleErr(CodePasswordMismatch)
			e.emitAudit(ctx, auditEventPasswordMismatch, false, account.ID, "", mismatch, nil)
			return e.Evaluate(account), mismatch
		}
	}

	if err := e.ValidatePasswordReuse(ctx, account, newPassword); err != nil {
		return e.Evaluate(account), err
	}
	if err := e.RecordPasswordChange(ctx, account, newPassword); err != nil {
		return e.Evaluate(account), err
	}
	if result := e.directory.UpdateSecurityStamp(ctx, account.ID); !result.Succeeded() {
		return e.Evaluate(account), result.Err()
	}

	return e.Evaluate(account), nil
}
