package stepup

import "errors"

// Sentinel errors mark caller contract violations and unrecoverable engine
// states. Business-rule rejections never use these; they are reported as
// [RuleError] values with a stable [ErrorCode] instead.
var (
	// ErrEngineNotReady is returned when an operation runs before Build
	// completed, or against a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNilAccount is returned when a required account argument is nil.
	ErrNilAccount = errors.New("nil account")
	// ErrNoPendingObligation is returned when a completion operation is
	// invoked while the account has no matching pending obligation.
	ErrNoPendingObligation = errors.New("no pending obligation for operation")
	// ErrDirectoryRequired is returned by the builder when no user
	// directory was supplied.
	ErrDirectoryRequired = errors.New("user directory required")
	// ErrStepTokenInvalid is returned when a step token fails signature or
	// claim validation.
	ErrStepTokenInvalid = errors.New("invalid step token")
)

// ErrorCode is a stable, user-branchable identifier for a business-rule
// rejection. Codes are part of the public contract: client UIs branch on
// them, so they are never renamed or renumbered.
type ErrorCode string

const (
	// CodePasswordHistory rejects a new password matching the current hash
	// or a retained historical hash.
	CodePasswordHistory ErrorCode = "PasswordHistory"
	// CodePasswordMismatch rejects a password change whose current-password
	// proof does not verify.
	CodePasswordMismatch ErrorCode = "PasswordMismatch"
	// CodeMaxNumberOfDevices rejects a device registration that would
	// exceed the account's effective device limit.
	CodeMaxNumberOfDevices ErrorCode = "MaxNumberOfDevices"
	// CodeInsufficientNumberOfDevices rejects a max-devices setting below
	// the minimum of one.
	CodeInsufficientNumberOfDevices ErrorCode = "InsufficientNumberOfDevices"
	// CodeLargeNumberOfDevices rejects a max-devices setting above the
	// system ceiling, or below the account's current registration count.
	CodeLargeNumberOfDevices ErrorCode = "LargeNumberOfDevices"
	// CodeConcurrencyFailure reports an optimistic-concurrency conflict
	// surfaced by the backing store.
	CodeConcurrencyFailure ErrorCode = "ConcurrencyFailure"
	// CodeDeviceNotFound reports an unknown device id for the account.
	CodeDeviceNotFound ErrorCode = "DeviceNotFound"
	// CodeInvalidCode rejects a one-time code that failed verification.
	CodeInvalidCode ErrorCode = "InvalidCode"
	// CodeNotExpired rejects a resend while the previously issued code is
	// still inside the throttle window.
	CodeNotExpired ErrorCode = "CodeNotExpired"
	// CodeChannelNotSupported rejects delivery through a channel with no
	// wired sender.
	CodeChannelNotSupported ErrorCode = "ChannelNotSupported"
	// CodeDeliveryFailure reports a sender failure while dispatching a code.
	CodeDeliveryFailure ErrorCode = "DeliveryFailure"
	// CodeVerifyAttemptsExceeded rejects code verification after too many
	// failed attempts inside the cooldown window.
	CodeVerifyAttemptsExceeded ErrorCode = "VerifyAttemptsExceeded"
	// CodeInvalidRequest rejects a malformed engine request, such as a send
	// carrying both an authenticated account and a caller-supplied secret.
	CodeInvalidRequest ErrorCode = "InvalidRequest"
	// CodeAccountBlocked rejects an operation against a blocked, locked
	// out, or otherwise disabled account.
	CodeAccountBlocked ErrorCode = "AccountBlocked"
	// CodeStoreFailure reports a backing store or cache outage detected at
	// the operation boundary.
	CodeStoreFailure ErrorCode = "StoreFailure"
)

// RuleError is the typed result of a business-rule or infrastructure
// rejection. It implements error so operations keep a single return shape,
// but it is data, not an exceptional condition: lower layers never log it.
type RuleError struct {
	Code        ErrorCode
	Description string
}

// Error returns the user-safe description.
func (e *RuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Description
}

// Is reports whether target is a RuleError with the same code, which lets
// callers branch with errors.Is against a code-only template.
func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	if !ok || e == nil {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the stable code from err, or "" when err is not a
// business-rule rejection.
func CodeOf(err error) ErrorCode {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsCode reports whether err is a RuleError carrying code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// StoreResult is the typed success/failure value returned by the mutating
// operations of the store adapter contracts. A zero StoreResult succeeded.
type StoreResult struct {
	Errors []RuleError
}

// StoreOK returns a successful StoreResult.
func StoreOK() StoreResult {
	return StoreResult{}
}

// StoreFailed returns a failed StoreResult carrying one RuleError per code,
// with descriptions resolved from the default message catalog.
func StoreFailed(codes ...ErrorCode) StoreResult {
	r := StoreResult{Errors: make([]RuleError, 0, len(codes))}
	for _, code := range codes {
		r.Errors = append(r.Errors, RuleError{Code: code, Description: defaultMessage(code)})
	}
	return r
}

// Succeeded reports whether the store operation completed without errors.
func (r StoreResult) Succeeded() bool {
	return len(r.Errors) == 0
}

// Err converts a failed StoreResult into the first RuleError it carries, or
// nil when the result succeeded.
func (r StoreResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	return &first
}

// HasCode reports whether the result carries the given code.
func (r StoreResult) HasCode(code ErrorCode) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
