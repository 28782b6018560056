package stepup

import (
	"context"
	"strconv"
)

// maxDevicesClaim is the per-account device limit override, stored as a
// directory claim so it survives independently of engine configuration.
const maxDevicesClaim = "max_devices_count"

// effectiveMaxDevices resolves the device limit for the account: a valid
// per-account claim wins, then the configured default. Zero means unbounded.
func (e *Engine) effectiveMaxDevices(ctx context.Context, account *Account) (int, error) {
	claims, err := e.directory.GetClaims(ctx, account.ID)
	if err != nil {
		return 0, err
	}
	for _, claim := range claims {
		if claim.Type != maxDevicesClaim {
			continue
		}
		limit, convErr := strconv.Atoi(claim.Value)
		if convErr != nil || limit < 1 {
			break
		}
		return limit, nil
	}
	return e.config.Devices.DefaultMaxDevices, nil
}

// RegisterDevice records a new client installation for the account. The
// registration is refused when it would exceed the account's effective
// device limit. The device starts inside its trust window.
//
// The count check and the insert are not one atomic step; two registrations
// racing on a full account can briefly overshoot the limit by one. The
// limit is a policy bound, not a security invariant, so the race is
// accepted.
func (e *Engine) RegisterDevice(ctx context.Context, account *Account, device *Device) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	if account == nil {
		return ErrNilAccount
	}
	if device == nil || device.DeviceID == "" {
		return e.ruleErr(CodeInvalidRequest)
	}

	limit, err := e.effectiveMaxDevices(ctx, account)
	if err != nil {
		return err
	}
	if limit > 0 {
		existing, err := e.devices.ListDevices(ctx, account.ID)
		if err != nil {
			return err
		}
		if len(existing) >= limit {
			e.metricInc(MetricDeviceRejected)
			rejection := e.ruleErr(CodeMaxNumberOfDevices)
			e.emitAudit(ctx, auditEventDeviceRejected, false, account.ID, device.DeviceID, rejection, func() map[string]string {
				return map[string]string{"limit": strconv.Itoa(limit)}
			})
			return rejection
		}
	}

	now := e.clock()
	device.AccountID = account.ID
	device.CreatedAt = now
	trustUntil := now.Add(e.config.Devices.TrustWindow)
	device.TrustExpiresAt = &trustUntil

	if result := e.devices.AddDevice(ctx, device); !result.Succeeded() {
		return result.Err()
	}

	e.metricInc(MetricDeviceRegistered)
	e.emitAudit(ctx, auditEventDeviceRegistered, true, account.ID, device.DeviceID, nil, nil)
	return nil
}

// SetMaxDevices installs a per-account device limit override. The limit
// must admit at least one device, must not exceed the system ceiling, and
// must not fall below the account's current registration count.
func (e *Engine) SetMaxDevices(ctx context.Context, account *Account, limit int) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	if account == nil {
		return ErrNilAccount
	}

	if limit < 1 {
		return e.ruleErr(CodeInsufficientNumberOfDevices)
	}
	if ceiling := e.config.Devices.AbsoluteMaxDevices; ceiling > 0 && limit > ceiling {
		return e.ruleErr(CodeLargeNumberOfDevices)
	}

	existing, err := e.devices.ListDevices(ctx, account.ID)
	if err != nil {
		return err
	}
	if limit < len(existing) {
		return e.ruleErr(CodeLargeNumberOfDevices)
	}

	claim := Claim{Type: maxDevicesClaim, Value: strconv.Itoa(limit)}
	if result := e.directory.ReplaceClaim(ctx, account.ID, claim); !result.Succeeded() {
		return result.Err()
	}

	e.emitAudit(ctx, auditEventDeviceLimitChanged, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"limit": strconv.Itoa(limit)}
	})
	return nil
}

// ListDevices returns the account's registered devices.
func (e *Engine) ListDevices(ctx context.Context, accountID string) ([]Device, error) {
	if !e.ready() || e.devices == nil {
		return nil, ErrEngineNotReady
	}
	return e.devices.ListDevices(ctx, accountID)
}

// FindDevice returns one registered device, or a DeviceNotFound rejection.
func (e *Engine) FindDevice(ctx context.Context, accountID, deviceID string) (*Device, error) {
	if !e.ready() || e.devices == nil {
		return nil, ErrEngineNotReady
	}
	device, err := e.devices.FindDevice(ctx, accountID, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, e.ruleErr(CodeDeviceNotFound)
	}
	return device, nil
}

// UpdateDevice persists metadata changes to a registered device. Store
// conflicts surface as ConcurrencyFailure rejections.
func (e *Engine) UpdateDevice(ctx context.Context, device *Device) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	if device == nil {
		return e.ruleErr(CodeInvalidRequest)
	}
	if result := e.devices.UpdateDevice(ctx, device); !result.Succeeded() {
		return result.Err()
	}
	return nil
}

// RemoveDevice deletes a registered device, freeing a slot under the limit.
func (e *Engine) RemoveDevice(ctx context.Context, accountID, deviceID string) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	if result := e.devices.RemoveDevice(ctx, accountID, deviceID); !result.Succeeded() {
		return result.Err()
	}
	e.metricInc(MetricDeviceRemoved)
	e.emitAudit(ctx, auditEventDeviceRemoved, true, accountID, deviceID, nil, nil)
	return nil
}

// MarkDeviceRequiresPassword flags one device so its next evaluation cannot
// ride the trust window past the second factor.
func (e *Engine) MarkDeviceRequiresPassword(ctx context.Context, accountID, deviceID string) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	device, err := e.devices.FindDevice(ctx, accountID, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return e.ruleErr(CodeDeviceNotFound)
	}
	if device.RequiresPassword {
		return nil
	}
	device.RequiresPassword = true
	if result := e.devices.UpdateDevice(ctx, device); !result.Succeeded() {
		return result.Err()
	}
	return nil
}

// MarkAllDevicesRequirePassword flags every device of the account, used
// after a credential reset to force re-authentication everywhere.
func (e *Engine) MarkAllDevicesRequirePassword(ctx context.Context, accountID string) error {
	if !e.ready() || e.devices == nil {
		return ErrEngineNotReady
	}
	devices, err := e.devices.ListDevices(ctx, accountID)
	if err != nil {
		return err
	}
	for i := range devices {
		if devices[i].RequiresPassword {
			continue
		}
		devices[i].RequiresPassword = true
		if result := e.devices.UpdateDevice(ctx, &devices[i]); !result.Succeeded() {
			return result.Err()
		}
	}
	return nil
}

// DeviceTrusted reports whether the device is currently inside its trust
// window. An unknown device is simply untrusted, not an error.
func (e *Engine) DeviceTrusted(ctx context.Context, accountID, deviceID string) (bool, error) {
	if !e.ready() || e.devices == nil {
		return false, ErrEngineNotReady
	}
	device, err := e.devices.FindDevice(ctx, accountID, deviceID)
	if err != nil {
		return false, err
	}
	return device.Trusted(e.clock()) && !device.RequiresPassword, nil
}

// extendDeviceTrust slides the device's trust window forward from now and
// clears a pending password requirement. Called after a completed step-up
// from the device.
func (e *Engine) extendDeviceTrust(ctx context.Context, accountID, deviceID string) error {
	if e.devices == nil {
		return nil
	}
	device, err := e.devices.FindDevice(ctx, accountID, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return e.ruleErr(CodeDeviceNotFound)
	}

	trustUntil := e.clock().Add(e.config.Devices.TrustWindow)
	device.TrustExpiresAt = &trustUntil
	device.RequiresPassword = false

	if result := e.devices.UpdateDevice(ctx, device); !result.Succeeded() {
		return result.Err()
	}

	e.metricInc(MetricDeviceTrustExtended)
	e.emitAudit(ctx, auditEventDeviceTrustExtended, true, accountID, deviceID, nil, nil)
	return nil
}
