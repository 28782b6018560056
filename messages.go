package stepup

var defaultMessages = map[ErrorCode]string{
	CodePasswordHistory:             "This password has been used recently. Please choose a different password.",
	CodePasswordMismatch:            "The current password is not correct.",
	CodeMaxNumberOfDevices:          "You have reached the maximum number of registered devices.",
	CodeInsufficientNumberOfDevices: "The device limit must allow at least one device.",
	CodeLargeNumberOfDevices:        "The requested device limit is not allowed.",
	CodeConcurrencyFailure:          "The record was modified by another operation. Please retry.",
	CodeDeviceNotFound:              "The device was not found.",
	CodeInvalidCode:                 "The verification code is not valid.",
	CodeNotExpired:                  "The last verification code has not expired yet. Please wait before requesting a new one.",
	CodeChannelNotSupported:         "Delivery through this channel is not supported.",
	CodeDeliveryFailure:             "The verification code could not be delivered. Please try again.",
	CodeVerifyAttemptsExceeded:      "Too many failed attempts. Please wait before trying again.",
	CodeInvalidRequest:              "The request is not valid.",
	CodeAccountBlocked:              "Sign-in is not allowed for this account.",
	CodeStoreFailure:                "The service is temporarily unavailable. Please try again.",
}

func defaultMessage(code ErrorCode) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return string(code)
}

// MessageCatalog resolves error codes to user-safe descriptions. Deployments
// localize by overriding individual codes; unlisted codes fall back to the
// built-in English text, so the catalog never produces an empty message.
type MessageCatalog struct {
	overrides map[ErrorCode]string
}

// NewMessageCatalog creates a catalog with the given overrides. A nil map is
// valid and yields the default messages.
func NewMessageCatalog(overrides map[ErrorCode]string) *MessageCatalog {
	cloned := make(map[ErrorCode]string, len(overrides))
	for code, msg := range overrides {
		cloned[code] = msg
	}
	return &MessageCatalog{overrides: cloned}
}

// Describe returns the user-safe message for code.
func (c *MessageCatalog) Describe(code ErrorCode) string {
	if c != nil {
		if msg, ok := c.overrides[code]; ok {
			return msg
		}
	}
	return defaultMessage(code)
}

func (c *MessageCatalog) ruleError(code ErrorCode) *RuleError {
	return &RuleError{Code: code, Description: c.Describe(code)}
}
