package types

import "errors"

// GatewayError is the error type returned by the gateway core. Code is one
// of the constants below; Data optionally carries context for the caller.
type GatewayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	cause error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.cause
}

// NewError creates a GatewayError with the given code and message.
func NewError(code, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// WrapError creates a GatewayError that preserves its cause for errors.Is
// and errors.As chains.
func WrapError(code, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: message, cause: cause}
}

// ErrorCode extracts the gateway error code from err, or "" when err is not
// a GatewayError.
func ErrorCode(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsCode reports whether err carries the given gateway error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// Error codes surfaced by the gateway core.
const (
	ErrInvalidAmount           = "invalid_amount"
	ErrAddressGenerationFailed = "address_generation_failed"
	ErrConversionFailed        = "conversion_failed"
	ErrRateUnavailable         = "rate_unavailable"
	ErrNotFound                = "not_found"
	ErrProviderTransient       = "provider_transient_error"
	ErrForwardingFailed        = "forwarding_failed"
	ErrUnsupportedCoin         = "unsupported_coin"
	ErrDuplicateRecord         = "duplicate_record"
	ErrConfig                  = "config_error"
)
