package errors

import (
	"encoding/json"
	stderrors "errors"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Resource signals surfaced by the subscription protocol
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeReconnected      ErrorCode = "RECONNECTED"
	ErrCodeServerRendering  ErrorCode = "SERVER_RENDERING"

	// Invariant violations. These indicate a logic bug and are never retried.
	ErrCodeListenerDuplicate ErrorCode = "LISTENER_DUPLICATE"
	ErrCodeListenerMissing   ErrorCode = "LISTENER_MISSING"
	ErrCodeUnexpectedKind    ErrorCode = "UNEXPECTED_KIND"

	// Wire and transport errors
	ErrCodeProtocolDecode  ErrorCode = "PROTOCOL_DECODE"
	ErrCodeTransportClosed ErrorCode = "TRANSPORT_CLOSED"
	ErrCodeManagerClosed   ErrorCode = "MANAGER_CLOSED"
	ErrCodeHTTPStatus      ErrorCode = "HTTP_STATUS"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error carries a stable code next to the human message, so callers can
// branch on the condition without string matching.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail records key=value for logs and --verbose output.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// ToJSON renders the error, cause included, for machine consumers.
func (e *Error) ToJSON() string {
	out := struct {
		*Error
		Cause string `json:"cause,omitempty"`
	}{Error: e}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return string(data)
}

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
	}
	return false
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var liveErr *Error
	if stderrors.As(err, &liveErr) {
		return liveErr, true
	}
	return nil, false
}

// GetCode is the code of the outermost *Error in err's chain, or "".
func GetCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsInvariant reports whether err signals a programming error rather than
// a transient condition.
func IsInvariant(err error) bool {
	switch GetCode(err) {
	case ErrCodeListenerDuplicate, ErrCodeListenerMissing, ErrCodeUnexpectedKind:
		return true
	}
	return false
}

// IsPermanent reports whether retrying err can never succeed: invariant
// violations, a closed manager and the non-interactive rendering signal.
func IsPermanent(err error) bool {
	return IsInvariant(err) || Is(err, ErrCodeManagerClosed) || Is(err, ErrCodeServerRendering)
}
