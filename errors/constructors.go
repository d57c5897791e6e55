package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ResourceNotFound is returned when the server answers a subscribe with not_found.
func ResourceNotFound(resourceType string, uuid string) *Error {
	return New(ErrCodeResourceNotFound, fmt.Sprintf("%s %s does not exist", resourceType, uuid)).
		WithDetail("resource", resourceType).
		WithDetail("uuid", uuid)
}

// Reconnected is returned when the connection was re-established while a
// subscribe exchange was still waiting for its response.
func Reconnected(resourceType string, uuid string) *Error {
	return New(ErrCodeReconnected, fmt.Sprintf("reconnected while subscribing to %s %s", resourceType, uuid)).
		WithDetail("resource", resourceType).
		WithDetail("uuid", uuid)
}

// ServerRendering is the result of a subscribe attempted outside an interactive context.
func ServerRendering() *Error {
	return New(ErrCodeServerRendering, "not running in an interactive context, subscriptions are disabled")
}

// DuplicateListener creates an invariant error for a listener added twice.
func DuplicateListener(id string) *Error {
	return New(ErrCodeListenerDuplicate, fmt.Sprintf("listener %s is already registered", id)).
		WithDetail("listener", id)
}

// MissingListener creates an invariant error for removing an unknown listener.
func MissingListener(id string) *Error {
	return New(ErrCodeListenerMissing, fmt.Sprintf("listener %s is not registered", id)).
		WithDetail("listener", id)
}

// UnexpectedKind creates an invariant error for a message kind a listener never asked for.
func UnexpectedKind(kind string, resourceType string, uuid string) *Error {
	return New(ErrCodeUnexpectedKind, fmt.Sprintf("unexpected message kind %q for %s %s", kind, resourceType, uuid)).
		WithDetail("kind", kind).
		WithDetail("resource", resourceType).
		WithDetail("uuid", uuid)
}

// HTTPStatus creates an error for a non-success REST response.
func HTTPStatus(method, url string, status int) *Error {
	return New(ErrCodeHTTPStatus, fmt.Sprintf("%s %s returned status %d", method, url, status)).
		WithDetail("method", method).
		WithDetail("url", url).
		WithDetail("status", status)
}
