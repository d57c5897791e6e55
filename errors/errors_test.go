package errors

import (
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeResourceNotFound, "task not found")
	if err.Code != ErrCodeResourceNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeResourceNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeTransportClosed, "send failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeTransportClosed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeResourceNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("resource", "task").WithDetail("attempt", 3)
	if detailed.Details["resource"] != "task" {
		t.Error("WithDetail should add details")
	}
}

func TestIsLooksThroughWrappedErrors(t *testing.T) {
	inner := ResourceNotFound("task", "task-1")
	outer := Wrap(inner, ErrCodeInternal, "load failed")
	if !Is(outer, ErrCodeResourceNotFound) {
		t.Error("Is should find the code of a wrapped Error")
	}

	std := fmt.Errorf("context: %w", inner)
	if GetCode(std) != ErrCodeResourceNotFound {
		t.Errorf("expected code %s through fmt wrapping, got %s", ErrCodeResourceNotFound, GetCode(std))
	}
}

func TestErrorConstructors(t *testing.T) {
	err := DuplicateListener("01J0000000000000000000000")
	if err.Code != ErrCodeListenerDuplicate {
		t.Errorf("expected code %s, got %s", ErrCodeListenerDuplicate, err.Code)
	}
	if !IsInvariant(err) {
		t.Error("duplicate listener should be an invariant violation")
	}

	err = UnexpectedKind("subscribed", "task", "task-1")
	if err.Details["kind"] != "subscribed" {
		t.Error("UnexpectedKind should include kind detail")
	}

	err = HTTPStatus("GET", "http://localhost/workspace/task/x", 500)
	if err.Details["status"] != 500 {
		t.Error("HTTPStatus should include status detail")
	}
	if IsInvariant(err) {
		t.Error("HTTP errors are not invariant violations")
	}

	if IsInvariant(Reconnected("task", "task-1")) {
		t.Error("a reconnect during subscribe is transient")
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(ServerRendering()) {
		t.Error("server rendering is never retried")
	}
	if !IsPermanent(fmt.Errorf("subscribe: %w", New(ErrCodeManagerClosed, "closed"))) {
		t.Error("a closed manager is never retried")
	}
	if IsPermanent(ResourceNotFound("task", "t")) {
		t.Error("not_found during subscribe is retried under backoff")
	}
}

func TestAsError(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", ResourceNotFound("task", "t-1"))
	liveErr, ok := AsError(wrapped)
	if !ok || liveErr.Code != ErrCodeResourceNotFound {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %v", liveErr)
	}
	if _, ok := AsError(fmt.Errorf("plain")); ok {
		t.Error("plain errors carry no code")
	}
}
