package errs

import (
	"fmt"
	"net/http"
	"testing"
)

func TestNewError_KnownCode(t *testing.T) {
	err := NewError(ErrNotQueued)

	if err.Code != ErrNotQueued {
		t.Errorf("Expected code %d, got %d", ErrNotQueued, err.Code)
	}
	if err.Status != http.StatusOK {
		t.Errorf("Expected default status 200, got %d", err.Status)
	}
}

func TestNewError_FormatsDetails(t *testing.T) {
	err := NewError(ErrInvalidGroupSize, 2)

	if err.Message != "Group size must be at least 2." {
		t.Errorf("Unexpected message: %q", err.Message)
	}
	if err.Status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", err.Status)
	}
}

func TestNewError_UnknownCodeFallsBack(t *testing.T) {
	err := NewError(424242)

	if err.Code != ErrUnknown {
		t.Errorf("Expected ErrUnknown, got %d", err.Code)
	}
}

func TestNewError_DoesNotMutateTemplate(t *testing.T) {
	first := NewError(ErrUnsupportedEvent, "ping")
	second := NewError(ErrUnsupportedEvent, "pong")

	if first.Message == second.Message {
		t.Errorf("Expected distinct messages, both were %q", first.Message)
	}
	if errorMap[ErrUnsupportedEvent].Message != "Unsupported event %q." {
		t.Error("Template message was mutated")
	}
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("leave queue: %w", NewError(ErrNotQueued))

	if !HasCode(wrapped, ErrNotQueued) {
		t.Error("Expected HasCode to see through fmt.Errorf wrapping")
	}
	if HasCode(wrapped, ErrUserNotFound) {
		t.Error("Expected HasCode to reject a different code")
	}
	if HasCode(fmt.Errorf("plain"), ErrNotQueued) {
		t.Error("Expected HasCode to reject plain errors")
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Error("Expected nil for nil error")
	}
	if got := From(NewError(ErrForbidden)); got.Code != ErrForbidden {
		t.Errorf("Expected ErrForbidden, got %d", got.Code)
	}
	if got := From(fmt.Errorf("disk on fire")); got.Code != ErrUnknown {
		t.Errorf("Expected ErrUnknown for foreign error, got %d", got.Code)
	}
}
