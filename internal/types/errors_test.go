package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidHooks,
		Message: `Missing "template"`,
	}

	expected := `validation_invalid_hooks: Missing "template"`
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := NewAppError(ErrCodeInternalDB, "failed to read collection", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is did not find the underlying error")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidHooks, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeAuthInvalidCreds, http.StatusUnauthorized},
		{ErrCodeNotFoundObject, http.StatusNotFound},
		{ErrCodeConflictExists, http.StatusConflict},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeInternalTemplate, http.StatusInternalServerError},
		{ErrCodeInternalHookConfig, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationInvalidHooks, "bad", nil, map[string]any{"a": 1})
	derived := base.WithDetails(map[string]any{"b": 2})

	if len(base.Details) != 1 {
		t.Errorf("original details mutated: %v", base.Details)
	}
	if derived.Details["a"] != 1 || derived.Details["b"] != 2 {
		t.Errorf("merged details = %v", derived.Details)
	}
}

func TestIsNotFound(t *testing.T) {
	nf := NewAppError(ErrCodeNotFoundObject, "group not found", nil)
	wrapped := fmt.Errorf("lookup: %w", nf)

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(NewAppError(ErrCodeInternalDB, "boom", nil)) {
		t.Error("internal error reported as not found")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain error reported as not found")
	}
	if ErrorCodeOf(wrapped) != ErrCodeNotFoundObject {
		t.Errorf("ErrorCodeOf = %q", ErrorCodeOf(wrapped))
	}
}
