package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("Conversation", "7"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("topic", "Topic cannot be empty"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "auth0|abc"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Forbidden wraps ErrForbidden",
			err:       Forbidden("Only support agents can assign conversations"),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("service: assigning: %w", NotFound("Conversation", "")),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("Conversation", "7"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"not found with id", NotFound("Conversation", "42"), "Conversation not found with id 42"},
		{"not found without id", NotFound("Conversation", ""), "Conversation not found"},
		{"validation", ValidationFailed("content", "Reply content cannot be empty"), "Reply content cannot be empty"},
		{"conflict", Conflict("user", "auth0|abc"), "user conflict with id auth0|abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ValidationFailed("topic", "Topic cannot be empty"))
	if got := Message(wrapped, "fallback"); got != "Topic cannot be empty" {
		t.Errorf("Message(wrapped) = %q", got)
	}
	if got := Message(errors.New("disk full"), "Failed to add reply"); got != "Failed to add reply" {
		t.Errorf("Message(plain) = %q", got)
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationFailed("category", "Category must be at most 100 characters")
	var appErr *AppError
	if !errors.As(fmt.Errorf("wrap: %w", err), &appErr) {
		t.Fatal("errors.As failed to extract *AppError")
	}
	if appErr.Field != "category" {
		t.Errorf("Field = %q, want category", appErr.Field)
	}
}
