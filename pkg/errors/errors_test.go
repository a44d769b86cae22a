package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfiguration, "unknown option: %s", "fPIC")

	if err.Code != ErrCodeConfiguration {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConfiguration)
	}

	if err.Message != "unknown option: fPIC" {
		t.Errorf("Message = %v, want %v", err.Message, "unknown option: fPIC")
	}

	expected := "CONFIGURATION_ERROR: unknown option: fPIC"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("exit status 128")
	err := Wrap(ErrCodeAcquisition, cause, "clone failed")

	if err.Code != ErrCodeAcquisition {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAcquisition)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodePackaging, "test"),
			code:     ErrCodePackaging,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodePackaging, "test"),
			code:     ErrCodeBuildTool,
			expected: false,
		},
		{
			name:     "outer code wins",
			err:      Wrap(ErrCodeBuildTool, New(ErrCodeInvalidInput, "inner"), "outer"),
			code:     ErrCodeBuildTool,
			expected: true,
		},
		{
			name:     "wrapped with fmt",
			err:      fmt.Errorf("stage build: %w", New(ErrCodeBuildTool, "cmake")),
			code:     ErrCodeBuildTool,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeAcquisition, "test"),
			expected: ErrCodeAcquisition,
		},
		{
			name:     "canceled",
			err:      fmt.Errorf("clone: %w", context.Canceled),
			expected: ErrCodeCanceled,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidInput, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "nested",
			err:      Wrap(ErrCodePackaging, New(ErrCodePackaging, "no libraries"), "component LibDataChannel"),
			expected: "component LibDataChannel: no libraries",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	if err := Join(ErrCodeConfiguration, nil); err != nil {
		t.Errorf("Join(nil) = %v, want nil", err)
	}

	err := Join(ErrCodeConfiguration, []error{errors.New("a"), errors.New("b")})
	if !Is(err, ErrCodeConfiguration) {
		t.Errorf("Join() code = %v, want %v", GetCode(err), ErrCodeConfiguration)
	}
	if !strings.Contains(err.Error(), "2 validation errors") {
		t.Errorf("Join() = %q, should mention the error count", err.Error())
	}
}
