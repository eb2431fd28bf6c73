package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(CorruptArchive, "manifest missing", cause)

	if err.Code != CorruptArchive {
		t.Errorf("Code = %v, want %v", err.Code, CorruptArchive)
	}
	if err.Message != "manifest missing" {
		t.Errorf("Message = %q, want %q", err.Message, "manifest missing")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      TransportFailed,
			message:   "archive not in repository",
			cause:     errors.New("no such file"),
			wantParts: []string{"TRANSPORT_FAILED", "archive not in repository", "no such file"},
		},
		{
			name:      "without cause",
			code:      NoSuchModel,
			message:   "no model for java/util/List",
			cause:     nil,
			wantParts: []string{"NO_SUCH_MODEL", "no model for java/util/List"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want it to contain %q", got, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("acquire: %w", Newf(PoolExhausted, "capacity %d reached", 1))

	if got := CodeOf(wrapped); got != PoolExhausted {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, PoolExhausted)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if HasCode(nil, InternalError) {
		t.Error("HasCode(nil) = true, want false")
	}
	if !HasCode(wrapped, PoolExhausted) {
		t.Error("HasCode(wrapped, PoolExhausted) = false, want true")
	}
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{NotFound, true},
		{NoCompatibleVersion, true},
		{NoSuchModel, true},
		{PoolExhausted, true},
		{CorruptArchive, true},
		{InvalidInput, false},
		{NotBorrowed, false},
		{InternalError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsUnavailable(New(tt.code, "x", nil)); got != tt.want {
				t.Errorf("IsUnavailable(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := New(NotFound, "no model", nil).WithDetails(map[string]string{"symbolicName": "org.eclipse.swt"})
	if err.Details == nil {
		t.Error("Details should be set")
	}
}
