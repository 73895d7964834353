package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClasses(t *testing.T) {
	cause := errors.New("disk on fire")

	tests := []struct {
		name             string
		err              error
		retryable        bool
		fatal            bool
		invalidOperation bool
	}{
		{"write timeout", ErrWriteTransactionTimeout, true, false, false},
		{"wrapped write timeout", fmt.Errorf("begin: %w", ErrWriteTransactionTimeout), true, false, false},
		{"transaction already open", ErrTransactionAlreadyOpen, false, false, true},
		{"no transaction", ErrNoTransaction, false, false, true},
		{"read only", ErrReadOnlyTransaction, false, false, true},
		{"disposed", ErrTransactionDisposed, false, false, true},
		{"closed", ErrEnvironmentClosed, false, false, true},
		{"active transactions", ErrActiveTransactions, false, false, true},
		{"catastrophic", NewCatastrophicError("flush", cause), false, true, false},
		{"wrapped catastrophic", fmt.Errorf("commit: %w", NewCatastrophicError("journal write", cause)), false, true, false},
		{"schema", &SchemaError{From: 1, To: 2, Err: cause}, false, true, false},
		{"plain", cause, false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := IsInvalidOperation(tt.err); got != tt.invalidOperation {
				t.Errorf("IsInvalidOperation() = %v, want %v", got, tt.invalidOperation)
			}
		})
	}
}

func TestCatastrophicError(t *testing.T) {
	cause := errors.New("short write")
	err := NewCatastrophicError("journal write", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	msg := err.Error()
	if !strings.Contains(msg, "journal write") || !strings.Contains(msg, "short write") {
		t.Errorf("Error() = %q, want operation and cause", msg)
	}
}

func TestSchemaError(t *testing.T) {
	cause := errors.New("boom")
	err := &SchemaError{From: 3, To: 4, Err: cause}

	if got, want := err.Error(), "failed to update schema from version 3 to 4: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}
