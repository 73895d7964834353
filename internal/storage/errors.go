package storage

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the engine either wraps one of
// these or is an I/O error from the operating system.
var (
	// ErrRetryable marks conditions the caller may retry.
	ErrRetryable = errors.New("retryable")

	// ErrInvalidOperation marks misuse of the API by the caller.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Retryable errors.
var (
	ErrWriteTransactionTimeout = fmt.Errorf("%w: timed out waiting for the write transaction lock", ErrRetryable)
)

// Contract violations.
var (
	ErrTransactionAlreadyOpen = fmt.Errorf("%w: a transaction is already open on this context", ErrInvalidOperation)
	ErrNoTransaction          = fmt.Errorf("%w: no open transaction", ErrInvalidOperation)
	ErrReadOnlyTransaction    = fmt.Errorf("%w: cannot write in a read transaction", ErrInvalidOperation)
	ErrTransactionDisposed    = fmt.Errorf("%w: transaction already committed or disposed", ErrInvalidOperation)
	ErrEnvironmentClosed      = fmt.Errorf("%w: environment is closed", ErrInvalidOperation)
	ErrActiveTransactions     = fmt.Errorf("%w: transactions are still open", ErrInvalidOperation)
)

// CatastrophicError reports a store-wide unrecoverable condition. Once an
// environment has seen one it refuses further writes.
type CatastrophicError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CatastrophicError) Error() string {
	return fmt.Sprintf("catastrophic failure during %s, the data store is unusable and requires offline recovery: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CatastrophicError) Unwrap() error {
	return e.Err
}

// NewCatastrophicError wraps err as a catastrophic failure of op.
func NewCatastrophicError(op string, err error) *CatastrophicError {
	return &CatastrophicError{Op: op, Err: err}
}

// SchemaError reports a failed schema upgrade step. It is always fatal.
type SchemaError struct {
	From int
	To   int
	Err  error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("failed to update schema from version %d to %d: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err may succeed when retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsFatal reports whether err leaves the store unusable.
func IsFatal(err error) bool {
	var ce *CatastrophicError
	var se *SchemaError
	return errors.As(err, &ce) || errors.As(err, &se)
}

// IsInvalidOperation reports whether err is a caller contract violation.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}
