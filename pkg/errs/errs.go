// Package errs defines the error kinds shared by the sync and classification engines.
// Callers wrap a cause with a kind via fmt.Errorf("%w: %w", errs.ErrX, cause)
// and test with errors.Is.
package errs

import "errors"

var (
	// ErrUnsupportedDialect is fatal for the call and never retried.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	// ErrConnectFailed is recorded on the instance record and does not abort a session.
	ErrConnectFailed = errors.New("connect failed")
	// ErrQueryFailed marks a sub-query the adapter skipped.
	ErrQueryFailed = errors.New("query failed")
	// ErrValidationFailed marks an account skipped during reconciliation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrPersistence rolls back the instance transaction.
	ErrPersistence = errors.New("persistence error")
	// ErrBatchClassificationFailed marks a classification batch failed.
	ErrBatchClassificationFailed = errors.New("batch classification failed")

	ErrNoRules         = errors.New("no active classification rules")
	ErrNotFound        = errors.New("not found")
	ErrLockNotAcquired = errors.New("scope lock is held by another run")
	ErrTaskTimeout     = errors.New("task execution timed out")
)
