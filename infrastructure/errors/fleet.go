package errors

import "net/http"

// Fleet resilience core error codes. These model the error kinds consumed
// by infrastructure/httputil's {kind, message, retryable} envelope rather
// than an exception hierarchy: every failure mode a caller needs to branch
// on is a distinct, inspectable code.
const (
	ErrCodeUnavailable      ErrorCode = "FLEET_8001"
	ErrCodeIntegrityFailure ErrorCode = "FLEET_8002"
	ErrCodeAdapterFailure   ErrorCode = "FLEET_8003"
	ErrCodeCancelled        ErrorCode = "FLEET_8004"
)

// Unavailable signals that no healthy, breaker-admitted instance or cluster
// shard could satisfy the request.
func Unavailable(message string) *ServiceError {
	return New(ErrCodeUnavailable, message, http.StatusServiceUnavailable)
}

// IntegrityFailure signals a checksum mismatch or unreadable/corrupt
// artifact (typically a backup archive).
func IntegrityFailure(message string, err error) *ServiceError {
	return Wrap(ErrCodeIntegrityFailure, message, http.StatusUnprocessableEntity, err)
}

// AdapterFailure wraps a failure from an external collaborator (database
// failover adapter, DNS updater, remote storage upload, ...).
func AdapterFailure(adapter string, err error) *ServiceError {
	return Wrap(ErrCodeAdapterFailure, "adapter call failed", http.StatusBadGateway, err).
		WithDetails("adapter", adapter)
}

// Cancelled signals that a long-running operation was aborted via context
// cancellation before completion.
func Cancelled(operation string) *ServiceError {
	return New(ErrCodeCancelled, "operation cancelled", 499).
		WithDetails("operation", operation)
}

// Retryable reports whether an error kind is safe for a caller to retry
// without side effects. Validation, NotFound, Conflict, and IntegrityFailure
// are never retryable; Unavailable, Timeout, and AdapterFailure are.
func Retryable(err error) bool {
	svcErr := GetServiceError(err)
	if svcErr == nil {
		return false
	}
	switch svcErr.Code {
	case ErrCodeUnavailable, ErrCodeTimeout, ErrCodeAdapterFailure, ErrCodeDatabaseError, ErrCodeExternalAPI:
		return true
	default:
		return false
	}
}
