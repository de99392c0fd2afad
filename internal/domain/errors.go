package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInsufficientFunds signals that a lock or deduct would overdraw the customer's balance.
	// It is user-facing and must never leave partial state behind.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientPoints signals a point spend larger than the available point balance.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInvalidAmount rejects zero or negative monetary/point amounts before any mutation.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidStateTransition is returned when a lifecycle action is not legal
	// from the transaction's current state. No mutation occurs.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConflict marks a lost optimistic race; the service retries it a bounded
	// number of times before surfacing it.
	ErrConflict = errors.New("conflict")
	// ErrExternalDependency wraps storage/broker failures so callers can
	// distinguish infrastructure faults from domain rejections.
	ErrExternalDependency = errors.New("external dependency failure")
	// ErrDisputeOpen freezes a transaction: no completion, cancellation or sweep
	// may touch it while a non-terminal dispute references it.
	ErrDisputeOpen         = errors.New("transaction has an open dispute")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrPointCeilingReached = errors.New("point ceiling reached")
	ErrProductUnavailable  = errors.New("product not available")
)
