package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the core services. Handlers translate these into
// HTTP statuses and user-facing messages; nothing below this package panics
// across the service boundary.
var (
	ErrUnauthorized         = errors.New("actor is not allowed to perform this action")
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidState         = errors.New("transition not allowed from current state")
	ErrInvalidDuration      = errors.New("requested duration is not offered by this coach")
	ErrDeadlineExpired      = errors.New("payment window expired")
	ErrPayoutUnconfigured   = errors.New("coach has no payout destination configured")
	ErrMisconfiguredPricing = errors.New("missing rate or fee data required to compute pricing")
	ErrNoPaymentFound       = errors.New("no captured payment to pay out")
	ErrPayoutInFlight       = errors.New("payout already in progress")
	ErrMalformedEvent       = errors.New("malformed provider event")
)

// ConflictKind distinguishes why a slot could not be booked, so callers can
// render "temporarily reserved, try again" vs "no longer available".
type ConflictKind string

const (
	ConflictSlotLocked ConflictKind = "slot_locked"
	ConflictSlotTaken  ConflictKind = "slot_taken"
	ConflictDuplicate  ConflictKind = "duplicate_request"
)

// ConflictError reports a scheduling overlap or a duplicate creation request.
type ConflictError struct {
	Kind ConflictKind
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictSlotLocked:
		return "slot is temporarily reserved, try again shortly"
	case ConflictDuplicate:
		return "an identical booking request is already being processed"
	default:
		return "slot is no longer available"
	}
}

func Conflict(kind ConflictKind) error {
	return &ConflictError{Kind: kind}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ProviderError wraps a failure reported by the payment provider. Retryable
// failures are left in a state that a later sweep or manual retry can recover.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func Provider(op string, retryable bool, err error) error {
	return &ProviderError{Op: op, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a provider failure worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
