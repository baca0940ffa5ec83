package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors carry stable machine-readable codes as their message so the
// HTTP layer can map them without string matching. Wrap them with %w and test
// with errors.Is.
var (
	// ErrValidation indicates malformed input rejected before any state was touched.
	ErrValidation = errors.New("validation_error")
	// ErrAuthorizationDenied indicates the actor is not allowed to perform the action.
	ErrAuthorizationDenied = errors.New("authorization_denied")
	// ErrInvalidTransition indicates the action is not a legal move from the current state.
	ErrInvalidTransition = errors.New("invalid_transition")
	// ErrAlreadyApproved indicates an approve call on a milestone that is already approved.
	ErrAlreadyApproved = errors.New("already_approved")
	// ErrAlreadyFunded indicates a fund call on a transaction whose escrow is already funded.
	ErrAlreadyFunded = errors.New("already_funded")
	// ErrAmountMismatch indicates the funded amount differs from the transaction total.
	ErrAmountMismatch = errors.New("amount_mismatch")
	// ErrContended indicates the per-transaction lock could not be acquired in time.
	// The operation did not run and may be retried.
	ErrContended = errors.New("contended")
	// ErrNotFound indicates the referenced transaction or milestone does not exist.
	ErrNotFound = errors.New("not_found")
	// ErrInternalConsistency indicates a custody invariant was violated. This is
	// never a user error: the transition must halt and operators must be alerted.
	ErrInternalConsistency = errors.New("internal_consistency")
	// ErrInsufficientHeldFunds indicates a release or refund would exceed the
	// available escrow balance. Unreachable while the ledger invariants hold.
	ErrInsufficientHeldFunds = fmt.Errorf("insufficient_held_funds: %w", ErrInternalConsistency)
	// ErrUnavailable indicates a collaborator (storage, broker) failed; callers
	// should retry with backoff.
	ErrUnavailable = errors.New("unavailable")
)

// DomainError is a structured rejection with the field that caused it.
type DomainError struct {
	Field   string
	Message string
	kind    error
}

// Error returns the formatted error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.kind, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.kind, e.Message, e.Field)
}

// Unwrap exposes the sentinel kind for errors.Is.
func (e DomainError) Unwrap() error {
	return e.kind
}

// NewValidationError creates a validation rejection for a specific field.
func NewValidationError(field, message string) error {
	return DomainError{Field: field, Message: message, kind: ErrValidation}
}

// NewTransitionError creates an illegal-move rejection carrying the attempted action.
func NewTransitionError(action Action, from MilestoneStatus) error {
	return DomainError{
		Message: fmt.Sprintf("action %s is not valid from milestone status %s", action, from),
		kind:    ErrInvalidTransition,
	}
}

// NewDenialError creates an authorization denial with a reason.
func NewDenialError(reason string) error {
	return DomainError{Message: reason, kind: ErrAuthorizationDenied}
}
