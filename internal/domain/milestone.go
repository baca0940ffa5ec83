package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Milestone is a sub-deliverable of a transaction with its own value and
// approval lifecycle. Milestones are created in a batch atomically with their
// transaction and are never deleted; history is retained for audit.
type Milestone struct {
	ID                uuid.UUID
	TransactionID     uuid.UUID
	Title             string
	Description       string
	Value             decimal.Decimal
	Status            MilestoneStatus
	SubmissionDetails string
	RevisionReason    string
	Position          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MilestoneSpec is the creation-time input for one milestone.
type MilestoneSpec struct {
	Title       string
	Description string
	Value       decimal.Decimal
}

// maxAmountScale is the maximum number of decimal places accepted for money.
const maxAmountScale = 2

// ValidateAmount rejects non-positive amounts and amounts with more than two
// decimal places before they enter the ledger.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError(field, "amount must be greater than zero")
	}

	if amount.Exponent() < -maxAmountScale {
		return NewValidationError(field, "amount must have at most two decimal places")
	}

	return nil
}

func (s MilestoneSpec) validate(field string) error {
	if s.Title == "" {
		return NewValidationError(field+".title", "title is required")
	}

	return ValidateAmount(field+".value", s.Value)
}

// submit records a seller submission and moves the milestone under review.
// Valid from PENDING and, as a resubmission, from REVISION_REQUESTED.
func (m *Milestone) submit(details string, now time.Time) (MilestoneStatus, error) {
	if details == "" {
		return "", NewValidationError("submission_details", "submission details are required")
	}

	from := m.Status
	if from != MilestonePending && from != MilestoneRevisionRequested {
		return "", NewTransitionError(ActionSubmitWork, from)
	}

	m.Status = MilestoneAwaitingReview
	m.SubmissionDetails = details
	m.UpdatedAt = now

	return from, nil
}

// approve marks the milestone approved. Re-approving is reported distinctly
// so callers know the release already happened.
func (m *Milestone) approve(now time.Time) (MilestoneStatus, error) {
	from := m.Status
	if from == MilestoneApproved {
		return "", ErrAlreadyApproved
	}

	if from != MilestoneAwaitingReview {
		return "", NewTransitionError(ActionApprove, from)
	}

	m.Status = MilestoneApproved
	m.UpdatedAt = now

	return from, nil
}

func (m *Milestone) requestRevision(reason string, now time.Time) (MilestoneStatus, error) {
	if reason == "" {
		return "", NewValidationError("reason", "revision reason is required")
	}

	from := m.Status
	if from != MilestoneAwaitingReview {
		return "", NewTransitionError(ActionRequestRevision, from)
	}

	m.Status = MilestoneRevisionRequested
	m.RevisionReason = reason
	m.UpdatedAt = now

	return from, nil
}

// dispute escalates the milestone. Either party may escalate from any
// non-terminal, non-disputed state.
func (m *Milestone) dispute(now time.Time) (MilestoneStatus, error) {
	from := m.Status
	if from.Terminal() || from == MilestoneDisputed {
		return "", NewTransitionError(ActionOpenDispute, from)
	}

	m.Status = MilestoneDisputed
	m.UpdatedAt = now

	return from, nil
}

// resolve settles a disputed milestone to a terminal state. to must be
// APPROVED (funds released to seller) or CANCELLED (funds refunded to buyer).
func (m *Milestone) resolve(to MilestoneStatus, now time.Time) (MilestoneStatus, error) {
	from := m.Status
	if from != MilestoneDisputed {
		return "", NewTransitionError(ActionResolveDispute, from)
	}

	if to != MilestoneApproved && to != MilestoneCancelled {
		return "", NewValidationError("outcome", "resolution outcome must be release or refund")
	}

	m.Status = to
	m.UpdatedAt = now

	return from, nil
}
