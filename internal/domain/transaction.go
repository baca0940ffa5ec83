package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResolutionOutcome is the arbitration decision applied to a disputed milestone.
type ResolutionOutcome string

const (
	// OutcomeRelease settles the dispute in the seller's favor: the milestone
	// is approved and its value released from escrow.
	OutcomeRelease ResolutionOutcome = "release"
	// OutcomeRefund settles the dispute in the buyer's favor: the milestone is
	// cancelled and its value refunded.
	OutcomeRefund ResolutionOutcome = "refund"
)

// Transaction is the aggregate root. It exclusively owns its milestones and
// its escrow ledger; no milestone exists outside a transaction. The aggregate
// enforces that milestone values always sum to the transaction total, so every
// release is covered by held funds.
//
// All mutating methods are pure state-machine steps: they validate legality
// from the current state, apply the transition and any implied fund movement,
// and return the Event describing it. Role checks happen in the authorization
// layer before these methods run.
type Transaction struct {
	ID          uuid.UUID
	Title       string
	Description string
	BuyerID     string
	SellerID    string
	TotalValue  decimal.Decimal
	Ledger      Ledger
	Milestones  []*Milestone
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTransaction creates a transaction and its milestones atomically. The
// total value is computed from the milestone sum and is immutable thereafter.
func NewTransaction(buyerID, sellerID, title, description string, specs []MilestoneSpec, now time.Time) (*Transaction, *Event, error) {
	if title == "" {
		return nil, nil, NewValidationError("title", "title is required")
	}

	if buyerID == "" {
		return nil, nil, NewValidationError("buyer_id", "buyer is required")
	}

	if sellerID == "" {
		return nil, nil, NewValidationError("seller_id", "seller is required")
	}

	if buyerID == sellerID {
		return nil, nil, NewValidationError("seller_id", "buyer and seller must be distinct parties")
	}

	if len(specs) == 0 {
		return nil, nil, NewValidationError("milestones", "at least one milestone is required")
	}

	t := &Transaction{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		BuyerID:     buyerID,
		SellerID:    sellerID,
		TotalValue:  decimal.Zero,
		Ledger:      NewLedger(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for i, spec := range specs {
		if err := spec.validate("milestones[" + strconv.Itoa(i) + "]"); err != nil {
			return nil, nil, err
		}

		t.Milestones = append(t.Milestones, &Milestone{
			ID:            uuid.New(),
			TransactionID: t.ID,
			Title:         spec.Title,
			Description:   spec.Description,
			Value:         spec.Value,
			Status:        MilestonePending,
			Position:      i,
			CreatedAt:     now,
			UpdatedAt:     now,
		})

		t.TotalValue = t.TotalValue.Add(spec.Value)
	}

	event := newEvent(t, nil, buyerID, EventTransactionCreated, "", string(TransactionPendingFunding), now)

	return t, event, nil
}

// Status derives the transaction-level state from the ledger and milestones.
// A disputed milestone propagates regardless of the other milestones' states.
func (t *Transaction) Status() TransactionStatus {
	if !t.Ledger.Funded() {
		return TransactionPendingFunding
	}

	allTerminal := true
	anyApproved := false

	for _, m := range t.Milestones {
		if m.Status == MilestoneDisputed {
			return TransactionDisputed
		}

		if !m.Status.Terminal() {
			allTerminal = false
		}

		if m.Status == MilestoneApproved {
			anyApproved = true
		}
	}

	if allTerminal {
		if anyApproved {
			return TransactionCompleted
		}

		return TransactionClosed
	}

	return TransactionInEscrow
}

// Milestone returns the owned milestone with the given id.
func (t *Transaction) Milestone(id uuid.UUID) (*Milestone, error) {
	for _, m := range t.Milestones {
		if m.ID == id {
			return m, nil
		}
	}

	return nil, ErrNotFound
}

// Fund records the buyer's escrow deposit. The amount must equal the
// transaction total exactly.
func (t *Transaction) Fund(actorID string, amount decimal.Decimal, now time.Time) (*Event, error) {
	if err := ValidateAmount("amount", amount); err != nil {
		return nil, err
	}

	from := t.Status()

	if err := t.Ledger.Fund(amount, t.TotalValue); err != nil {
		return nil, err
	}

	if err := t.Ledger.CheckConservation(); err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, nil, actorID, EventEscrowFunded, string(from), string(t.Status()), now), nil
}

// SubmitWork records a seller submission on a milestone.
func (t *Transaction) SubmitWork(actorID string, milestoneID uuid.UUID, details string, now time.Time) (*Event, error) {
	m, err := t.actionable(milestoneID)
	if err != nil {
		return nil, err
	}

	from, err := m.submit(details, now)
	if err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, &m.ID, actorID, EventWorkSubmitted, string(from), string(m.Status), now), nil
}

// Approve accepts submitted work and releases the milestone's value from
// escrow. The release is atomic with the status change: a ledger failure
// aborts the transition.
func (t *Transaction) Approve(actorID string, milestoneID uuid.UUID, now time.Time) (*Event, error) {
	// Re-approval is reported as AlreadyApproved even when the aggregate has
	// since completed, so callers can tell a duplicate from an illegal move.
	if m, err := t.Milestone(milestoneID); err == nil && m.Status == MilestoneApproved {
		return nil, ErrAlreadyApproved
	}

	m, err := t.actionable(milestoneID)
	if err != nil {
		return nil, err
	}

	from, err := m.approve(now)
	if err != nil {
		return nil, err
	}

	if err := t.Ledger.Release(m.Value); err != nil {
		return nil, err
	}

	if err := t.Ledger.CheckConservation(); err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, &m.ID, actorID, EventMilestoneApproved, string(from), string(m.Status), now), nil
}

// RequestRevision sends submitted work back to the seller with a reason.
func (t *Transaction) RequestRevision(actorID string, milestoneID uuid.UUID, reason string, now time.Time) (*Event, error) {
	m, err := t.actionable(milestoneID)
	if err != nil {
		return nil, err
	}

	from, err := m.requestRevision(reason, now)
	if err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, &m.ID, actorID, EventRevisionRequested, string(from), string(m.Status), now), nil
}

// OpenDispute escalates a milestone to arbitration. Unlike other actions it is
// permitted while the transaction is already DISPUTED on another milestone.
func (t *Transaction) OpenDispute(actorID string, milestoneID uuid.UUID, now time.Time) (*Event, error) {
	if !t.Ledger.Funded() {
		return nil, NewTransitionError(ActionOpenDispute, MilestonePending)
	}

	if t.Status() == TransactionClosed || t.Status() == TransactionCompleted {
		return nil, DomainError{
			Message: "transaction is closed",
			kind:    ErrInvalidTransition,
		}
	}

	m, err := t.Milestone(milestoneID)
	if err != nil {
		return nil, err
	}

	from, err := m.dispute(now)
	if err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, &m.ID, actorID, EventDisputeOpened, string(from), string(m.Status), now), nil
}

// ResolveDispute settles a disputed milestone through external arbitration,
// reusing the ledger release/refund operations.
func (t *Transaction) ResolveDispute(actorID string, milestoneID uuid.UUID, outcome ResolutionOutcome, now time.Time) (*Event, error) {
	m, err := t.Milestone(milestoneID)
	if err != nil {
		return nil, err
	}

	var target MilestoneStatus

	switch outcome {
	case OutcomeRelease:
		target = MilestoneApproved
	case OutcomeRefund:
		target = MilestoneCancelled
	default:
		return nil, NewValidationError("outcome", "resolution outcome must be release or refund")
	}

	from, err := m.resolve(target, now)
	if err != nil {
		return nil, err
	}

	if target == MilestoneApproved {
		err = t.Ledger.Release(m.Value)
	} else {
		err = t.Ledger.Refund(m.Value)
	}

	if err != nil {
		return nil, err
	}

	if err := t.Ledger.CheckConservation(); err != nil {
		return nil, err
	}

	t.UpdatedAt = now

	return newEvent(t, &m.ID, actorID, EventDisputeResolved, string(from), string(m.Status), now), nil
}

// actionable gates the review-cycle actions: the escrow must be funded and the
// transaction must not be closed or frozen by an open dispute.
func (t *Transaction) actionable(milestoneID uuid.UUID) (*Milestone, error) {
	status := t.Status()

	switch status {
	case TransactionPendingFunding:
		return nil, DomainError{
			Message: "escrow is not funded yet",
			kind:    ErrInvalidTransition,
		}
	case TransactionDisputed:
		return nil, DomainError{
			Message: "transaction is frozen by an open dispute",
			kind:    ErrInvalidTransition,
		}
	case TransactionCompleted, TransactionClosed:
		return nil, DomainError{
			Message: "transaction is closed",
			kind:    ErrInvalidTransition,
		}
	}

	return t.Milestone(milestoneID)
}
