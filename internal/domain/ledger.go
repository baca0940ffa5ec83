package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Ledger tracks the escrow buckets for a single transaction. Conservation
// invariant: held == released + refunded + available, with available >= 0.
// Released and refunded only grow; held is set exactly once by Fund.
type Ledger struct {
	Held     decimal.Decimal
	Released decimal.Decimal
	Refunded decimal.Decimal
}

// NewLedger returns an empty, unfunded ledger.
func NewLedger() Ledger {
	return Ledger{
		Held:     decimal.Zero,
		Released: decimal.Zero,
		Refunded: decimal.Zero,
	}
}

// Funded reports whether the buyer deposit has been recorded.
func (l Ledger) Funded() bool {
	return l.Held.IsPositive()
}

// Available returns the balance still held in custody.
func (l Ledger) Available() decimal.Decimal {
	return l.Held.Sub(l.Released).Sub(l.Refunded)
}

// Fund records the buyer deposit. The amount must match the transaction total
// exactly; partial funding is not permitted.
func (l *Ledger) Fund(amount, total decimal.Decimal) error {
	if l.Funded() {
		return ErrAlreadyFunded
	}

	if !amount.Equal(total) {
		return DomainError{
			Field:   "amount",
			Message: fmt.Sprintf("deposit %s does not match transaction total %s", amount, total),
			kind:    ErrAmountMismatch,
		}
	}

	l.Held = amount

	return nil
}

// Release moves amount from available custody to the released bucket. A
// release exceeding the available balance is an internal-consistency failure,
// not a user error: milestone values always sum to the held total.
func (l *Ledger) Release(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("release of %s: %w", amount, ErrInternalConsistency)
	}

	if l.Available().LessThan(amount) {
		return fmt.Errorf("release of %s exceeds available %s: %w", amount, l.Available(), ErrInsufficientHeldFunds)
	}

	l.Released = l.Released.Add(amount)

	return nil
}

// Refund moves amount from available custody to the refunded bucket.
// Symmetric to Release.
func (l *Ledger) Refund(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("refund of %s: %w", amount, ErrInternalConsistency)
	}

	if l.Available().LessThan(amount) {
		return fmt.Errorf("refund of %s exceeds available %s: %w", amount, l.Available(), ErrInsufficientHeldFunds)
	}

	l.Refunded = l.Refunded.Add(amount)

	return nil
}

// CheckConservation verifies the custody invariants hold. It is evaluated
// after every fund movement; a failure aborts the enclosing transition.
func (l Ledger) CheckConservation() error {
	if l.Available().IsNegative() {
		return fmt.Errorf("available balance %s is negative: %w", l.Available(), ErrInternalConsistency)
	}

	if l.Released.IsNegative() || l.Refunded.IsNegative() || l.Held.IsNegative() {
		return fmt.Errorf("ledger bucket is negative (held=%s released=%s refunded=%s): %w",
			l.Held, l.Released, l.Refunded, ErrInternalConsistency)
	}

	return nil
}
