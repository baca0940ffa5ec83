package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fourMilestoneSpecs(t *testing.T) []MilestoneSpec {
	t.Helper()

	specs := make([]MilestoneSpec, 0, 4)
	for _, title := range []string{"Discovery", "Design", "Build", "Handover"} {
		specs = append(specs, MilestoneSpec{Title: title, Value: dec(t, "50.00")})
	}

	return specs
}

func fundedTransaction(t *testing.T) *Transaction {
	t.Helper()

	txn, _, err := NewTransaction("buyer-1", "seller-1", "Website redesign", "", fourMilestoneSpecs(t), testNow)
	require.NoError(t, err)

	_, err = txn.Fund("buyer-1", dec(t, "200.00"), testNow)
	require.NoError(t, err)

	return txn
}

func TestNewTransaction(t *testing.T) {
	t.Run("computes the total from the milestone sum", func(t *testing.T) {
		txn, event, err := NewTransaction("buyer-1", "seller-1", "Website redesign", "desc", fourMilestoneSpecs(t), testNow)

		require.NoError(t, err)
		assert.True(t, txn.TotalValue.Equal(dec(t, "200.00")))
		assert.Equal(t, TransactionPendingFunding, txn.Status())
		assert.Len(t, txn.Milestones, 4)
		require.NotNil(t, event)
		assert.Equal(t, EventTransactionCreated, event.Kind)

		for i, m := range txn.Milestones {
			assert.Equal(t, MilestonePending, m.Status)
			assert.Equal(t, i, m.Position)
			assert.Equal(t, txn.ID, m.TransactionID)
		}
	})

	t.Run("rejects a non-positive milestone value", func(t *testing.T) {
		specs := []MilestoneSpec{{Title: "Only", Value: decimal.Zero}}

		_, _, err := NewTransaction("buyer-1", "seller-1", "Bad", "", specs, testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects more than two decimal places", func(t *testing.T) {
		specs := []MilestoneSpec{{Title: "Only", Value: dec(t, "10.001")}}

		_, _, err := NewTransaction("buyer-1", "seller-1", "Bad", "", specs, testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects buyer acting as their own seller", func(t *testing.T) {
		_, _, err := NewTransaction("u-1", "u-1", "Self deal", "", fourMilestoneSpecs(t), testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects an empty milestone set", func(t *testing.T) {
		_, _, err := NewTransaction("buyer-1", "seller-1", "Empty", "", nil, testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestFund(t *testing.T) {
	t.Run("moves the transaction into escrow", func(t *testing.T) {
		txn, _, err := NewTransaction("buyer-1", "seller-1", "Job", "", fourMilestoneSpecs(t), testNow)
		require.NoError(t, err)

		event, err := txn.Fund("buyer-1", dec(t, "200.00"), testNow)

		require.NoError(t, err)
		assert.Equal(t, TransactionInEscrow, txn.Status())
		assert.Equal(t, EventEscrowFunded, event.Kind)
		assert.Equal(t, string(TransactionPendingFunding), event.FromStatus)
		assert.Equal(t, string(TransactionInEscrow), event.ToStatus)
	})

	t.Run("fails AlreadyFunded on a second deposit", func(t *testing.T) {
		txn := fundedTransaction(t)

		_, err := txn.Fund("buyer-1", dec(t, "200.00"), testNow)

		assert.ErrorIs(t, err, ErrAlreadyFunded)
	})

	t.Run("fails AmountMismatch on a partial deposit", func(t *testing.T) {
		txn, _, err := NewTransaction("buyer-1", "seller-1", "Job", "", fourMilestoneSpecs(t), testNow)
		require.NoError(t, err)

		_, err = txn.Fund("buyer-1", dec(t, "100.00"), testNow)

		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.Equal(t, TransactionPendingFunding, txn.Status())
	})
}

func TestReviewCycle(t *testing.T) {
	// submit → request_revision → resubmit → approve, with the ledger
	// releasing exactly one milestone value.
	txn := fundedTransaction(t)
	milestone := txn.Milestones[0]

	event, err := txn.SubmitWork("seller-1", milestone.ID, "draft v1", testNow)
	require.NoError(t, err)
	assert.Equal(t, MilestoneAwaitingReview, milestone.Status)
	assert.Equal(t, EventWorkSubmitted, event.Kind)

	event, err = txn.RequestRevision("buyer-1", milestone.ID, "needs more detail", testNow)
	require.NoError(t, err)
	assert.Equal(t, MilestoneRevisionRequested, milestone.Status)
	assert.Equal(t, "needs more detail", milestone.RevisionReason)
	assert.Equal(t, EventRevisionRequested, event.Kind)

	_, err = txn.SubmitWork("seller-1", milestone.ID, "draft v2", testNow)
	require.NoError(t, err)
	assert.Equal(t, "draft v2", milestone.SubmissionDetails)

	event, err = txn.Approve("buyer-1", milestone.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, MilestoneApproved, milestone.Status)
	assert.Equal(t, EventMilestoneApproved, event.Kind)
	assert.True(t, txn.Ledger.Released.Equal(dec(t, "50.00")))
}

func TestSubmitWork(t *testing.T) {
	t.Run("requires a submission payload", func(t *testing.T) {
		txn := fundedTransaction(t)

		_, err := txn.SubmitWork("seller-1", txn.Milestones[0].ID, "", testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("fails InvalidTransition from APPROVED", func(t *testing.T) {
		txn := fundedTransaction(t)
		milestone := txn.Milestones[0]
		_, err := txn.SubmitWork("seller-1", milestone.ID, "work", testNow)
		require.NoError(t, err)
		_, err = txn.Approve("buyer-1", milestone.ID, testNow)
		require.NoError(t, err)

		_, err = txn.SubmitWork("seller-1", milestone.ID, "more work", testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("fails InvalidTransition before funding", func(t *testing.T) {
		txn, _, err := NewTransaction("buyer-1", "seller-1", "Job", "", fourMilestoneSpecs(t), testNow)
		require.NoError(t, err)

		_, err = txn.SubmitWork("seller-1", txn.Milestones[0].ID, "early work", testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestApprove(t *testing.T) {
	t.Run("second approval fails AlreadyApproved and releases once", func(t *testing.T) {
		txn := fundedTransaction(t)
		milestone := txn.Milestones[0]
		_, err := txn.SubmitWork("seller-1", milestone.ID, "work", testNow)
		require.NoError(t, err)

		_, err = txn.Approve("buyer-1", milestone.ID, testNow)
		require.NoError(t, err)

		_, err = txn.Approve("buyer-1", milestone.ID, testNow)
		assert.ErrorIs(t, err, ErrAlreadyApproved)
		assert.True(t, txn.Ledger.Released.Equal(dec(t, "50.00")))
	})

	t.Run("fails InvalidTransition from PENDING", func(t *testing.T) {
		txn := fundedTransaction(t)

		_, err := txn.Approve("buyer-1", txn.Milestones[0].ID, testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestCompletion(t *testing.T) {
	// All four milestones approved: the transaction derives COMPLETED and the
	// full held amount is released.
	txn := fundedTransaction(t)

	for _, m := range txn.Milestones {
		_, err := txn.SubmitWork("seller-1", m.ID, "deliverable", testNow)
		require.NoError(t, err)
		_, err = txn.Approve("buyer-1", m.ID, testNow)
		require.NoError(t, err)
	}

	assert.Equal(t, TransactionCompleted, txn.Status())
	assert.True(t, txn.Ledger.Released.Equal(dec(t, "200.00")))
	assert.True(t, txn.Ledger.Released.Equal(txn.Ledger.Held))
	assert.True(t, txn.Ledger.Available().IsZero())
}

func TestDispute(t *testing.T) {
	t.Run("propagates to the transaction regardless of other milestones", func(t *testing.T) {
		txn := fundedTransaction(t)
		milestone := txn.Milestones[1]
		_, err := txn.SubmitWork("seller-1", milestone.ID, "work", testNow)
		require.NoError(t, err)

		event, err := txn.OpenDispute("buyer-1", milestone.ID, testNow)

		require.NoError(t, err)
		assert.Equal(t, MilestoneDisputed, milestone.Status)
		assert.Equal(t, TransactionDisputed, txn.Status())
		assert.Equal(t, EventDisputeOpened, event.Kind)
	})

	t.Run("freezes review actions on other milestones", func(t *testing.T) {
		txn := fundedTransaction(t)
		_, err := txn.OpenDispute("buyer-1", txn.Milestones[0].ID, testNow)
		require.NoError(t, err)

		_, err = txn.SubmitWork("seller-1", txn.Milestones[1].ID, "work", testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cannot be opened twice on the same milestone", func(t *testing.T) {
		txn := fundedTransaction(t)
		_, err := txn.OpenDispute("buyer-1", txn.Milestones[0].ID, testNow)
		require.NoError(t, err)

		_, err = txn.OpenDispute("seller-1", txn.Milestones[0].ID, testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestResolveDispute(t *testing.T) {
	t.Run("release settles in the seller's favor", func(t *testing.T) {
		txn := fundedTransaction(t)
		milestone := txn.Milestones[0]
		_, err := txn.OpenDispute("buyer-1", milestone.ID, testNow)
		require.NoError(t, err)

		event, err := txn.ResolveDispute("arbiter-1", milestone.ID, OutcomeRelease, testNow)

		require.NoError(t, err)
		assert.Equal(t, MilestoneApproved, milestone.Status)
		assert.True(t, txn.Ledger.Released.Equal(dec(t, "50.00")))
		assert.Equal(t, EventDisputeResolved, event.Kind)
		assert.Equal(t, TransactionInEscrow, txn.Status())
	})

	t.Run("refund settles in the buyer's favor", func(t *testing.T) {
		txn := fundedTransaction(t)
		milestone := txn.Milestones[0]
		_, err := txn.OpenDispute("seller-1", milestone.ID, testNow)
		require.NoError(t, err)

		_, err = txn.ResolveDispute("arbiter-1", milestone.ID, OutcomeRefund, testNow)

		require.NoError(t, err)
		assert.Equal(t, MilestoneCancelled, milestone.Status)
		assert.True(t, txn.Ledger.Refunded.Equal(dec(t, "50.00")))
	})

	t.Run("rejects an unknown outcome", func(t *testing.T) {
		txn := fundedTransaction(t)
		_, err := txn.OpenDispute("buyer-1", txn.Milestones[0].ID, testNow)
		require.NoError(t, err)

		_, err = txn.ResolveDispute("arbiter-1", txn.Milestones[0].ID, ResolutionOutcome("split"), testNow)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects resolution of an undisputed milestone", func(t *testing.T) {
		txn := fundedTransaction(t)

		_, err := txn.ResolveDispute("arbiter-1", txn.Milestones[0].ID, OutcomeRelease, testNow)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestDerivedClosure(t *testing.T) {
	t.Run("all milestones refunded derives CLOSED", func(t *testing.T) {
		specs := []MilestoneSpec{{Title: "Only", Value: dec(t, "80.00")}}
		txn, _, err := NewTransaction("buyer-1", "seller-1", "One-shot", "", specs, testNow)
		require.NoError(t, err)
		_, err = txn.Fund("buyer-1", dec(t, "80.00"), testNow)
		require.NoError(t, err)
		_, err = txn.OpenDispute("buyer-1", txn.Milestones[0].ID, testNow)
		require.NoError(t, err)

		_, err = txn.ResolveDispute("arbiter-1", txn.Milestones[0].ID, OutcomeRefund, testNow)

		require.NoError(t, err)
		assert.Equal(t, TransactionClosed, txn.Status())
		assert.True(t, txn.Ledger.Refunded.Equal(txn.Ledger.Held))
	})

	t.Run("mixed approved and cancelled derives COMPLETED", func(t *testing.T) {
		specs := []MilestoneSpec{
			{Title: "First", Value: dec(t, "60.00")},
			{Title: "Second", Value: dec(t, "40.00")},
		}
		txn, _, err := NewTransaction("buyer-1", "seller-1", "Two-part", "", specs, testNow)
		require.NoError(t, err)
		_, err = txn.Fund("buyer-1", dec(t, "100.00"), testNow)
		require.NoError(t, err)

		_, err = txn.SubmitWork("seller-1", txn.Milestones[0].ID, "work", testNow)
		require.NoError(t, err)
		_, err = txn.Approve("buyer-1", txn.Milestones[0].ID, testNow)
		require.NoError(t, err)

		_, err = txn.OpenDispute("buyer-1", txn.Milestones[1].ID, testNow)
		require.NoError(t, err)
		_, err = txn.ResolveDispute("arbiter-1", txn.Milestones[1].ID, OutcomeRefund, testNow)
		require.NoError(t, err)

		assert.Equal(t, TransactionCompleted, txn.Status())
	})
}
