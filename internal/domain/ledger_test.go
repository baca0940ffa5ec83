package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)

	return d
}

func TestLedgerFund(t *testing.T) {
	t.Run("records the deposit when it matches the total", func(t *testing.T) {
		ledger := NewLedger()

		require.NoError(t, ledger.Fund(dec(t, "200.00"), dec(t, "200.00")))

		assert.True(t, ledger.Funded())
		assert.True(t, ledger.Available().Equal(dec(t, "200.00")))
	})

	t.Run("rejects a second deposit", func(t *testing.T) {
		ledger := NewLedger()
		require.NoError(t, ledger.Fund(dec(t, "200.00"), dec(t, "200.00")))

		err := ledger.Fund(dec(t, "200.00"), dec(t, "200.00"))

		assert.ErrorIs(t, err, ErrAlreadyFunded)
	})

	t.Run("rejects a mismatched amount", func(t *testing.T) {
		ledger := NewLedger()

		err := ledger.Fund(dec(t, "150.00"), dec(t, "200.00"))

		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.False(t, ledger.Funded())
	})
}

func TestLedgerConservation(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund(dec(t, "200.00"), dec(t, "200.00")))

	require.NoError(t, ledger.Release(dec(t, "50.00")))
	require.NoError(t, ledger.Refund(dec(t, "25.00")))

	// held == released + refunded + available at all times
	sum := ledger.Released.Add(ledger.Refunded).Add(ledger.Available())
	assert.True(t, ledger.Held.Equal(sum))
	assert.False(t, ledger.Available().IsNegative())
	require.NoError(t, ledger.CheckConservation())
}

func TestLedgerReleaseBeyondAvailable(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund(dec(t, "100.00"), dec(t, "100.00")))
	require.NoError(t, ledger.Release(dec(t, "80.00")))

	err := ledger.Release(dec(t, "30.00"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHeldFunds)
	assert.ErrorIs(t, err, ErrInternalConsistency)
	// the failed release must not move funds
	assert.True(t, ledger.Released.Equal(dec(t, "80.00")))
}

func TestLedgerRefundBeyondAvailable(t *testing.T) {
	ledger := NewLedger()
	require.NoError(t, ledger.Fund(dec(t, "100.00"), dec(t, "100.00")))
	require.NoError(t, ledger.Refund(dec(t, "100.00")))

	err := ledger.Refund(dec(t, "0.01"))

	assert.ErrorIs(t, err, ErrInsufficientHeldFunds)
}
