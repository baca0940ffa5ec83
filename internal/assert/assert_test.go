package assert_test

import (
	"context"
	"errors"
	"testing"

	testifyassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morebnyemba/smart-contracts-escrow/internal/assert"
)

func TestThat(t *testing.T) {
	a := assert.New(nil, "ledger", "release")

	require.NoError(t, a.That(context.Background(), true, "never fires"))

	err := a.That(context.Background(), false, "available balance is negative", "held", "100")

	require.Error(t, err)
	testifyassert.ErrorIs(t, err, assert.ErrAssertionFailed)
	testifyassert.Contains(t, err.Error(), "available balance is negative")
	testifyassert.Contains(t, err.Error(), "held=100")
}

func TestNotEmpty(t *testing.T) {
	a := assert.New(nil, "outbox", "publish")

	require.NoError(t, a.NotEmpty(context.Background(), "x", "missing id"))
	testifyassert.Error(t, a.NotEmpty(context.Background(), "", "missing id"))
}

func TestNoError(t *testing.T) {
	a := assert.New(nil, "application", "approve")

	require.NoError(t, a.NoError(context.Background(), nil, "step failed"))

	err := a.NoError(context.Background(), errors.New("boom"), "step failed")

	require.Error(t, err)
	testifyassert.Contains(t, err.Error(), "error=boom")

	var assertionErr *assert.AssertionError

	require.ErrorAs(t, err, &assertionErr)
	testifyassert.Equal(t, "application", assertionErr.Component)
	testifyassert.Equal(t, "approve", assertionErr.Operation)
}
