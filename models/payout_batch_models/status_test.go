package payout_batch_models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchStatusTransitions(t *testing.T) {
	allowed := map[BatchStatus][]BatchStatus{
		BatchPending:    {BatchApproved, BatchCancelled},
		BatchApproved:   {BatchProcessing, BatchCancelled},
		BatchProcessing: {BatchCompleted, BatchFailed},
	}
	all := []BatchStatus{BatchPending, BatchApproved, BatchProcessing, BatchCompleted, BatchFailed, BatchCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	assert.True(t, BatchCompleted.Terminal())
	assert.True(t, BatchFailed.Terminal())
	assert.True(t, BatchCancelled.Terminal())
	assert.False(t, BatchPending.Terminal())
	assert.False(t, BatchProcessing.Terminal())
}

func TestPayoutStatusTransitions(t *testing.T) {
	assert.True(t, PayoutPending.CanTransition(PayoutCompleted))
	assert.True(t, PayoutPending.CanTransition(PayoutFailed))
	assert.True(t, PayoutPending.CanTransition(PayoutCancelled))
	assert.True(t, PayoutFailed.CanTransition(PayoutCompleted))
	assert.False(t, PayoutFailed.CanTransition(PayoutCancelled))
	assert.False(t, PayoutCompleted.CanTransition(PayoutFailed))
	assert.False(t, PayoutCancelled.CanTransition(PayoutPending))
}

func TestParseBatchStatus(t *testing.T) {
	s, err := ParseBatchStatus("APPROVED")
	require.NoError(t, err)
	assert.Equal(t, BatchApproved, s)

	_, err = ParseBatchStatus("approved")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestParsePeriodType(t *testing.T) {
	p, err := ParsePeriodType("WEEKLY")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeekly, p)

	_, err = ParsePeriodType("YEARLY")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNoEligibleVendorsIsValidation(t *testing.T) {
	assert.ErrorIs(t, ErrNoEligibleVendors, ErrValidation)
}

func TestBatchFilterNormalize(t *testing.T) {
	f := BatchFilter{Page: 0, Limit: 500}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = BatchFilter{Page: 3, Limit: 10}
	f.Normalize()
	assert.Equal(t, 20, f.Offset())
}
