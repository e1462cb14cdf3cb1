package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dexflow/internal/chain"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"timeout is transient", chain.ErrTimeout, ClassTransient},
		{"node unavailable is transient", chain.ErrUnavailable, ClassTransient},
		{"underpriced is transient", chain.ErrUnderpriced, ClassTransient},
		{"context deadline is transient", context.DeadlineExceeded, ClassTransient},
		{"insufficient balance is permanent", chain.ErrInsufficientBalance, ClassPermanent},
		{"invalid address is permanent", chain.ErrInvalidAddress, ClassPermanent},
		{"rejection is permanent", chain.ErrRejected, ClassPermanent},
		{"unrecognized error is unknown", errors.New("weird RPC response"), ClassUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	// Adapters may wrap the sentinel with context.
	wrapped := fmt.Errorf("submit SOL: %w", chain.ErrUnavailable)
	assert.Equal(t, ClassTransient, Classify(wrapped))

	wrapped = fmt.Errorf("confirm: %w", chain.ErrInsufficientBalance)
	assert.Equal(t, ClassPermanent, Classify(wrapped))
}

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, backoff(base, 0))
	assert.Equal(t, 200*time.Millisecond, backoff(base, 1))
	assert.Equal(t, 400*time.Millisecond, backoff(base, 2))
	assert.Equal(t, 800*time.Millisecond, backoff(base, 3))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", reason(nil))
	assert.Equal(t, "insufficient_balance", reason(chain.ErrInsufficientBalance))
}
