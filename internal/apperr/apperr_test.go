package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := New(KindInsufficientFunds, "need %s, have %s", "110", "100")
	wrapped := fmt.Errorf("submit market order: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.False(t, errors.Is(wrapped, ErrInsufficientHoldings))
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
	assert.Equal(t, "need 110, have 100", err.Error())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "conflict", err: New(KindConcurrencyConflict, "retries exhausted"), want: true},
		{name: "validation", err: New(KindValidation, "quantity must be positive"), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindPriceUnavailable, cause, "price lookup failed")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, "price lookup failed: connection reset", err.Error())
}
