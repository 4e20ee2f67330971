package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Validation("duration %d out of range", 45), "validation_error"},
		{"wrapped insufficient funds", fmt.Errorf("create boost: %w", ErrInsufficientFunds), "insufficient_funds"},
		{"credit exhausted", ErrCreditExhausted, "credit_exhausted"},
		{"gateway", Wrap(ErrGateway, "mpesa"), "gateway_error"},
		{"network", ErrNetwork, "network_error"},
		{"transition", ErrInvalidTransition, "invalid_transition"},
		{"not found", ErrNotFound, "not_found"},
		{"unknown", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestValidationKeepsReason(t *testing.T) {
	err := Validation("unknown promotion type %q", "sticky")

	assert.True(t, Is(err, ErrValidation))
	assert.Contains(t, err.Error(), `unknown promotion type "sticky"`)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(ErrNetwork, "dial")))
	assert.True(t, IsRetryable(ErrGateway))
	assert.False(t, IsRetryable(ErrValidation))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}
