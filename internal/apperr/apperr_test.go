package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCodeSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("reserve lot: %w", InsufficientQuantity("need %s, have %s", "10", "4"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, CodeInsufficientQuantity, CodeOf(err))
	assert.Contains(t, err.Error(), "InsufficientQuantity: need 10, have 4")
}

func TestOnlyConcurrencyConflictIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrConcurrencyConflict)))
	assert.False(t, IsRetryable(InvalidState("x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindConcurrencyConflict, Code: CodeConcurrencyConflict, Message: "other text"})
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	assert.False(t, errors.Is(LotDepleted("x"), ErrConcurrencyConflict))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
