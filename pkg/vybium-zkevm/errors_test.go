package vybiumzkevm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("Message", func(t *testing.T) {
		err := newError(ErrInvalidInput, "empty program", nil)
		assert.Equal(t, "vybium-zkevm error [6]: empty program", err.Error())
	})

	t.Run("Cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := newError(ErrTraceGeneration, "execution failed", cause)
		assert.Contains(t, err.Error(), "caused by: boom")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("MatchesByCode", func(t *testing.T) {
		err := error(newError(ErrCommitment, "a", nil))
		assert.ErrorIs(t, err, &VMError{Code: ErrCommitment})
		assert.NotErrorIs(t, err, &VMError{Code: ErrInvalidConfig})

		var vmErr *VMError
		assert.True(t, errors.As(err, &vmErr))
		assert.Equal(t, ErrCommitment, vmErr.Code)
	})
}
