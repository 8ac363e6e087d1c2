package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "company not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load: %w", New(CodeBusinessRule, "not allowed"))
		assert.True(t, HasCode(err, CodeBusinessRule))
	})

	t.Run("matches nested domain errors", func(t *testing.T) {
		inner := New(CodeConflict, "stale version")
		outer := Wrap(inner, CodeInternal, "persist company")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeConflict))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("cause stays reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeUnavailable, "enqueue verification")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "enqueue verification: connection refused", err.Error())
		assert.Equal(t, CodeUnavailable, CodeOf(err))
	})
}
