package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to active", func(t *testing.T) {
		c := NewMockClient()
		record, err := c.Lookup(ctx, "11222333000181")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, record.RegistrationStatus)
		assert.Equal(t, 1, c.Calls("11222333000181"))
	})

	t.Run("fails first N lookups then answers", func(t *testing.T) {
		c := NewMockClient()
		c.FailFirst["11222333000181"] = 2
		for i := 0; i < 2; i++ {
			_, err := c.Lookup(ctx, "11222333000181")
			require.Error(t, err)
			assert.True(t, IsRetryable(err))
		}
		record, err := c.Lookup(ctx, "11222333000181")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, record.RegistrationStatus)
		assert.Equal(t, 3, c.Calls("11222333000181"))
	})

	t.Run("configured statuses and not found", func(t *testing.T) {
		c := NewMockClient()
		c.Statuses["33932745000148"] = StatusSuspended
		c.NotFound["19013178000103"] = true

		record, err := c.Lookup(ctx, "33932745000148")
		require.NoError(t, err)
		assert.Equal(t, StatusSuspended, record.RegistrationStatus)

		_, err = c.Lookup(ctx, "19013178000103")
		var le *LookupError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, ErrorNotFound, le.Category)
		assert.False(t, le.Retryable)
	})
}

func TestIsRetryableForeignErrors(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("boom")))
	assert.Equal(t, ErrorInternal, CategoryOf(errors.New("boom")))
}
