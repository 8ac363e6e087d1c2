package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"captable/internal/verification/backoff"
)

func TestExponential_DoublesEachRetry(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Delay(tt.retry), "Delay(%d)", tt.retry)
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 5*time.Second)
	assert.Equal(t, 5*time.Second, e.Delay(10))
	assert.Equal(t, 5*time.Second, e.Delay(1000))
}

func TestExponential_ClampsRetryBelowOne(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	assert.Equal(t, time.Second, e.Delay(0))
	assert.Equal(t, time.Second, e.Delay(-3))
}

func TestDefault(t *testing.T) {
	d := backoff.Default()
	assert.Equal(t, time.Second, d.Delay(1))
	assert.Equal(t, time.Minute, d.Delay(20))
}
