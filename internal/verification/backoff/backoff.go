// Package backoff computes retry delays for verification jobs.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed).
	// Retry 1 is the first redelivery after the initial failure.
	Delay(retry int) time.Duration
}

// Exponential doubles the delay each retry.
// Delay = min(Base * 2^(retry-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

func (e *Exponential) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Default is the verification policy: 1s base, capped at one minute.
func Default() Strategy {
	return NewExponential(time.Second, time.Minute)
}
