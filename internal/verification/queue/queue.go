// Package queue runs verification jobs: an asynq (Redis) runtime for
// production and an in-memory runtime for local mode and tests. Both deliver
// at least once and hand the worker the attempt metadata it classifies on.
package queue

import (
	"context"
	"time"

	"captable/internal/verification"
	"captable/internal/verification/backoff"
)

// Processor handles one delivery of a job.
type Processor interface {
	Process(ctx context.Context, job verification.Job, attempt verification.Attempt) error
}

// Policy is the retry policy attached to every enqueued job.
type Policy struct {
	Queue       string
	MaxAttempts int
	Backoff     backoff.Strategy
	// Timeout is the per-delivery backstop. It must exceed the registry timeout.
	Timeout time.Duration
}

// DefaultPolicy: three attempts, exponential backoff from one second.
func DefaultPolicy() Policy {
	return Policy{
		Queue:       "verification",
		MaxAttempts: verification.DefaultMaxAttempts,
		Backoff:     backoff.Default(),
		Timeout:     time.Minute,
	}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) strategy() backoff.Strategy {
	if p.Backoff == nil {
		return backoff.Default()
	}
	return p.Backoff
}
