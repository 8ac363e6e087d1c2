package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"captable/internal/platform/logger"
	"captable/internal/verification"
)

type delivery struct {
	job     verification.Job
	attempt int
	readyAt time.Time
}

// Memory is an in-process queue with the same retry semantics as the asynq
// runtime. Jobs are lost on restart.
type Memory struct {
	policy      Policy
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	pending []delivery
	dead    []verification.Job
	wake    chan struct{}
}

type MemoryOption func(*Memory)

func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(m *Memory) { m.logger = l }
}

// WithConcurrency bounds parallel deliveries in Run.
func WithConcurrency(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(policy Policy, opts ...MemoryOption) *Memory {
	m := &Memory{
		policy:      policy,
		concurrency: 1,
		logger:      logger.Discard(),
		now:         time.Now,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue adds a first delivery. A job id that is already pending is ignored,
// matching asynq's task id uniqueness.
func (m *Memory) Enqueue(_ context.Context, job verification.Job) error {
	m.mu.Lock()
	for _, d := range m.pending {
		if d.job.JobID == job.JobID {
			m.mu.Unlock()
			return nil
		}
	}
	m.pending = append(m.pending, delivery{job: job, readyAt: m.now()})
	m.mu.Unlock()
	m.signal()
	return nil
}

// Len reports pending deliveries, including scheduled retries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Dead returns jobs that exhausted their attempts or were rejected as invalid.
func (m *Memory) Dead() []verification.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]verification.Job(nil), m.dead...)
}

// Drain delivers everything synchronously, retries included, without waiting
// for backoff delays. It returns when the queue is empty.
func (m *Memory) Drain(ctx context.Context, p Processor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return nil
		}
		d := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		m.deliver(ctx, p, d)
	}
}

// Run delivers jobs as their backoff delays elapse until ctx is cancelled.
// In-flight deliveries finish before Run returns.
func (m *Memory) Run(ctx context.Context, p Processor) error {
	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for {
		d, wait, ok := m.next()
		if ok {
			g.Go(func() error {
				m.deliver(ctx, p, d)
				return nil
			})
			continue
		}

		var (
			t     *time.Timer
			timer <-chan time.Time
		)
		if wait > 0 {
			t = time.NewTimer(wait)
			timer = t.C
		}
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return g.Wait()
		case <-m.wake:
		case <-timer:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// next pops the earliest ready delivery, or reports how long until one is.
// A zero wait with ok=false means the queue is empty.
func (m *Memory) next() (delivery, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	idx := -1
	for i, d := range m.pending {
		if idx == -1 || d.readyAt.Before(m.pending[idx].readyAt) {
			idx = i
		}
	}
	if idx == -1 {
		return delivery{}, 0, false
	}
	d := m.pending[idx]
	if d.readyAt.After(now) {
		return delivery{}, d.readyAt.Sub(now), false
	}
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
	return d, 0, true
}

func (m *Memory) deliver(ctx context.Context, p Processor, d delivery) {
	attempt := verification.Attempt{Number: d.attempt, MaxAttempts: m.policy.maxAttempts()}

	runCtx := ctx
	if m.policy.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.policy.Timeout)
		defer cancel()
	}

	err := p.Process(runCtx, d.job, attempt)
	if err == nil {
		return
	}
	if errors.Is(err, verification.ErrInvalidJob) || attempt.IsFinal() {
		m.logger.WarnContext(ctx, "verification job failed permanently",
			"job_id", d.job.JobID,
			"company_id", d.job.CompanyID,
			"attempt", attempt.Number,
			"max_attempts", attempt.MaxAttempts,
			"error", err,
		)
		m.mu.Lock()
		m.dead = append(m.dead, d.job)
		m.mu.Unlock()
		return
	}

	delay := m.policy.strategy().Delay(d.attempt + 1)
	m.logger.InfoContext(ctx, "verification job scheduled for retry",
		"job_id", d.job.JobID,
		"attempt", attempt.Number,
		"delay", delay,
		"error", err,
	)
	m.mu.Lock()
	m.pending = append(m.pending, delivery{job: d.job, attempt: d.attempt + 1, readyAt: m.now().Add(delay)})
	m.mu.Unlock()
	m.signal()
}

func (m *Memory) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
