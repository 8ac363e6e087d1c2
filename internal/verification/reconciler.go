package verification

import (
	"context"
	"log/slog"
	"time"

	"captable/internal/company/models"
	"captable/internal/platform/logger"
	"captable/internal/verification/metrics"
)

const (
	DefaultReconcileInterval = time.Minute
	DefaultStaleAfter        = 5 * time.Minute
	DefaultReconcileBatch    = 100
)

// PendingLister finds companies whose verification has not reached a
// terminal state.
type PendingLister interface {
	ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Company, error)
}

// JobDispatcher is satisfied by *Dispatcher.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Reconciler re-dispatches companies left PENDING past the stale threshold,
// e.g. after an enqueue that was lost between the store write and the
// queue. The job id is reused, so a job still held by the queue is not
// duplicated and a redelivery the worker has already committed is skipped.
type Reconciler struct {
	companies  PendingLister
	dispatcher JobDispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithReconcileInterval sets how often Run sweeps. Non-positive values keep the default.
func WithReconcileInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithStaleAfter sets how long a company may stay PENDING before it is
// re-dispatched. Non-positive values keep the default.
func WithStaleAfter(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

func WithReconcileBatch(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(companies PendingLister, dispatcher JobDispatcher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		companies:  companies,
		dispatcher: dispatcher,
		logger:     logger.Discard(),
		interval:   DefaultReconcileInterval,
		staleAfter: DefaultStaleAfter,
		batch:      DefaultReconcileBatch,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps once immediately, then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "pending verification sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep re-dispatches one batch of stale pending companies and returns how
// many were handed to the queue. A failed dispatch is logged and left for
// the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.companies.ListPending(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, company := range stale {
		job := NewJob(company)
		if err := r.dispatcher.Dispatch(ctx, job); err != nil {
			r.logger.WarnContext(ctx, "pending verification not re-dispatched",
				"company_id", company.ID,
				"job_id", job.JobID,
				"error", err,
			)
			continue
		}
		dispatched++
		if r.metrics != nil {
			r.metrics.IncrementRedispatches()
		}
		r.logger.InfoContext(ctx, "pending verification re-dispatched",
			"company_id", company.ID,
			"job_id", job.JobID,
			"pending_since", company.UpdatedAt,
		)
	}
	return dispatched, nil
}
