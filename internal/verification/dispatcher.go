package verification

import (
	"context"
	"fmt"
	"log/slog"

	"captable/internal/platform/logger"
	"captable/internal/verification/metrics"
)

// Enqueuer hands one job to the queue with the configured retry policy.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Dispatcher enqueues verification jobs. Callers own eligibility: the
// dispatcher never re-checks company state.
type Dispatcher struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(enqueuer Enqueuer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{enqueuer: enqueuer, logger: logger.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch enqueues exactly one job.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := d.enqueuer.Enqueue(ctx, job); err != nil {
		if d.metrics != nil {
			d.metrics.IncrementDispatches(metrics.ResultError)
		}
		d.logger.ErrorContext(ctx, "verification enqueue failed",
			"company_id", job.CompanyID,
			"job_id", job.JobID,
			"error", err,
		)
		return fmt.Errorf("enqueue verification job: %w", err)
	}
	if d.metrics != nil {
		d.metrics.IncrementDispatches("ok")
	}
	d.logger.InfoContext(ctx, "verification job dispatched",
		"company_id", job.CompanyID,
		"job_id", job.JobID,
	)
	return nil
}
