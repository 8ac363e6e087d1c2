package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"captable/internal/company/models"
	"captable/internal/platform/logger"
	"captable/internal/registry"
	"captable/internal/verification/metrics"
	id "captable/pkg/domain"
	"captable/pkg/platform/sentinel"
	"captable/pkg/requestcontext"
)

const tracerName = "captable/internal/verification"

// DefaultLookupTimeout bounds one registry call.
const DefaultLookupTimeout = 10 * time.Second

// commitTries is the first commit plus one reload after a version conflict.
const commitTries = 2

// CompanyStore is the slice of company persistence the worker needs.
type CompanyStore interface {
	FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error)
	Update(ctx context.Context, companyID id.CompanyID, patch models.Patch) error
}

// Worker processes one verification job per call. It is the only writer of
// the DRAFT → ACTIVE edge.
//
// A job only commits while its company is DRAFT, the verification record
// still names this job and the record is not yet terminal. Anything else is
// a superseded job or a redelivery and is acknowledged without effects.
type Worker struct {
	companies     CompanyStore
	registry      registry.Client
	effects       SideEffects
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	lookupTimeout time.Duration
}

type WorkerOption func(*Worker)

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithTracer(t trace.Tracer) WorkerOption {
	return func(w *Worker) { w.tracer = t }
}

// WithLookupTimeout bounds each registry call. Non-positive values keep the default.
func WithLookupTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lookupTimeout = d
		}
	}
}

func NewWorker(companies CompanyStore, client registry.Client, effects SideEffects, opts ...WorkerOption) *Worker {
	w := &Worker{
		companies:     companies,
		registry:      client,
		effects:       effects,
		logger:        logger.Discard(),
		tracer:        otel.Tracer(tracerName),
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process runs one delivery of job. A returned error asks the queue to
// redeliver (or, on the final attempt, to record the job as failed); nil
// acknowledges the job.
func (w *Worker) Process(ctx context.Context, job Job, attempt Attempt) (err error) {
	if err := job.Validate(); err != nil {
		w.count(metrics.ResultInvalid)
		w.logger.ErrorContext(ctx, "verification job rejected", "job_id", job.JobID, "error", err)
		return err
	}
	if requestcontext.RequestID(ctx) == "" {
		ctx = requestcontext.WithRequestID(ctx, job.JobID.String())
	}

	ctx, span := w.tracer.Start(ctx, "verification.process",
		trace.WithAttributes(
			attribute.String("verification.job_id", job.JobID.String()),
			attribute.String("verification.company_id", job.CompanyID.String()),
			attribute.Int("verification.attempt", attempt.Number),
			attribute.Int("verification.max_attempts", attempt.MaxAttempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	log := w.logger.With(
		"company_id", job.CompanyID,
		"job_id", job.JobID,
		"attempt", attempt.Number,
		"max_attempts", attempt.MaxAttempts,
	)

	company, err := w.companies.FindByID(ctx, job.CompanyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		w.skip(ctx, log, "company not found")
		return nil
	}
	if err != nil {
		w.count(metrics.ResultError)
		return fmt.Errorf("load company: %w", err)
	}
	if reason := skipReason(company, job); reason != "" {
		w.skip(ctx, log, reason)
		return nil
	}

	rec, lookupErr := w.lookup(ctx, job)
	var decision Decision
	if lookupErr != nil {
		decision = ClassifyLookupError(lookupErr, attempt)
		if decision.Retry {
			w.count(metrics.ResultRetry)
			log.WarnContext(ctx, "registry lookup failed, retrying",
				"category", registry.CategoryOf(lookupErr),
				"error", lookupErr,
			)
			return lookupErr
		}
	} else {
		decision = ClassifyRecord(rec)
	}

	res, committed, err := w.commit(ctx, log, company, job, decision, rec)
	if err != nil {
		w.count(metrics.ResultError)
		log.ErrorContext(ctx, "verification commit failed", "error", err)
		return err
	}
	if !committed {
		return nil
	}

	log.InfoContext(ctx, "verification outcome committed",
		"outcome", res.Outcome,
		"status", res.Status,
		"validation_status", res.Record.ValidationStatus,
	)
	w.effects.Run(ctx, res)
	w.count(outcomeResult(res.Outcome))

	if decision.Reraise {
		return lookupErr
	}
	return nil
}

func (w *Worker) lookup(ctx context.Context, job Job) (*registry.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, w.lookupTimeout)
	defer cancel()

	ctx, span := w.tracer.Start(ctx, "registry.lookup")
	defer span.End()

	start := time.Now()
	rec, err := w.registry.Lookup(ctx, job.RegistrationNumber)
	if err == nil && rec == nil {
		err = registry.NewLookupError(registry.ErrorBadData, "registry returned no record", nil)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && registry.CategoryOf(err) == registry.ErrorInternal {
		err = registry.NewLookupError(registry.ErrorTimeout, "registry lookup timed out", err)
	}

	result := "ok"
	if err != nil {
		result = string(registry.CategoryOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("registry.status", string(rec.RegistrationStatus)))
	}
	if w.metrics != nil {
		w.metrics.ObserveLookup(result, time.Since(start).Seconds())
	}
	return rec, err
}

// commit persists the decision. The first try uses the company loaded before
// the lookup; a version conflict reloads it and re-checks eligibility once.
func (w *Worker) commit(
	ctx context.Context,
	log *slog.Logger,
	company *models.Company,
	job Job,
	d Decision,
	rec *registry.Record,
) (Result, bool, error) {
	for try := 0; try < commitTries; try++ {
		if try > 0 {
			var err error
			company, err = w.companies.FindByID(ctx, job.CompanyID)
			if errors.Is(err, sentinel.ErrNotFound) {
				w.skip(ctx, log, "company not found")
				return Result{}, false, nil
			}
			if err != nil {
				return Result{}, false, fmt.Errorf("reload company: %w", err)
			}
			if reason := skipReason(company, job); reason != "" {
				w.skip(ctx, log, reason)
				return Result{}, false, nil
			}
		}

		patch, res, err := buildPatch(company, job, d, rec, requestcontext.Now(ctx))
		if err != nil {
			return Result{}, false, err
		}
		err = w.companies.Update(ctx, job.CompanyID, patch)
		if errors.Is(err, sentinel.ErrConflict) {
			if w.metrics != nil {
				w.metrics.IncrementCommitConflicts()
			}
			log.WarnContext(ctx, "verification commit conflicted, reloading", "version", company.Version)
			continue
		}
		if err != nil {
			return Result{}, false, fmt.Errorf("commit verification outcome: %w", err)
		}
		return res, true, nil
	}
	return Result{}, false, fmt.Errorf("commit verification outcome: %w", sentinel.ErrConflict)
}

// buildPatch turns a decision into one atomic write. Authoritative record
// fields come from the decision; registry data only ever lands in the
// nested snapshot.
func buildPatch(company *models.Company, job Job, d Decision, rec *registry.Record, now time.Time) (models.Patch, Result, error) {
	var snapshot *models.RegistrySnapshot
	if rec != nil {
		s := Snapshot(rec)
		snapshot = &s
	}

	patch := models.Patch{ExpectedVersion: company.Version, UpdatedAt: now}
	res := Result{
		Job:            job,
		Outcome:        d.Outcome,
		PreviousStatus: company.Status,
		Status:         company.Status,
	}

	if d.Outcome == OutcomeSuccess {
		if err := models.ValidateTransition(company.Status, models.StatusActive, models.TriggerVerification); err != nil {
			return models.Patch{}, Result{}, err
		}
		record := models.CompletedRecord(job.JobID, *snapshot, now)
		status := models.StatusActive
		patch.Status = &status
		patch.Verification = &record
		patch.VerifiedAt = &now
		res.Record = record
		res.Status = status
		return patch, res, nil
	}

	record := models.FailedRecord(job.JobID, d.Code, d.Message, now, snapshot)
	patch.Verification = &record
	res.Record = record
	return patch, res, nil
}

func skipReason(c *models.Company, job Job) string {
	switch {
	case c.Status == models.StatusDissolved:
		return "company dissolved"
	case c.Status != models.StatusDraft:
		return "company not in DRAFT"
	case c.Verification.JobID != job.JobID:
		return "superseded by a newer verification job"
	case c.Verification.IsTerminal():
		return "verification already terminal"
	}
	return ""
}

func (w *Worker) skip(ctx context.Context, log *slog.Logger, reason string) {
	w.count(metrics.ResultSkipped)
	log.InfoContext(ctx, "verification job skipped", "reason", reason)
}

func (w *Worker) count(result string) {
	if w.metrics != nil {
		w.metrics.IncrementJobs(result)
	}
}

func outcomeResult(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return metrics.ResultSuccess
	case OutcomeTransientExhausted:
		return metrics.ResultTransientExhausted
	default:
		return metrics.ResultDefinitiveFailure
	}
}
