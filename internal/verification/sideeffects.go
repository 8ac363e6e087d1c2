package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"captable/internal/company/models"
	"captable/internal/directory"
	"captable/internal/mail"
	"captable/internal/notification"
	"captable/internal/platform/logger"
	"captable/internal/verification/metrics"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/sentinel"
	"captable/pkg/requestcontext"
)

// AuditSource tags every audit event written by the pipeline.
const AuditSource = "verification-worker"

// DefaultSideEffectTimeout bounds all three side effects of one outcome.
const DefaultSideEffectTimeout = 5 * time.Second

const (
	effectAudit        = "audit"
	effectNotification = "notification"
	effectEmail        = "email"
)

// Result is a committed terminal outcome. Record is the verification record
// exactly as persisted; PreviousStatus is the company status before the commit.
type Result struct {
	Job            Job
	Outcome        Outcome
	Record         models.VerificationRecord
	PreviousStatus models.Status
	Status         models.Status
}

// SideEffects runs the post-commit fan-out for one terminal outcome. It never
// returns an error: the outcome is already durable.
type SideEffects interface {
	Run(ctx context.Context, res Result)
}

// AuditPublisher writes one audit event.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Coordinator writes the audit trail, notifies the creator and emails them.
// Each step is isolated: a failure or panic in one is logged and the next
// step still runs.
type Coordinator struct {
	audit    AuditPublisher
	notifier notification.Notifier
	mailer   mail.Mailer
	contacts directory.Lookup
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

type CoordinatorOption func(*Coordinator)

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

func WithCoordinatorMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithSideEffectTimeout bounds the whole fan-out. Non-positive values keep the default.
func WithSideEffectTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewCoordinator(
	auditPublisher AuditPublisher,
	notifier notification.Notifier,
	mailer mail.Mailer,
	contacts directory.Lookup,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		audit:    auditPublisher,
		notifier: notifier,
		mailer:   mailer,
		contacts: contacts,
		logger:   logger.Discard(),
		timeout:  DefaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the side effects sequentially. The job context's cancellation
// is dropped so a queue timeout cannot cut the fan-out short, and each step
// gets its own deadline so a stalled step cannot starve the next one.
func (c *Coordinator) Run(ctx context.Context, res Result) {
	ctx = context.WithoutCancel(ctx)

	c.guard(ctx, res, effectAudit, c.writeAudit)
	c.guard(ctx, res, effectNotification, c.notify)
	c.guard(ctx, res, effectEmail, c.email)
}

func (c *Coordinator) guard(parent context.Context, res Result, effect string, step func(context.Context, Result) error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.failed(ctx, res, effect, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := step(ctx, res); err != nil {
		c.failed(ctx, res, effect, err)
	}
}

func (c *Coordinator) failed(ctx context.Context, res Result, effect string, err error) {
	if c.metrics != nil {
		c.metrics.IncrementSideEffectFailures(effect)
	}
	c.logger.ErrorContext(ctx, "verification side effect failed",
		"effect", effect,
		"company_id", res.Job.CompanyID,
		"job_id", res.Job.JobID,
		"outcome", res.Outcome,
		"error", err,
	)
}

func (c *Coordinator) writeAudit(ctx context.Context, res Result) error {
	if res.Outcome == OutcomeSuccess {
		// Both events are attempted even if the first one fails.
		return errors.Join(
			c.audit.Emit(ctx, c.event(res, audit.ActionVerificationCompleted, audit.Changes{
				Before: map[string]any{
					"validationStatus": models.ValidationPending,
					"jobId":            res.Job.JobID,
				},
				After: map[string]any{
					"validationStatus": res.Record.ValidationStatus,
					"jobId":            res.Record.JobID,
					"completedAt":      res.Record.CompletedAt,
					"registry":         res.Record.Registry,
				},
			})),
			c.audit.Emit(ctx, c.event(res, audit.ActionStatusChanged, audit.Changes{
				Before: map[string]any{"status": res.PreviousStatus},
				After:  map[string]any{"status": res.Status},
			})),
		)
	}

	after := map[string]any{
		"validationStatus": res.Record.ValidationStatus,
		"jobId":            res.Record.JobID,
		"outcome":          res.Outcome,
		"failedAt":         res.Record.FailedAt,
	}
	if res.Record.Error != nil {
		after["error"] = map[string]any{
			"code":    res.Record.Error.Code,
			"message": res.Record.Error.Message,
		}
	}
	return c.audit.Emit(ctx, c.event(res, audit.ActionVerificationFailed, audit.Changes{
		Before: nil,
		After:  after,
	}))
}

func (c *Coordinator) event(res Result, action audit.Action, changes audit.Changes) audit.Event {
	actor := res.Job.CreatorUserID
	return audit.Event{
		ActorID:      &actor,
		ActorType:    audit.ActorUser,
		Action:       action,
		ResourceType: audit.ResourceCompany,
		ResourceID:   res.Job.CompanyID.String(),
		CompanyID:    res.Job.CompanyID,
		Changes:      changes,
		Metadata:     audit.Metadata{Source: AuditSource},
	}
}

func (c *Coordinator) notify(ctx context.Context, res Result) error {
	req := notification.Request{
		ID:          uuid.New(),
		UserID:      res.Job.CreatorUserID,
		Kind:        notification.KindCompanyActivated,
		CompanyID:   res.Job.CompanyID,
		CompanyName: res.Job.CompanyName,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if res.Outcome.IsFailure() {
		req.Kind = notification.KindCompanyCNPJFailed
		if res.Record.Error != nil {
			req.ErrorCode = res.Record.Error.Code
			req.Message = res.Record.Error.Message
		}
	}
	return c.notifier.Submit(ctx, req)
}

func (c *Coordinator) email(ctx context.Context, res Result) error {
	contact, err := c.contacts.Contact(ctx, res.Job.CreatorUserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.skipEmail(ctx, res, "creator not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load creator contact: %w", err)
	}
	if !contact.HasEmail() {
		c.skipEmail(ctx, res, "creator has no email address")
		return nil
	}

	template := mail.TemplateVerificationSuccess
	data := map[string]string{
		"companyName":        res.Job.CompanyName,
		"registrationNumber": models.CNPJ(res.Job.RegistrationNumber).Formatted(),
		"firstName":          contact.FirstName,
	}
	if res.Outcome.IsFailure() {
		template = mail.TemplateVerificationFailed
		if res.Record.Error != nil {
			data["errorCode"] = res.Record.Error.Code
			data["errorMessage"] = res.Record.Error.Message
		}
	}
	return c.mailer.Send(ctx, mail.Request{
		To:        contact.Email,
		Locale:    contact.Locale,
		Template:  template,
		CompanyID: res.Job.CompanyID,
		Data:      data,
	})
}

func (c *Coordinator) skipEmail(ctx context.Context, res Result, reason string) {
	c.logger.InfoContext(ctx, "verification email skipped",
		"company_id", res.Job.CompanyID,
		"user_id", res.Job.CreatorUserID,
		"reason", reason,
	)
}

var _ SideEffects = (*Coordinator)(nil)
