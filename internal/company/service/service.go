// Package service holds the caller-side company operations that feed the
// verification pipeline: creation, retry, status changes and dissolution.
package service

import (
	"context"
	"errors"
	"log/slog"

	"captable/internal/company/models"
	"captable/internal/platform/logger"
	"captable/internal/verification"
	id "captable/pkg/domain"
	dErrors "captable/pkg/domain-errors"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/sentinel"
	"captable/pkg/requestcontext"
)

type CompanyStore interface {
	Create(ctx context.Context, company *models.Company) error
	FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error)
	Update(ctx context.Context, companyID id.CompanyID, patch models.Patch) error
}

// Dispatcher enqueues verification jobs. It does not re-check eligibility;
// the service does that before calling it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job verification.Job) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates company lifecycle operations.
type Service struct {
	companies      CompanyStore
	dispatcher     Dispatcher
	auditPublisher AuditPublisher
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func New(companies CompanyStore, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{companies: companies, dispatcher: dispatcher, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is the input for Create. RegistrationNumber may be masked.
type CreateRequest struct {
	Name               string
	RegistrationNumber string
	CreatorUserID      id.UserID
}

// Create persists a DRAFT company and dispatches its first verification.
// An invalid or duplicate CNPJ never reaches the queue. When the enqueue
// fails the persisted company is returned alongside the unavailable error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Company, error) {
	cnpj, err := models.ParseCNPJ(req.RegistrationNumber)
	if err != nil {
		return nil, err
	}
	company, err := models.NewCompany(id.NewCompanyID(), req.Name, cnpj, req.CreatorUserID, id.NewJobID(), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.companies.Create(ctx, company); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "registration number is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create company")
	}

	s.emit(ctx, company, req.CreatorUserID, audit.ActionCompanyCreated, audit.Changes{
		After: map[string]any{
			"name":               company.Name,
			"registrationNumber": company.RegistrationNumber,
			"status":             company.Status,
		},
	})

	if err := s.dispatch(ctx, company); err != nil {
		return company, err
	}
	return company, nil
}

// Get returns one company.
func (s *Service) Get(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	return s.load(ctx, companyID)
}

// SetupStatus returns the onboarding read model clients poll while
// verification runs.
func (s *Service) SetupStatus(ctx context.Context, companyID id.CompanyID) (*models.SetupStatus, error) {
	company, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	status := company.SetupStatus()
	return &status, nil
}

func (s *Service) load(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "company not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company")
	}
	return company, nil
}

// update writes the patch and mirrors it onto company.
func (s *Service) update(ctx context.Context, company *models.Company, patch models.Patch) error {
	if err := s.companies.Update(ctx, company.ID, patch); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "company was modified concurrently, reload and try again")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "company not found")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update company")
		}
	}
	company.Apply(patch)
	return nil
}

// dispatch enqueues the job owned by the company's pending record. When the
// queue is down the record is failed so the company stays retry-eligible.
func (s *Service) dispatch(ctx context.Context, company *models.Company) error {
	dispatchErr := s.dispatcher.Dispatch(ctx, verification.NewJob(company))
	if dispatchErr == nil {
		return nil
	}

	now := requestcontext.Now(ctx)
	record := models.FailedRecord(company.Verification.JobID, models.ErrCodeDispatchFailed,
		"verification could not be queued, please retry", now, nil)
	patch := models.Patch{ExpectedVersion: company.Version, Verification: &record, UpdatedAt: now}
	if err := s.update(ctx, company, patch); err != nil {
		s.logger.ErrorContext(ctx, "failed to record dispatch failure",
			"company_id", company.ID,
			"job_id", company.Verification.JobID,
			"error", err,
		)
	}
	return dErrors.Wrap(dispatchErr, dErrors.CodeUnavailable, "verification could not be queued")
}

// emit writes an audit event. Audit is best effort for caller-side
// operations: the state change has already been persisted.
func (s *Service) emit(ctx context.Context, company *models.Company, actor id.UserID, action audit.Action, changes audit.Changes) {
	s.logger.InfoContext(ctx, string(action),
		"company_id", company.ID,
		"user_id", actor,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		ActorType:    audit.ActorUser,
		Action:       action,
		ResourceType: audit.ResourceCompany,
		ResourceID:   company.ID.String(),
		CompanyID:    company.ID,
		Changes:      changes,
	}
	if !actor.IsNil() {
		event.ActorID = &actor
	} else {
		event.ActorType = audit.ActorSystem
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "company_id", company.ID, "error", err)
	}
}
