package service

import (
	"context"

	"captable/internal/company/models"
	id "captable/pkg/domain"
	audit "captable/pkg/platform/audit"
	"captable/pkg/requestcontext"
)

// RetryVerification starts a new verification for a DRAFT company whose last
// verification failed. The new job id is written under the version check, so
// of two concurrent retries only one dispatches; the other gets a conflict.
// A failed enqueue returns the company together with the error.
func (s *Service) RetryVerification(ctx context.Context, companyID id.CompanyID, actorID id.UserID) (*models.Company, error) {
	company, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := company.CanRetryVerification(); err != nil {
		return nil, err
	}

	previous := company.Verification
	record := models.PendingRecord(id.NewJobID())
	patch := models.Patch{
		ExpectedVersion: company.Version,
		Verification:    &record,
		UpdatedAt:       requestcontext.Now(ctx),
	}
	if err := s.update(ctx, company, patch); err != nil {
		return nil, err
	}

	before := map[string]any{"validationStatus": previous.ValidationStatus, "jobId": previous.JobID}
	if previous.Error != nil {
		before["errorCode"] = previous.Error.Code
	}
	s.emit(ctx, company, actorID, audit.ActionVerificationRetried, audit.Changes{
		Before: before,
		After:  map[string]any{"validationStatus": record.ValidationStatus, "jobId": record.JobID},
	})

	if err := s.dispatch(ctx, company); err != nil {
		return company, err
	}
	return company, nil
}

// UpdateStatus toggles ACTIVE and INACTIVE. DRAFT → ACTIVE is reserved for
// verification and DISSOLVED is final; both are rejected here.
func (s *Service) UpdateStatus(ctx context.Context, companyID id.CompanyID, to models.Status, actorID id.UserID) (*models.Company, error) {
	return s.transition(ctx, companyID, to, models.TriggerStatusChange, actorID, audit.ActionStatusChanged)
}

// Dissolve moves any non-dissolved company to DISSOLVED. In-flight
// verification jobs for it are skipped by the worker.
func (s *Service) Dissolve(ctx context.Context, companyID id.CompanyID, actorID id.UserID) (*models.Company, error) {
	return s.transition(ctx, companyID, models.StatusDissolved, models.TriggerDissolution, actorID, audit.ActionCompanyDissolved)
}

func (s *Service) transition(
	ctx context.Context,
	companyID id.CompanyID,
	to models.Status,
	via models.Trigger,
	actorID id.UserID,
	action audit.Action,
) (*models.Company, error) {
	company, err := s.load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateTransition(company.Status, to, via); err != nil {
		return nil, err
	}

	from := company.Status
	patch := models.Patch{
		ExpectedVersion: company.Version,
		Status:          &to,
		UpdatedAt:       requestcontext.Now(ctx),
	}
	if err := s.update(ctx, company, patch); err != nil {
		return nil, err
	}

	s.emit(ctx, company, actorID, action, audit.Changes{
		Before: map[string]any{"status": from},
		After:  map[string]any{"status": to},
	})
	return company, nil
}
