package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"captable/internal/company/models"
	"captable/internal/company/store"
	"captable/internal/verification"
	id "captable/pkg/domain"
	dErrors "captable/pkg/domain-errors"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/audit/publisher"
	auditmemory "captable/pkg/platform/audit/store/memory"
	"captable/pkg/requestcontext"
)

const validCNPJ = "11.222.333/0001-81"

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []verification.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job verification.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	companies  *store.InMemoryStore
	dispatcher *recordingDispatcher
	auditStore *auditmemory.InMemoryStore
	service    *Service
	ctx        context.Context
	creator    id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupSubTest() {
	s.companies = store.NewInMemory()
	s.dispatcher = &recordingDispatcher{}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.companies, s.dispatcher, WithAuditPublisher(publisher.NewPublisher(s.auditStore)))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	s.creator = id.NewUserID()
}

func (s *ServiceSuite) create() *models.Company {
	c, err := s.service.Create(s.ctx, CreateRequest{Name: "Acme Ltda", RegistrationNumber: validCNPJ, CreatorUserID: s.creator})
	s.Require().NoError(err)
	return c
}

// failVerification simulates the worker committing a failed outcome.
func (s *ServiceSuite) failVerification(c *models.Company) *models.Company {
	record := models.FailedRecord(c.Verification.JobID, models.ErrCodeRegistryUnavailable, "down", time.Now(), nil)
	s.Require().NoError(s.companies.Update(s.ctx, c.ID, models.Patch{ExpectedVersion: c.Version, Verification: &record}))
	reloaded, err := s.companies.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	return reloaded
}

func (s *ServiceSuite) setStatus(c *models.Company, status models.Status) *models.Company {
	s.Require().NoError(s.companies.Update(s.ctx, c.ID, models.Patch{ExpectedVersion: c.Version, Status: &status}))
	reloaded, err := s.companies.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	return reloaded
}

func (s *ServiceSuite) actions(companyID id.CompanyID) []audit.Action {
	events, err := s.auditStore.ListByCompany(s.ctx, companyID)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestCreate() {
	s.Run("persists DRAFT with a pending record and dispatches one job", func() {
		c := s.create()

		s.Equal(models.StatusDraft, c.Status)
		s.Equal(models.CNPJ("11222333000181"), c.RegistrationNumber)
		s.Equal(models.ValidationPending, c.Verification.ValidationStatus)
		s.Require().Len(s.dispatcher.jobs, 1)
		job := s.dispatcher.jobs[0]
		s.Equal(c.Verification.JobID, job.JobID)
		s.Equal(c.ID, job.CompanyID)
		s.Equal("11222333000181", job.RegistrationNumber)
		s.Equal(s.creator, job.CreatorUserID)
		s.Equal([]audit.Action{audit.ActionCompanyCreated}, s.actions(c.ID))
	})

	s.Run("invalid CNPJ is rejected before dispatch", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{Name: "Acme", RegistrationNumber: "11.222.333/0001-80", CreatorUserID: s.creator})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Empty(s.dispatcher.jobs)
	})

	s.Run("empty name is a validation error", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{Name: "  ", RegistrationNumber: validCNPJ, CreatorUserID: s.creator})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Empty(s.dispatcher.jobs)
	})

	s.Run("duplicate CNPJ is a conflict", func() {
		s.create()
		_, err := s.service.Create(s.ctx, CreateRequest{Name: "Other", RegistrationNumber: "11222333000181", CreatorUserID: s.creator})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Len(s.dispatcher.jobs, 1)
	})

	s.Run("queue failure leaves the company retry-eligible", func() {
		s.dispatcher.err = errors.New("redis down")
		created, err := s.service.Create(s.ctx, CreateRequest{Name: "Acme", RegistrationNumber: validCNPJ, CreatorUserID: s.creator})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Require().NotNil(created)
		s.Equal(models.ErrCodeDispatchFailed, created.Verification.Error.Code)

		stored, err := s.companies.FindByRegistrationNumber(s.ctx, "11222333000181")
		s.Require().NoError(err)
		s.Equal(created.ID, stored.ID)
		s.Equal(created.Version, stored.Version)
		s.Equal(models.StatusDraft, stored.Status)
		s.Equal(models.ValidationFailed, stored.Verification.ValidationStatus)
		s.Equal(models.ErrCodeDispatchFailed, stored.Verification.Error.Code)
		s.NoError(stored.CanRetryVerification())
	})
}

func (s *ServiceSuite) TestRetryVerification() {
	s.Run("failed verification gets a fresh job id", func() {
		c := s.failVerification(s.create())
		oldJob := c.Verification.JobID

		retried, err := s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().NoError(err)
		s.Equal(models.ValidationPending, retried.Verification.ValidationStatus)
		s.NotEqual(oldJob, retried.Verification.JobID)
		s.Nil(retried.Verification.Error)

		s.Require().Len(s.dispatcher.jobs, 2)
		s.Equal(retried.Verification.JobID, s.dispatcher.jobs[1].JobID)

		stored, err := s.companies.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(retried.Verification.JobID, stored.Verification.JobID)
		s.Equal(retried.Version, stored.Version)
		s.Contains(s.actions(c.ID), audit.ActionVerificationRetried)
	})

	s.Run("pending verification cannot be retried", func() {
		c := s.create()
		_, err := s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Len(s.dispatcher.jobs, 1)
	})

	s.Run("active company cannot be retried", func() {
		c := s.setStatus(s.failVerification(s.create()), models.StatusActive)
		_, err := s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.Run("second retry on the same failure is rejected", func() {
		c := s.failVerification(s.create())
		_, err := s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().NoError(err)

		_, err = s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Len(s.dispatcher.jobs, 2)
	})

	s.Run("queue failure on retry returns the company marked failed again", func() {
		c := s.failVerification(s.create())
		s.dispatcher.err = errors.New("redis down")

		retried, err := s.service.RetryVerification(s.ctx, c.ID, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Require().NotNil(retried)
		s.Equal(c.ID, retried.ID)
		s.Equal(models.ValidationFailed, retried.Verification.ValidationStatus)
		s.Equal(models.ErrCodeDispatchFailed, retried.Verification.Error.Code)
		s.NoError(retried.CanRetryVerification())
	})

	s.Run("unknown company", func() {
		_, err := s.service.RetryVerification(s.ctx, id.NewCompanyID(), s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateStatus() {
	s.Run("DRAFT to ACTIVE is reserved for verification", func() {
		c := s.create()
		_, err := s.service.UpdateStatus(s.ctx, c.ID, models.StatusActive, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		var te *models.TransitionError
		s.Require().ErrorAs(err, &te)
		s.Equal(models.StatusDraft, te.From)
		s.Equal(models.StatusActive, te.To)
	})

	s.Run("ACTIVE and INACTIVE toggle", func() {
		c := s.setStatus(s.create(), models.StatusActive)

		updated, err := s.service.UpdateStatus(s.ctx, c.ID, models.StatusInactive, s.creator)
		s.Require().NoError(err)
		s.Equal(models.StatusInactive, updated.Status)

		updated, err = s.service.UpdateStatus(s.ctx, c.ID, models.StatusActive, s.creator)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, updated.Status)

		events, err := s.auditStore.ListByCompany(s.ctx, c.ID)
		s.Require().NoError(err)
		last := events[len(events)-1]
		s.Equal(audit.ActionStatusChanged, last.Action)
		s.Equal(map[string]any{"status": models.StatusInactive}, last.Changes.Before)
	})

	s.Run("dissolved companies accept no status change", func() {
		c := s.setStatus(s.create(), models.StatusDissolved)
		for _, to := range []models.Status{models.StatusDraft, models.StatusActive, models.StatusInactive, models.StatusDissolved} {
			_, err := s.service.UpdateStatus(s.ctx, c.ID, to, s.creator)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		}
	})
}

func (s *ServiceSuite) TestDissolve() {
	s.Run("any live company can be dissolved once", func() {
		c := s.create()
		dissolved, err := s.service.Dissolve(s.ctx, c.ID, s.creator)
		s.Require().NoError(err)
		s.Equal(models.StatusDissolved, dissolved.Status)
		s.Contains(s.actions(c.ID), audit.ActionCompanyDissolved)

		_, err = s.service.Dissolve(s.ctx, c.ID, s.creator)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})
}

func (s *ServiceSuite) TestSetupStatus() {
	s.Run("reports the verification record", func() {
		c := s.failVerification(s.create())

		status, err := s.service.SetupStatus(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, status.CompanyStatus)
		s.Equal(models.ValidationFailed, status.CNPJValidation.Status)
		s.Require().NotNil(status.CNPJValidation.Error)
		s.Equal(models.ErrCodeRegistryUnavailable, status.CNPJValidation.Error.Code)
		s.NotNil(status.CNPJValidation.FailedAt)
	})

	s.Run("unknown company is not found", func() {
		_, err := s.service.SetupStatus(s.ctx, id.NewCompanyID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
