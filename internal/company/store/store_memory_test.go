package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"captable/internal/company/models"
	id "captable/pkg/domain"
	"captable/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newCompany(cnpj models.CNPJ) *models.Company {
	c, err := models.NewCompany(id.NewCompanyID(), "Acme Ltda", cnpj, id.NewUserID(), id.NewJobID(), s.now)
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) TestCreate() {
	s.Run("stores and finds by id and registration number", func() {
		c := s.newCompany("11222333000181")
		s.Require().NoError(s.store.Create(s.ctx, c))

		byID, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.Name, byID.Name)

		byCNPJ, err := s.store.FindByRegistrationNumber(s.ctx, "11222333000181")
		s.Require().NoError(err)
		s.Equal(c.ID, byCNPJ.ID)
	})

	s.Run("duplicate registration number is rejected", func() {
		c := s.newCompany("33932745000148")
		s.Require().NoError(s.store.Create(s.ctx, c))
		err := s.store.Create(s.ctx, s.newCompany("33932745000148"))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("missing company returns ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, id.NewCompanyID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestUpdate() {
	s.Run("applies patch and bumps version", func() {
		c := s.newCompany("19013178000103")
		s.Require().NoError(s.store.Create(s.ctx, c))

		active := models.StatusActive
		record := models.CompletedRecord(c.Verification.JobID, models.RegistrySnapshot{RegistrationStatus: "active"}, s.now)
		err := s.store.Update(s.ctx, c.ID, models.Patch{
			ExpectedVersion: c.Version,
			Status:          &active,
			Verification:    &record,
			VerifiedAt:      &s.now,
			UpdatedAt:       s.now,
		})
		s.Require().NoError(err)

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, found.Status)
		s.Equal(models.ValidationCompleted, found.Verification.ValidationStatus)
		s.Equal(c.Version+1, found.Version)
	})

	s.Run("stale version is rejected", func() {
		c := s.newCompany("60574622000155")
		s.Require().NoError(s.store.Create(s.ctx, c))

		err := s.store.Update(s.ctx, c.ID, models.Patch{ExpectedVersion: c.Version + 1, UpdatedAt: s.now})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown company returns ErrNotFound", func() {
		err := s.store.Update(s.ctx, id.NewCompanyID(), models.Patch{ExpectedVersion: 1})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned copies do not alias stored state", func() {
		c := s.newCompany("47380032000123")
		s.Require().NoError(s.store.Create(s.ctx, c))

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		found.Status = models.StatusDissolved

		again, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, again.Status)
	})
}

func (s *InMemoryStoreSuite) TestListPending() {
	s.Run("returns stale pending drafts oldest first", func() {
		older := s.newCompany("11222333000181")
		older.UpdatedAt = s.now.Add(-10 * time.Minute)
		newer := s.newCompany("33932745000148")
		newer.UpdatedAt = s.now.Add(-5 * time.Minute)
		recent := s.newCompany("19013178000103")
		recent.UpdatedAt = s.now
		for _, c := range []*models.Company{recent, newer, older} {
			s.Require().NoError(s.store.Create(s.ctx, c))
		}

		pending, err := s.store.ListPending(s.ctx, s.now.Add(-time.Minute), 10)
		s.Require().NoError(err)
		s.Require().Len(pending, 2)
		s.Equal(older.ID, pending[0].ID)
		s.Equal(newer.ID, pending[1].ID)

		limited, err := s.store.ListPending(s.ctx, s.now.Add(-time.Minute), 1)
		s.Require().NoError(err)
		s.Require().Len(limited, 1)
		s.Equal(older.ID, limited[0].ID)
	})

	s.Run("terminal records are not pending", func() {
		c := s.newCompany("45597149000138")
		c.UpdatedAt = s.now.Add(-time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, c))
		record := models.FailedRecord(c.Verification.JobID, models.ErrCodeRegistryUnavailable, "registry down", s.now.Add(-time.Hour), nil)
		s.Require().NoError(s.store.Update(s.ctx, c.ID, models.Patch{
			ExpectedVersion: c.Version,
			Verification:    &record,
			UpdatedAt:       s.now.Add(-time.Hour),
		}))

		pending, err := s.store.ListPending(s.ctx, s.now, 10)
		s.Require().NoError(err)
		s.Empty(pending)
	})
}
