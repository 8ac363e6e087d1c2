package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"captable/internal/company/models"
	id "captable/pkg/domain"
	"captable/pkg/platform/sentinel"
)

// InMemoryStore keeps companies in a map. Copies are returned so callers can
// never mutate stored state without going through Update.
type InMemoryStore struct {
	mu        sync.RWMutex
	companies map[id.CompanyID]*models.Company
	byCNPJ    map[models.CNPJ]id.CompanyID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		companies: make(map[id.CompanyID]*models.Company),
		byCNPJ:    make(map[models.CNPJ]id.CompanyID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byCNPJ[company.RegistrationNumber]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.companies[company.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.companies[company.ID] = clone(company)
	s.byCNPJ[company.RegistrationNumber] = company.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, companyID id.CompanyID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) FindByRegistrationNumber(_ context.Context, cnpj models.CNPJ) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	companyID, ok := s.byCNPJ[cnpj]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.companies[companyID]), nil
}

func (s *InMemoryStore) Update(_ context.Context, companyID id.CompanyID, patch models.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Version != patch.ExpectedVersion {
		return sentinel.ErrConflict
	}
	if patch.Verification != nil {
		record := cloneRecord(*patch.Verification)
		patch.Verification = &record
	}
	c.Apply(patch)
	return nil
}

func (s *InMemoryStore) ListPending(_ context.Context, updatedBefore time.Time, limit int) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Company
	for _, c := range s.companies {
		if c.Status == models.StatusDraft &&
			c.Verification.ValidationStatus == models.ValidationPending &&
			c.UpdatedAt.Before(updatedBefore) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(c *models.Company) *models.Company {
	out := *c
	if c.VerifiedAt != nil {
		at := *c.VerifiedAt
		out.VerifiedAt = &at
	}
	out.Verification = cloneRecord(c.Verification)
	return &out
}

func cloneRecord(r models.VerificationRecord) models.VerificationRecord {
	out := r
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	if r.FailedAt != nil {
		at := *r.FailedAt
		out.FailedAt = &at
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		out.CompletedAt = &at
	}
	if r.Registry != nil {
		snap := *r.Registry
		out.Registry = &snap
	}
	return out
}
