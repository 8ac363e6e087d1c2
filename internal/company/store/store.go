// Package store persists companies. Stores are pure I/O: state machine rules
// live in models, eligibility checks live in the callers.
package store

import (
	"context"
	"time"

	"captable/internal/company/models"
	id "captable/pkg/domain"
)

// Store is the company persistence contract shared by the service and the
// verification worker.
type Store interface {
	// Create inserts a new company. Returns sentinel.ErrAlreadyUsed when the
	// registration number is taken.
	Create(ctx context.Context, company *models.Company) error
	// FindByID returns sentinel.ErrNotFound when the company does not exist.
	FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error)
	FindByRegistrationNumber(ctx context.Context, cnpj models.CNPJ) (*models.Company, error)
	// Update applies the patch as one atomic write. Returns sentinel.ErrConflict
	// when the stored version differs from patch.ExpectedVersion.
	Update(ctx context.Context, companyID id.CompanyID, patch models.Patch) error
	// ListPending returns up to limit DRAFT companies whose verification is
	// still PENDING and were last written before updatedBefore, oldest first.
	ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Company, error)
}
