package models

import (
	"strings"
	"time"

	id "captable/pkg/domain"
	dErrors "captable/pkg/domain-errors"
)

const maxNameLength = 200

// Company is the tenant root entity.
//
// Invariants:
//   - RegistrationNumber is a checksum-valid CNPJ and never changes
//   - Status only moves along the edges in transitions; DISSOLVED is final
//   - Only DRAFT companies are eligible for verification jobs
//   - Version increases by one on every persisted change
type Company struct {
	ID                 id.CompanyID       `json:"id"`
	Name               string             `json:"name"`
	RegistrationNumber CNPJ               `json:"registrationNumber"`
	Status             Status             `json:"status"`
	Verification       VerificationRecord `json:"verificationRecord"`
	VerifiedAt         *time.Time         `json:"verifiedAt,omitempty"`
	CreatorUserID      id.UserID          `json:"creatorUserId"`
	Version            int64              `json:"version"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// NewCompany builds a DRAFT company whose verification is owned by jobID.
func NewCompany(companyID id.CompanyID, name string, cnpj CNPJ, creator id.UserID, jobID id.JobID, now time.Time) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "company name must be 200 characters or less")
	}
	if cnpj == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration number is required")
	}
	if creator.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator user is required")
	}
	return &Company{
		ID:                 companyID,
		Name:               name,
		RegistrationNumber: cnpj,
		Status:             StatusDraft,
		Verification:       PendingRecord(jobID),
		CreatorUserID:      creator,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CanRetryVerification checks the retry eligibility rule: the company is still
// DRAFT and its last verification failed.
func (c *Company) CanRetryVerification() error {
	if c.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeBusinessRule, "verification retry requires status DRAFT, company is %s", c.Status)
	}
	if c.Verification.ValidationStatus != ValidationFailed {
		return dErrors.Newf(dErrors.CodeBusinessRule, "verification retry requires a FAILED verification, current is %s", c.Verification.ValidationStatus)
	}
	return nil
}

// Patch is a single atomic write against a company. Verification, when set,
// replaces the whole record.
type Patch struct {
	ExpectedVersion int64
	Status          *Status
	Verification    *VerificationRecord
	VerifiedAt      *time.Time
	UpdatedAt       time.Time
}

// Apply copies the patch onto the company and bumps the version. Stores call
// it after checking ExpectedVersion.
func (c *Company) Apply(p Patch) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Verification != nil {
		c.Verification = *p.Verification
	}
	if p.VerifiedAt != nil {
		at := *p.VerifiedAt
		c.VerifiedAt = &at
	}
	c.UpdatedAt = p.UpdatedAt
	c.Version++
}

// SetupStatus is the read model the onboarding screens poll.
type SetupStatus struct {
	CompanyID      id.CompanyID   `json:"companyId"`
	CompanyStatus  Status         `json:"companyStatus"`
	CNPJValidation CNPJValidation `json:"cnpjValidation"`
}

// CNPJValidation summarises the verification record for clients.
type CNPJValidation struct {
	Status     ValidationStatus   `json:"status"`
	Error      *VerificationError `json:"error,omitempty"`
	VerifiedAt *time.Time         `json:"verifiedAt,omitempty"`
	FailedAt   *time.Time         `json:"failedAt,omitempty"`
}

// SetupStatus projects the company onto its setup read model.
func (c *Company) SetupStatus() SetupStatus {
	return SetupStatus{
		CompanyID:     c.ID,
		CompanyStatus: c.Status,
		CNPJValidation: CNPJValidation{
			Status:     c.Verification.ValidationStatus,
			Error:      c.Verification.Error,
			VerifiedAt: c.VerifiedAt,
			FailedAt:   c.Verification.FailedAt,
		},
	}
}
