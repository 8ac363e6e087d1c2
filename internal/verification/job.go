// Package verification runs the asynchronous CNPJ verification pipeline:
// dispatching jobs, classifying registry failures, committing terminal
// outcomes and fanning out side effects.
package verification

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"captable/internal/company/models"
	id "captable/pkg/domain"
)

// TaskType is the queue job type for registry verification.
const TaskType = "verify-registration"

// DefaultMaxAttempts is used when no attempt metadata is available.
const DefaultMaxAttempts = 3

// ErrInvalidJob marks payloads that can never succeed. Queues must not retry them.
var ErrInvalidJob = errors.New("invalid verification job")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Job is the queue payload. JobID is also the company's verification record
// owner: only this job may commit the outcome.
type Job struct {
	JobID              id.JobID     `json:"jobId" validate:"required"`
	CompanyID          id.CompanyID `json:"companyId" validate:"required"`
	RegistrationNumber string       `json:"registrationNumber" validate:"required,len=14,numeric"`
	CreatorUserID      id.UserID    `json:"creatorUserId" validate:"required"`
	CompanyName        string       `json:"companyName" validate:"required,max=200"`
}

// NewJob builds the payload for a company whose pending record names jobID.
func NewJob(c *models.Company) Job {
	return Job{
		JobID:              c.Verification.JobID,
		CompanyID:          c.ID,
		RegistrationNumber: c.RegistrationNumber.String(),
		CreatorUserID:      c.CreatorUserID,
		CompanyName:        c.Name,
	}
}

// Validate checks the payload at the queue boundary.
func (j Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}

// Attempt is the queue-managed delivery metadata. Number is zero-based.
type Attempt struct {
	Number      int
	MaxAttempts int
}

// IsFinal reports whether no redelivery will follow a failure of this attempt.
func (a Attempt) IsFinal() bool {
	return a.Number+1 >= a.MaxAttempts
}
