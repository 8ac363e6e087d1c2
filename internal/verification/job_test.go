package verification_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captable/internal/company/models"
	"captable/internal/verification"
	id "captable/pkg/domain"
)

func TestNewJobCarriesVerificationOwner(t *testing.T) {
	cnpj, err := models.ParseCNPJ("11.222.333/0001-81")
	require.NoError(t, err)
	jobID := id.NewJobID()
	company, err := models.NewCompany(id.NewCompanyID(), "Acme Ltda", cnpj, id.NewUserID(), jobID, time.Now())
	require.NoError(t, err)

	job := verification.NewJob(company)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, company.ID, job.CompanyID)
	assert.Equal(t, validCNPJ, job.RegistrationNumber)
	assert.Equal(t, company.CreatorUserID, job.CreatorUserID)
	assert.Equal(t, "Acme Ltda", job.CompanyName)
	assert.NoError(t, job.Validate())
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*verification.Job)
	}{
		{"missing job id", func(j *verification.Job) { j.JobID = id.JobID{} }},
		{"missing company id", func(j *verification.Job) { j.CompanyID = id.CompanyID{} }},
		{"missing creator", func(j *verification.Job) { j.CreatorUserID = id.UserID{} }},
		{"short registration number", func(j *verification.Job) { j.RegistrationNumber = "1122233300018" }},
		{"non numeric registration number", func(j *verification.Job) { j.RegistrationNumber = "11222333000A81" }},
		{"empty company name", func(j *verification.Job) { j.CompanyName = "" }},
		{"company name too long", func(j *verification.Job) { j.CompanyName = strings.Repeat("a", 201) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(&job)
			assert.ErrorIs(t, job.Validate(), verification.ErrInvalidJob)
		})
	}
}

func TestAttemptIsFinal(t *testing.T) {
	assert.False(t, verification.Attempt{Number: 0, MaxAttempts: 3}.IsFinal())
	assert.False(t, verification.Attempt{Number: 1, MaxAttempts: 3}.IsFinal())
	assert.True(t, verification.Attempt{Number: 2, MaxAttempts: 3}.IsFinal())
	assert.True(t, verification.Attempt{Number: 0, MaxAttempts: 1}.IsFinal())
	assert.True(t, verification.Attempt{Number: 5, MaxAttempts: 3}.IsFinal())
}
