package verification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captable/internal/company/models"
	"captable/internal/registry"
	"captable/internal/verification"
)

func TestClassifyLookupError(t *testing.T) {
	outage := registry.NewLookupError(registry.ErrorProviderOutage, "registry unavailable", nil)
	timeout := registry.NewLookupError(registry.ErrorTimeout, "registry lookup timed out", context.DeadlineExceeded)

	tests := []struct {
		name    string
		err     error
		attempt verification.Attempt
		want    verification.Decision
	}{
		{
			name:    "outage on first of three retries silently",
			err:     outage,
			attempt: verification.Attempt{Number: 0, MaxAttempts: 3},
			want:    verification.Decision{Retry: true},
		},
		{
			name:    "outage on second of three retries silently",
			err:     outage,
			attempt: verification.Attempt{Number: 1, MaxAttempts: 3},
			want:    verification.Decision{Retry: true},
		},
		{
			name:    "outage on final attempt is exhausted",
			err:     outage,
			attempt: verification.Attempt{Number: 2, MaxAttempts: 3},
			want: verification.Decision{
				Reraise: true,
				Outcome: verification.OutcomeTransientExhausted,
				Code:    models.ErrCodeRegistryUnavailable,
				Message: outage.Error(),
			},
		},
		{
			name:    "timeout on final attempt keeps its own code",
			err:     timeout,
			attempt: verification.Attempt{Number: 2, MaxAttempts: 3},
			want: verification.Decision{
				Reraise: true,
				Outcome: verification.OutcomeTransientExhausted,
				Code:    models.ErrCodeRegistryTimeout,
				Message: timeout.Error(),
			},
		},
		{
			name:    "foreign error is treated as transient",
			err:     errors.New("dial tcp: connection refused"),
			attempt: verification.Attempt{Number: 0, MaxAttempts: 3},
			want:    verification.Decision{Retry: true},
		},
		{
			name:    "not found is definitive on the first attempt",
			err:     registry.NewLookupError(registry.ErrorNotFound, "cnpj not found", nil),
			attempt: verification.Attempt{Number: 0, MaxAttempts: 3},
			want: verification.Decision{
				Outcome: verification.OutcomeDefinitiveFailure,
				Code:    models.ErrCodeCNPJNotFound,
				Message: "registry [not_found]: cnpj not found",
			},
		},
		{
			name:    "bad data on the first attempt retries silently",
			err:     registry.NewLookupError(registry.ErrorBadData, "malformed payload", nil),
			attempt: verification.Attempt{Number: 0, MaxAttempts: 3},
			want:    verification.Decision{Retry: true},
		},
		{
			name:    "rejected credentials on the first attempt retry silently",
			err:     registry.NewLookupError(registry.ErrorAuthentication, "registry rejected credentials (401)", nil),
			attempt: verification.Attempt{Number: 0, MaxAttempts: 3},
			want:    verification.Decision{Retry: true},
		},
		{
			name:    "bad data on the final attempt is exhausted as rejected",
			err:     registry.NewLookupError(registry.ErrorBadData, "malformed payload", nil),
			attempt: verification.Attempt{Number: 2, MaxAttempts: 3},
			want: verification.Decision{
				Reraise: true,
				Outcome: verification.OutcomeTransientExhausted,
				Code:    models.ErrCodeRegistryRejected,
				Message: "registry [bad_data]: malformed payload",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verification.ClassifyLookupError(tt.err, tt.attempt))
		})
	}
}

func TestClassifyRecord(t *testing.T) {
	t.Run("active registration succeeds", func(t *testing.T) {
		d := verification.ClassifyRecord(&registry.Record{RegistrationStatus: registry.StatusActive})
		assert.Equal(t, verification.OutcomeSuccess, d.Outcome)
		assert.False(t, d.Retry)
		assert.False(t, d.Reraise)
		assert.Empty(t, d.Code)
	})

	t.Run("closed registration is a business rejection", func(t *testing.T) {
		d := verification.ClassifyRecord(&registry.Record{RegistrationStatus: registry.StatusClosed, RawStatus: "BAIXADA"})
		assert.Equal(t, verification.OutcomeDefinitiveFailure, d.Outcome)
		assert.False(t, d.Retry)
		assert.False(t, d.Reraise)
		assert.Equal(t, models.ErrCodeStatusNotActive, d.Code)
		assert.Contains(t, d.Message, "closed")
		assert.Contains(t, d.Message, "BAIXADA")
	})
}

func TestSnapshotKeepsRegistryFieldsSeparate(t *testing.T) {
	rec := &registry.Record{
		RegistrationStatus: registry.StatusSuspended,
		RawStatus:          "SUSPENSA",
		LegalName:          "ACME LTDA",
		ShareCapital:       5000,
		Source:             "minhareceita",
	}
	snap := verification.Snapshot(rec)
	require.Equal(t, "suspended", snap.RegistrationStatus)
	assert.Equal(t, "ACME LTDA", snap.LegalName)
	assert.Equal(t, 5000.0, snap.ShareCapital)
	assert.Equal(t, "minhareceita", snap.Source)
}

func TestOutcomeIsFailure(t *testing.T) {
	assert.False(t, verification.OutcomeSuccess.IsFailure())
	assert.True(t, verification.OutcomeDefinitiveFailure.IsFailure())
	assert.True(t, verification.OutcomeTransientExhausted.IsFailure())
}
