package verification

import (
	"fmt"

	"captable/internal/company/models"
	"captable/internal/registry"
)

// Outcome is a terminal verification result handed to the side effects.
type Outcome string

const (
	OutcomeSuccess            Outcome = "SUCCESS"
	OutcomeDefinitiveFailure  Outcome = "DEFINITIVE_FAILURE"
	OutcomeTransientExhausted Outcome = "TRANSIENT_EXHAUSTED"
)

// IsFailure reports whether the outcome leaves the company in DRAFT.
func (o Outcome) IsFailure() bool {
	return o == OutcomeDefinitiveFailure || o == OutcomeTransientExhausted
}

// Decision is what the worker does with one lookup result.
//
// Retry means: return the error, touch nothing. Otherwise the worker commits
// Outcome (with Code/Message on failures) and returns the lookup error only
// when Reraise is set.
type Decision struct {
	Retry   bool
	Reraise bool
	Outcome Outcome
	Code    string
	Message string
}

// ClassifyLookupError decides what a raised lookup error means on the given
// attempt. A registry that has no record for the CNPJ is definitive at any
// attempt. Everything else, including rejected credentials and undecodable
// payloads, is transient until the final attempt.
func ClassifyLookupError(err error, attempt Attempt) Decision {
	if !registry.IsRetryable(err) {
		return Decision{
			Outcome: OutcomeDefinitiveFailure,
			Code:    models.ErrCodeCNPJNotFound,
			Message: err.Error(),
		}
	}
	if !attempt.IsFinal() {
		return Decision{Retry: true}
	}
	code := models.ErrCodeRegistryUnavailable
	switch registry.CategoryOf(err) {
	case registry.ErrorTimeout:
		code = models.ErrCodeRegistryTimeout
	case registry.ErrorAuthentication, registry.ErrorBadData:
		code = models.ErrCodeRegistryRejected
	}
	return Decision{
		Reraise: true,
		Outcome: OutcomeTransientExhausted,
		Code:    code,
		Message: err.Error(),
	}
}

// ClassifyRecord decides what a registry answer means. Only an active
// registration activates the company; any other status is a business
// rejection and is never retried.
func ClassifyRecord(rec *registry.Record) Decision {
	if rec.RegistrationStatus.IsActive() {
		return Decision{Outcome: OutcomeSuccess}
	}
	msg := fmt.Sprintf("registry reports registration status %q", rec.RegistrationStatus)
	if rec.RawStatus != "" {
		msg = fmt.Sprintf("registry reports registration status %q (%s)", rec.RegistrationStatus, rec.RawStatus)
	}
	return Decision{
		Outcome: OutcomeDefinitiveFailure,
		Code:    models.ErrCodeStatusNotActive,
		Message: msg,
	}
}

// Snapshot copies the descriptive registry fields into the nested record value.
func Snapshot(rec *registry.Record) models.RegistrySnapshot {
	return models.RegistrySnapshot{
		RegistrationStatus: string(rec.RegistrationStatus),
		RawStatus:          rec.RawStatus,
		LegalName:          rec.LegalName,
		TradeName:          rec.TradeName,
		LegalNature:        rec.LegalNature,
		IncorporationDate:  rec.IncorporationDate,
		Address:            rec.Address,
		ShareCapital:       rec.ShareCapital,
		Source:             rec.Source,
		CheckedAt:          rec.CheckedAt,
	}
}
