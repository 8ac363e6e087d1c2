package models

import (
	"time"

	id "captable/pkg/domain"
)

// ValidationStatus tracks the registry verification of a company's CNPJ.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "PENDING"
	ValidationCompleted ValidationStatus = "COMPLETED"
	ValidationFailed    ValidationStatus = "FAILED"
)

// Stable machine-readable codes stored in VerificationRecord.Error.
const (
	ErrCodeRegistryUnavailable = "REGISTRY_UNAVAILABLE"
	ErrCodeRegistryTimeout     = "REGISTRY_TIMEOUT"
	ErrCodeRegistryRejected    = "REGISTRY_REJECTED"
	ErrCodeStatusNotActive     = "REGISTRY_STATUS_NOT_ACTIVE"
	ErrCodeCNPJNotFound        = "CNPJ_NOT_FOUND"
	ErrCodeDispatchFailed      = "VERIFICATION_DISPATCH_FAILED"
)

// VerificationError is the user-visible failure payload.
type VerificationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RegistrySnapshot holds the descriptive fields returned by the registry.
// It is always stored as its own nested value so external data can never
// overwrite the authoritative fields of VerificationRecord.
type RegistrySnapshot struct {
	RegistrationStatus string    `json:"registrationStatus"`
	RawStatus          string    `json:"rawStatus,omitempty"`
	LegalName          string    `json:"legalName,omitempty"`
	TradeName          string    `json:"tradeName,omitempty"`
	LegalNature        string    `json:"legalNature,omitempty"`
	IncorporationDate  string    `json:"incorporationDate,omitempty"`
	Address            string    `json:"address,omitempty"`
	ShareCapital       float64   `json:"shareCapital,omitempty"`
	Source             string    `json:"source,omitempty"`
	CheckedAt          time.Time `json:"checkedAt"`
}

// VerificationRecord is replaced wholesale on every terminal outcome.
//
// Invariants:
//   - JobID names the only job allowed to commit a terminal outcome
//   - Error and FailedAt are set iff ValidationStatus is FAILED
//   - CompletedAt is set iff ValidationStatus is COMPLETED
type VerificationRecord struct {
	ValidationStatus ValidationStatus   `json:"validationStatus"`
	JobID            id.JobID           `json:"jobId"`
	Error            *VerificationError `json:"error,omitempty"`
	FailedAt         *time.Time         `json:"failedAt,omitempty"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Registry         *RegistrySnapshot  `json:"registry,omitempty"`
}

// IsTerminal reports whether verification finished, successfully or not.
func (r VerificationRecord) IsTerminal() bool {
	return r.ValidationStatus == ValidationCompleted || r.ValidationStatus == ValidationFailed
}

// PendingRecord starts a verification owned by jobID.
func PendingRecord(jobID id.JobID) VerificationRecord {
	return VerificationRecord{ValidationStatus: ValidationPending, JobID: jobID}
}

// CompletedRecord records a successful registry verification.
func CompletedRecord(jobID id.JobID, snapshot RegistrySnapshot, at time.Time) VerificationRecord {
	return VerificationRecord{
		ValidationStatus: ValidationCompleted,
		JobID:            jobID,
		CompletedAt:      &at,
		Registry:         &snapshot,
	}
}

// FailedRecord records a terminal failure. snapshot is nil when the registry
// never answered.
func FailedRecord(jobID id.JobID, code, message string, at time.Time, snapshot *RegistrySnapshot) VerificationRecord {
	return VerificationRecord{
		ValidationStatus: ValidationFailed,
		JobID:            jobID,
		Error:            &VerificationError{Code: code, Message: message},
		FailedAt:         &at,
		Registry:         snapshot,
	}
}
