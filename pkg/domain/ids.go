// Package domain holds identifier types shared across bounded contexts.
//
// IDs are distinct named types over uuid.UUID so a CompanyID can never be
// passed where a UserID is expected. Construct them from external input via
// the Parse functions, which reject malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "captable/pkg/domain-errors"
)

// CompanyID identifies a company (the tenant root entity).
type CompanyID uuid.UUID

// UserID identifies a back-office user.
type UserID uuid.UUID

// JobID identifies one enqueued verification job.
type JobID uuid.UUID

func NewCompanyID() CompanyID { return CompanyID(uuid.New()) }
func NewUserID() UserID       { return UserID(uuid.New()) }
func NewJobID() JobID         { return JobID(uuid.New()) }

func (id CompanyID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id JobID) String() string     { return uuid.UUID(id).String() }

func (id CompanyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// ParseCompanyID parses a company id from untrusted input.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID(s, "company id")
	return CompanyID(u), err
}

// ParseUserID parses a user id from untrusted input.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseJobID parses a job id, typically the queue task id.
func ParseJobID(s string) (JobID, error) {
	u, err := parseUUID(s, "job id")
	return JobID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Text marshalling keeps IDs readable in JSON payloads and JSONB columns.

func (id CompanyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id JobID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *CompanyID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *JobID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
