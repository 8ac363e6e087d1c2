// Package registry looks up a company's legal registration status by CNPJ.
package registry

import (
	"context"
	"time"
)

// RegistrationStatus is the normalized registry status.
type RegistrationStatus string

const (
	StatusActive    RegistrationStatus = "active"
	StatusClosed    RegistrationStatus = "closed"
	StatusSuspended RegistrationStatus = "suspended"
	StatusUnfit     RegistrationStatus = "unfit"
	StatusVoid      RegistrationStatus = "void"
	StatusUnknown   RegistrationStatus = "unknown"
)

// IsActive reports whether the registry considers the entity active.
func (s RegistrationStatus) IsActive() bool {
	return s == StatusActive
}

// Record is a registry answer for one CNPJ.
type Record struct {
	CNPJ               string
	RegistrationStatus RegistrationStatus
	RawStatus          string
	LegalName          string
	TradeName          string
	LegalNature        string
	IncorporationDate  string
	Address            string
	ShareCapital       float64
	Source             string
	CheckedAt          time.Time
}

// Client queries the external registry. Implementations return *LookupError
// for every failure so callers can classify it.
type Client interface {
	Lookup(ctx context.Context, cnpj string) (*Record, error)
}
