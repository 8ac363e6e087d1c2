package models

import (
	"fmt"

	dErrors "captable/pkg/domain-errors"
)

// Status is the company lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusDissolved Status = "DISSOLVED"
)

// Trigger names the operation requesting a status change. The same edge can be
// legal for one trigger and illegal for another (DRAFT → ACTIVE is reserved for
// verification).
type Trigger string

const (
	TriggerVerification Trigger = "verification"
	TriggerStatusChange Trigger = "status_change"
	TriggerDissolution  Trigger = "dissolution"
)

// transitions is the single source of truth for allowed edges.
// DISSOLVED has no outgoing edges.
var transitions = map[Status]map[Status]Trigger{
	StatusDraft: {
		StatusActive:    TriggerVerification,
		StatusDissolved: TriggerDissolution,
	},
	StatusActive: {
		StatusInactive:  TriggerStatusChange,
		StatusDissolved: TriggerDissolution,
	},
	StatusInactive: {
		StatusActive:    TriggerStatusChange,
		StatusDissolved: TriggerDissolution,
	},
	StatusDissolved: {},
}

// IsValid reports whether s is a known lifecycle state.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDissolved
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus validates a status coming from outside the domain.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown company status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether the edge from s to target is allowed for the trigger.
func (s Status) CanTransitionTo(target Status, via Trigger) bool {
	allowed, ok := transitions[s][target]
	return ok && allowed == via
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From    Status
	To      Status
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("company status cannot change from %s to %s via %s", e.From, e.To, e.Trigger)
}

// ValidateTransition returns a business_rule error wrapping *TransitionError
// when the edge is not allowed. Same-state requests are rejected too.
func ValidateTransition(from, to Status, via Trigger) error {
	if from.CanTransitionTo(to, via) {
		return nil
	}
	te := &TransitionError{From: from, To: to, Trigger: via}
	return dErrors.Wrap(te, dErrors.CodeBusinessRule, "invalid status transition")
}
