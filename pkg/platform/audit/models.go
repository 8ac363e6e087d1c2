package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "captable/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Sinks use it for routing and retention.
type EventCategory string

const (
	// CategoryCompliance covers lifecycle changes with legal significance:
	// activation, dissolution, verification outcomes.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// ActorType distinguishes human actors from the system itself.
type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
)

// Action is the machine-readable audit action code.
type Action string

const (
	ActionCompanyCreated        Action = "company.created"
	ActionVerificationCompleted Action = "company.verification.completed"
	ActionVerificationFailed    Action = "company.verification.failed"
	ActionVerificationRetried   Action = "company.verification.retried"
	ActionStatusChanged         Action = "company.status.changed"
	ActionCompanyDissolved      Action = "company.dissolved"
)

const ResourceCompany = "company"

var actionCategories = map[Action]EventCategory{
	ActionVerificationCompleted: CategoryCompliance,
	ActionVerificationFailed:    CategoryCompliance,
	ActionStatusChanged:         CategoryCompliance,
	ActionCompanyDissolved:      CategoryCompliance,

	ActionCompanyCreated:      CategoryOperations,
	ActionVerificationRetried: CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Changes holds opaque before/after snapshots. Either side may be nil.
type Changes struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Metadata is stored after redaction: IP is masked and the user agent is
// reduced to a browser/OS summary.
type Metadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Event is an append-only audit record. It is never mutated or deleted.
type Event struct {
	ID           uuid.UUID    `json:"id"`
	ActorID      *id.UserID   `json:"actorId"`
	ActorType    ActorType    `json:"actorType"`
	Action       Action       `json:"action"`
	ResourceType string       `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	CompanyID    id.CompanyID `json:"companyId"`
	Changes      Changes      `json:"changes"`
	Metadata     Metadata     `json:"metadata"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Store appends audit events. Implementations must not modify past events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
