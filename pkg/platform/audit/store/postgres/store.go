package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	id "captable/pkg/domain"
	audit "captable/pkg/platform/audit"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store appends audit events to the audit_events table.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Append inserts the event. Duplicate ids are ignored so a redelivered write
// cannot produce a second row.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var actorID *uuid.UUID
	if event.ActorID != nil && !event.ActorID.IsNil() {
		uid := uuid.UUID(*event.ActorID)
		actorID = &uid
	}

	query := `
		INSERT INTO audit_events (
			id, category, actor_id, actor_type, action, resource_type,
			resource_id, company_id, changes, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.Exec(ctx, query,
		event.ID,
		string(event.Action.Category()),
		actorID,
		string(event.ActorType),
		string(event.Action),
		event.ResourceType,
		event.ResourceID,
		uuid.UUID(event.CompanyID),
		changes,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCompany returns a company's audit trail, oldest first.
func (s *Store) ListByCompany(ctx context.Context, companyID id.CompanyID) ([]audit.Event, error) {
	query := `
		SELECT id, actor_id, actor_type, action, resource_type, resource_id,
		       company_id, changes, metadata, created_at
		FROM audit_events
		WHERE company_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			rawID        string
			rawActorID   *string
			actorType    string
			action       string
			resourceType string
			resourceID   string
			rawCompanyID string
			changes      []byte
			metadata     []byte
			createdAt    time.Time
		)
		if err := rows.Scan(&rawID, &rawActorID, &actorType, &action, &resourceType, &resourceID,
			&rawCompanyID, &changes, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event := audit.Event{
			ActorType:    audit.ActorType(actorType),
			Action:       audit.Action(action),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			CreatedAt:    createdAt,
		}
		if event.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("decode audit event id: %w", err)
		}
		cid, err := uuid.Parse(rawCompanyID)
		if err != nil {
			return nil, fmt.Errorf("decode audit company id: %w", err)
		}
		event.CompanyID = id.CompanyID(cid)
		if rawActorID != nil {
			actor, err := id.ParseUserID(*rawActorID)
			if err != nil {
				return nil, fmt.Errorf("decode audit actor id: %w", err)
			}
			event.ActorID = &actor
		}
		if err := json.Unmarshal(changes, &event.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
