// Package directory resolves user contact details for outbound email.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	id "captable/pkg/domain"
	"captable/pkg/platform/sentinel"
)

// Contact is the slice of a user record the mailer needs.
type Contact struct {
	UserID    id.UserID
	Email     string
	Locale    string
	FirstName string
}

// HasEmail reports whether the contact can receive email.
func (c *Contact) HasEmail() bool {
	return c != nil && strings.Contains(strings.TrimSpace(c.Email), "@")
}

// Lookup finds a user's contact record. Returns sentinel.ErrNotFound for
// unknown users.
type Lookup interface {
	Contact(ctx context.Context, userID id.UserID) (*Contact, error)
}

// InMemory is a map-backed Lookup.
type InMemory struct {
	mu       sync.RWMutex
	contacts map[id.UserID]Contact
}

func NewInMemory() *InMemory {
	return &InMemory{contacts: make(map[id.UserID]Contact)}
}

func (d *InMemory) Put(c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[c.UserID] = c
}

func (d *InMemory) Contact(_ context.Context, userID id.UserID) (*Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads contacts from the users table.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) Contact(ctx context.Context, userID id.UserID) (*Contact, error) {
	var (
		email     *string
		locale    string
		firstName string
	)
	err := d.db.QueryRow(ctx,
		`SELECT email, locale, first_name FROM users WHERE id = $1`,
		uuid.UUID(userID),
	).Scan(&email, &locale, &firstName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user contact: %w", err)
	}
	c := &Contact{UserID: userID, Locale: locale, FirstName: firstName}
	if email != nil {
		c.Email = *email
	}
	return c, nil
}
