// Package publisher stamps, redacts and persists audit events.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "captable/pkg/platform/audit"
	"captable/pkg/requestcontext"
)

// Publisher writes audit events synchronously. Callers decide whether a
// failure is fatal; the verification side effects log and continue.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills in the id, timestamp and request metadata, redacts it and
// appends the event to the store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}
	if event.ResourceType == "" {
		event.ResourceType = audit.ResourceCompany
	}
	if event.Metadata.IP == "" {
		event.Metadata.IP = requestcontext.ClientIP(ctx)
	}
	if event.Metadata.UserAgent == "" {
		event.Metadata.UserAgent = requestcontext.UserAgent(ctx)
	}
	if event.Metadata.RequestID == "" {
		event.Metadata.RequestID = requestcontext.RequestID(ctx)
	}
	event.Metadata = event.Metadata.Redact()

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures(event.Action)
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit append failed",
				"action", event.Action,
				"company_id", event.CompanyID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted(event.Action)
	}
	return nil
}
