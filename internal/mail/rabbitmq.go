package mail

import (
	"context"
	"fmt"
)

// Publisher is satisfied by *rabbitmq.Producer.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
}

// QueueMailer hands emails to the delivery service over RabbitMQ.
type QueueMailer struct {
	publisher  Publisher
	exchange   string
	routingKey string
}

func NewQueueMailer(publisher Publisher, exchange, routingKey string) *QueueMailer {
	return &QueueMailer{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

func (m *QueueMailer) Send(ctx context.Context, req Request) error {
	if req.To == "" {
		return fmt.Errorf("email recipient is required")
	}
	req.Locale = NormalizeLocale(req.Locale)
	if req.Subject == "" {
		req.Subject = Subject(req.Template, req.Locale)
	}
	if err := m.publisher.Publish(ctx, m.exchange, m.routingKey, req); err != nil {
		return fmt.Errorf("submit email: %w", err)
	}
	return nil
}
