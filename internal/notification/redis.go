package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultInboxSize = 100
	defaultInboxTTL  = 30 * 24 * time.Hour
	// EventsChannel carries every notification for live subscribers.
	EventsChannel = "notifications:events"
)

// RedisNotifier appends notifications to a capped per-user inbox list and
// publishes them for connected clients.
type RedisNotifier struct {
	client    redis.Cmdable
	inboxSize int64
	inboxTTL  time.Duration
	now       func() time.Time
}

type RedisOption func(*RedisNotifier)

func WithInboxSize(n int64) RedisOption {
	return func(r *RedisNotifier) {
		if n > 0 {
			r.inboxSize = n
		}
	}
}

func WithInboxTTL(ttl time.Duration) RedisOption {
	return func(r *RedisNotifier) {
		if ttl > 0 {
			r.inboxTTL = ttl
		}
	}
}

func NewRedisNotifier(client redis.Cmdable, opts ...RedisOption) *RedisNotifier {
	r := &RedisNotifier{
		client:    client,
		inboxSize: defaultInboxSize,
		inboxTTL:  defaultInboxTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InboxKey is the list holding a user's notifications, newest first.
func InboxKey(userID string) string {
	return "notifications:inbox:" + userID
}

func (r *RedisNotifier) Submit(ctx context.Context, req Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.now()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := InboxKey(req.UserID.String())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, r.inboxSize-1)
		pipe.Expire(ctx, key, r.inboxTTL)
		pipe.Publish(ctx, EventsChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("submit notification: %w", err)
	}
	return nil
}
