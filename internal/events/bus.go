package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel for workflow events.
const Channel = "tradielink:workflow_events"

// Handler consumes one domain event. Handlers run synchronously on the
// publishing goroutine and must not block for long.
type Handler func(ctx context.Context, event domain.Event)

// Bus fans workflow events out to in-process handlers and, when a Redis
// client is attached, publishes the JSON-encoded event to Channel for
// external consumers. Publish never fails the caller: a broken Redis
// connection is logged and the in-process delivery still happens.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	redis    *redis.Client
	logger   *zap.Logger
}

// NewBus creates a Bus. redisClient may be nil to run without the external
// fan-out.
func NewBus(redisClient *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{redis: redisClient, logger: logger}
}

// Subscribe registers an in-process handler. Handlers registered after a
// Publish do not see earlier events.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish delivers the event to every in-process handler, then mirrors it to
// Redis when configured.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}

	if b.redis == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode workflow event",
			zap.String("entity", event.Entity),
			zap.Int64("entity_id", event.EntityID),
			zap.Error(err))
		return
	}
	if err := b.redis.Publish(ctx, Channel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish workflow event to redis",
			zap.String("entity", event.Entity),
			zap.Int64("entity_id", event.EntityID),
			zap.Error(err))
	}
}
