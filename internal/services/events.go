package services

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/piphub/backend/internal/coins"
)

// AdminFeedStream is the Redis channel carrying a summary of every committed
// transaction for the admin live feed.
const AdminFeedStream = "coins:admin:feed"

// BalanceStream returns the per-user Redis channel for balance updates.
func BalanceStream(userID string) string {
	return "coins:balance:" + userID
}

// EventPublisher pushes post-commit ledger events to the real-time layer.
// It must only ever be handed events for durably committed transactions.
type EventPublisher struct {
	redis  *redis.Client
	logger zerolog.Logger
}

func NewEventPublisher(rdb *redis.Client, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{redis: rdb, logger: logger}
}

// Publish sends a single event to its stream. Delivery is best-effort: the
// transaction is already committed, so a failed push is logged and dropped.
func (p *EventPublisher) Publish(ctx context.Context, ev coins.Event) {
	if p.redis == nil {
		p.logger.Debug().Str("stream", ev.Stream).Str("transaction_id", ev.TransactionID).
			Msg("Redis unavailable, event dropped")
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("transaction_id", ev.TransactionID).Msg("Failed to marshal event")
		return
	}

	if err := p.redis.Publish(ctx, ev.Stream, payload).Err(); err != nil {
		p.logger.Error().Err(err).Str("stream", ev.Stream).Str("transaction_id", ev.TransactionID).
			Msg("Failed to publish event")
	}
}

// PublishAll emits the side effects of a transaction executed inside a
// caller-owned storage transaction. Callers invoke it only after their own
// outer transaction has committed.
func (p *EventPublisher) PublishAll(ctx context.Context, effects *coins.SideEffects) {
	if effects == nil {
		return
	}
	for _, ev := range effects.Events {
		p.Publish(ctx, ev)
	}
}
