package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel carrying escrow change events.
// Clients subscribe here instead of polling account state.
const Channel = "escrow.events"

// Event describes a single escrow state change.
type Event struct {
	Kind            string    `json:"kind"`
	TransactionID   uuid.UUID `json:"transaction_id,omitempty"`
	EscrowAccountID uuid.UUID `json:"escrow_account_id,omitempty"`
	Status          string    `json:"status,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Event kinds emitted by the ledger.
const (
	KindTransactionCreated = "transaction.created"
	KindFundsHeld          = "funds.held"
	KindFundsReleased      = "funds.released"
	KindTransactionFailed  = "transaction.failed"
	KindAccountChanged     = "account.changed"
)

// Publisher emits escrow change events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// RedisPublisher publishes events on a Redis pub/sub channel. Publishing is
// best effort: a delivery failure is logged, never surfaced to the caller,
// because the ledger write has already committed.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("marshal escrow event", zap.Error(err), zap.String("kind", event.Kind))
		return
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		zap.L().Warn("publish escrow event failed", zap.Error(err), zap.String("kind", event.Kind))
	}
}

// NopPublisher discards events. Used in tests and when Redis is unavailable.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) {}
