package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TransactionEventsChannel is the pub/sub channel transaction events go to.
const TransactionEventsChannel = "wallet.transactions"

// RedisNotifier publishes events on a Redis channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

// NewRedisNotifier publishes to TransactionEventsChannel.
func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: TransactionEventsChannel}
}

// Send publishes the JSON-encoded event.
func (n *RedisNotifier) Send(ctx context.Context, event TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
