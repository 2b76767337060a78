package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Send(context.Context, TransactionEvent) error { return f.err }

type countingNotifier struct{ n int }

func (c *countingNotifier) Send(context.Context, TransactionEvent) error {
	c.n++
	return nil
}

func sampleEvent() TransactionEvent {
	return TransactionEvent{
		EventType:     EventTransactionCompleted,
		TransactionID: "tx-1",
		UserID:        "alice",
		Kind:          "withdrawal",
		Status:        "completed",
		Amount:        decimal.RequireFromString("100"),
		Fee:           decimal.RequireFromString("2.50"),
		OccurredAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, TransactionEventsChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisNotifier(rdb).Send(ctx, sampleEvent()))

	select {
	case msg := <-sub.Channel():
		var got TransactionEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "tx-1", got.TransactionID)
		assert.True(t, got.Fee.Equal(decimal.RequireFromString("2.50")))
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingNotifier{}
	m := Multi{failingNotifier{err: boom}, counter, nil}

	err := m.Send(context.Background(), sampleEvent())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter.n)
}
