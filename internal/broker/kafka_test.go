package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConsumer() *Consumer {
	return &Consumer{
		logger:     zap.NewNop(),
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}
}

func TestHandleWithRetryRedeliversFailedMessage(t *testing.T) {
	c := newTestConsumer()
	msg := kafka.Message{Partition: 0, Offset: 42, Value: []byte(`{}`)}

	var seen []int64
	handler := func(ctx context.Context, m kafka.Message) error {
		seen = append(seen, m.Offset)
		if len(seen) == 1 {
			return errors.New("redis: connection refused")
		}
		return nil
	}

	require.NoError(t, c.handleWithRetry(context.Background(), msg, handler))
	assert.Equal(t, []int64{42, 42}, seen)
}

func TestHandleWithRetryKeepsTryingUntilSuccess(t *testing.T) {
	c := newTestConsumer()
	attempts := 0
	handler := func(ctx context.Context, m kafka.Message) error {
		attempts++
		if attempts < 5 {
			return fmt.Errorf("attempt %d failed", attempts)
		}
		return nil
	}

	require.NoError(t, c.handleWithRetry(context.Background(), kafka.Message{}, handler))
	assert.Equal(t, 5, attempts)
}

func TestHandleWithRetrySkipsUndecodable(t *testing.T) {
	c := newTestConsumer()
	attempts := 0
	h := NewEventHandler()
	handler := func(ctx context.Context, m kafka.Message) error {
		attempts++
		return h.HandleMessage(ctx, m)
	}

	require.NoError(t, c.handleWithRetry(context.Background(), kafka.Message{Value: []byte("not json")}, handler))
	assert.Equal(t, 1, attempts)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	c := newTestConsumer()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	handler := func(ctx context.Context, m kafka.Message) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("still down")
	}

	err := c.handleWithRetry(ctx, kafka.Message{}, handler)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, attempts)
}
