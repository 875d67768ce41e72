package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestPublishOpensBreakerAfterFailures(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	b := newBroker(client, Config{FailureThreshold: 2, OpenTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Publish(ctx, "care.events", map[string]string{"type": "test"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	err := b.Publish(ctx, "care.events", map[string]string{"type": "test"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	b := newBroker(client, Config{}, zerolog.Nop())
	err := b.Publish(context.Background(), "care.events", make(chan int))
	assert.ErrorContains(t, err, "marshal")
}

func TestNewRedisBrokerInvalidURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "://bad"}, zerolog.Nop())
	assert.Error(t, err)
}
