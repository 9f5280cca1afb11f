package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestExchange(t *testing.T) (*miniredis.Miniredis, *RedisExchange) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	ex, err := NewRedisExchange(cfg, zap.NewNop())
	require.NoError(t, err)

	return mr, ex
}

func TestNewRedisExchange(t *testing.T) {
	mr, ex := setupTestExchange(t)
	defer mr.Close()
	defer ex.Close()

	assert.NotNil(t, ex)
	assert.NotNil(t, ex.client)
	assert.NotNil(t, ex.logger)
}

func TestNewRedisExchange_ConnectFailed(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "localhost:9999" // nothing listens here

	ex, err := NewRedisExchange(cfg, zap.NewNop())
	assert.Nil(t, ex)
	assert.Error(t, err)
}

func TestRedisExchange_PublishRoundTrip(t *testing.T) {
	mr, ex := setupTestExchange(t)
	defer mr.Close()
	defer ex.Close()

	ctx := context.Background()
	topic := TopicPenaltyApplied(3, "agent-1")

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	pubsub := sub.Subscribe(ctx, topic)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before publishing.
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	err = ex.Publish(ctx, topic, []byte(`{"agentId":"agent-1","level":3}`))
	require.NoError(t, err)

	select {
	case msg := <-pubsub.Channel():
		assert.Equal(t, topic, msg.Channel)
		assert.Equal(t, `{"agentId":"agent-1","level":3}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestRedisExchange_PublishAfterClose(t *testing.T) {
	mr, ex := setupTestExchange(t)
	defer mr.Close()

	require.NoError(t, ex.Close())

	err := ex.Publish(context.Background(), "penalty.removed.agent-1", nil)
	assert.ErrorIs(t, err, ErrExchangeClosed)
}

func TestRedisExchange_CloseIsIdempotent(t *testing.T) {
	mr, ex := setupTestExchange(t)
	defer mr.Close()

	assert.NoError(t, ex.Close())
	assert.NoError(t, ex.Close())
}
