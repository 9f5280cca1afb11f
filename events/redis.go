package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrExchangeClosed is returned by publishes after Close.
var ErrExchangeClosed = errors.New("exchange is closed")

// RedisConfig configures the Redis pub/sub exchange.
type RedisConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	Password     string `json:"password" yaml:"password"`
	DB           int    `json:"db" yaml:"db"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
	PoolSize     int    `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns" yaml:"min_idle_conns"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisExchange publishes governance events to Redis pub/sub channels, one
// channel per routing key. Consumers pattern-subscribe (PSUBSCRIBE
// penalty.applied.*) on their side.
type RedisExchange struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisExchange connects and verifies the connection with a ping.
func NewRedisExchange(cfg RedisConfig, logger *zap.Logger) (*RedisExchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis exchange connected", zap.String("addr", cfg.Addr))

	return &RedisExchange{
		client: client,
		logger: logger.With(zap.String("component", "redis_exchange")),
	}, nil
}

// Publish sends the payload on the topic's channel.
func (e *RedisExchange) Publish(ctx context.Context, topic string, payload []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExchangeClosed
	}
	if err := e.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Close shuts the client down.
func (e *RedisExchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Info("closing redis exchange")
	return e.client.Close()
}
