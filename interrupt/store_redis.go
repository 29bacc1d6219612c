package interrupt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed durable store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// KeyPrefix namespaces interrupt keys; defaults to "interrupt:".
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// TTL expires persisted records; zero keeps them until the external
	// sweep or an explicit delete.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultRedisConfig returns sensible local defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "interrupt:",
	}
}

// RedisStore persists interrupts as JSON values keyed by execution id.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "interrupt:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "interrupt_redis_store")),
	}, nil
}

func (s *RedisStore) key(executionID string) string {
	return s.cfg.KeyPrefix + executionID
}

func (s *RedisStore) write(ctx context.Context, rec *Interrupt) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal interrupt %s: %w", rec.ExecutionID, err)
	}
	if err := s.client.Set(ctx, s.key(rec.ExecutionID), data, s.cfg.TTL).Err(); err != nil {
		s.logger.Error("interrupt write failed",
			zap.String("execution_id", rec.ExecutionID),
			zap.Error(err),
		)
		return fmt.Errorf("write interrupt %s: %w", rec.ExecutionID, err)
	}
	return nil
}

func (s *RedisStore) Insert(ctx context.Context, rec *Interrupt) error {
	return s.write(ctx, rec)
}

func (s *RedisStore) GetByExecutionID(ctx context.Context, executionID string) (*Interrupt, error) {
	data, err := s.client.Get(ctx, s.key(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read interrupt %s: %w", executionID, err)
	}

	var rec Interrupt
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal interrupt %s: %w", executionID, err)
	}
	return &rec, nil
}

func (s *RedisStore) UpdateByExecutionID(ctx context.Context, rec *Interrupt) error {
	// Overwrite-by-key is the whole update contract; no read-modify-write.
	return s.write(ctx, rec)
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
