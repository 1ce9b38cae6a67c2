package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBus fans events out across service instances via Redis pub/sub, so
// a dashboard connected to one instance sees jobs tracked by another.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBus(ctx context.Context, cfg RedisBusConfig, logger *zap.Logger) (*RedisBus, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "riskdash_events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisBus{
		client:  client,
		channel: cfg.Channel,
		logger:  logger,
	}, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, encoded).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe forwards the Redis subscription into a typed channel. The
// forwarding goroutine exits when the subscription is cancelled.
func (b *RedisBus) Subscribe() (<-chan Event, func()) {
	pubsub := b.client.Subscribe(context.Background(), b.channel)
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		for message := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed event payload", zap.Error(err))
				continue
			}
			select {
			case out <- event:
			default:
				b.logger.Warn("event dropped for slow subscriber",
					zap.String("kind", string(event.Kind)),
				)
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel
}
