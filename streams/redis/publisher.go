package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/dexarb/arbitrage"
	"github.com/redis/go-redis/v9"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is the subset of *redis.Client the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

var _ Client = (*redis.Client)(nil)

// Config holds the configuration for a Publisher.
type Config struct {
	Client Client
	// Channel receives every evaluated path set as a JSON array.
	Channel string
	// LatestKey, if set, is overwritten with the latest path set.
	LatestKey string
	// TTL of LatestKey. Zero keeps it forever.
	TTL    time.Duration
	Logger Logger
}

func (c *Config) validate() error {
	if c.Client == nil {
		return errors.New("config: Client cannot be nil")
	}
	if c.Channel == "" {
		return errors.New("config: Channel is required")
	}
	if c.TTL < 0 {
		return errors.New("config: TTL cannot be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Publisher pushes path sets to redis pub/sub.
type Publisher struct {
	client    Client
	channel   string
	latestKey string
	ttl       time.Duration
	logger    Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		client:    cfg.Client,
		channel:   cfg.Channel,
		latestKey: cfg.LatestKey,
		ttl:       cfg.TTL,
		logger:    cfg.Logger,
	}, nil
}

// Publish encodes arbs and publishes it, then stores it under the latest key.
func (p *Publisher) Publish(ctx context.Context, arbs []arbitrage.ArbPath) error {
	payload, err := json.Marshal(arbs)
	if err != nil {
		return fmt.Errorf("redis: encode arbs: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	p.logger.Debug("Published arbs", "channel", p.channel, "paths", len(arbs), "receivers", receivers)

	if p.latestKey == "" {
		return nil
	}
	if err := p.client.Set(ctx, p.latestKey, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", p.latestKey, err)
	}
	return nil
}

// Run publishes every set received on arbs until ctx is cancelled or arbs is
// closed. Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, arbs <-chan []arbitrage.ArbPath) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case set, ok := <-arbs:
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, set); err != nil {
				p.logger.Error("Failed to publish arbs", "error", err)
			}
		}
	}
}
