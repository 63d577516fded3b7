// Package redis publishes run_settled events on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/dossier/adapter"
)

const (
	// DefaultChannel is used when Config.Channel is empty.
	DefaultChannel = "dossier:run_settled"

	defaultTimeout = 5 * time.Second
	defaultRetries = 2
)

// Config controls Redis delivery.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Channel is the pub/sub channel name. Defaults to DefaultChannel.
	Channel string

	// Password is optional.
	Password string

	// DB selects the logical database.
	DB int

	// Timeout bounds a single publish attempt. Defaults to 5s.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first
	// failure. Defaults to 2.
	Retries int
}

// Adapter publishes events via PUBLISH.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

var _ adapter.Adapter = (*Adapter)(nil)

// New connects to Redis and returns an adapter. The connection is
// verified with a PING before returning.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Adapter{cfg: cfg, client: client}, nil
}

// Publish sends the event as JSON, retrying with exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event adapter.RunSettledEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	attempts := 1 + a.cfg.Retries
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(500*(1<<uint(i-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		lastErr = a.client.Publish(pubCtx, a.cfg.Channel, body).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redis: publish failed after %d attempts: %w", attempts, lastErr)
}

// Close closes the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}
