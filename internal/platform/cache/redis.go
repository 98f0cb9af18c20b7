// Package cache opens the Redis client that backs dashboard sessions.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects the Redis server and tunes the client. Zero values keep
// go-redis defaults.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// PingTimeout bounds the startup check. Defaults to 5s.
	PingTimeout time.Duration
}

// New creates a Redis client and fails unless the server answers a ping
// with the given credentials and database.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s db %d: %w", opts.Addr, opts.DB, err)
	}

	return client, nil
}
