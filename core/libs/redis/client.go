// Package rediscli wraps go-redis client construction with a startup
// health check, matching the teacher's core/libs/redis client.
package rediscli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the subset of connection parameters every service needs.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings before returning, so a misconfigured
// backend address fails fast at startup rather than on first use.
func NewClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
