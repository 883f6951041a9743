package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const clientName = "opd-token-allocation"

// NewRedisClient connects and pings. The client carries event publishing and
// the shared rate limit window; both are optional, so callers decide whether
// a failure here is fatal.
func NewRedisClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(clientOptions(addr, username, password))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return rdb, nil
}

// Read and write timeouts stay below the event sink timeout.
func clientOptions(addr, username, password string) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		ClientName:   clientName,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}
}
