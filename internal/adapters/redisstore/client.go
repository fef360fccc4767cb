// Package redisstore keeps the attempt ledger in Redis, so cooldown and
// breaker state survive a host move or a wiped local disk.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "polyexit"

// Config holds connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. per wallet.
	Prefix string
}

// Store implements ports.AttemptStore on a Redis hash.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New connects and pings Redis.
func New(ctx context.Context, cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore.New: ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) attemptsKey() string {
	return s.prefix + ":attempts"
}
