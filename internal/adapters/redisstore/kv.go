package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store persists session metadata in Redis. Implements core.KV.
type Store struct {
	client *redis.Client
}

// New parses the URL, connects and pings. A dead Redis is a startup
// failure, not something to discover on the first session.
func New(ctx context.Context, redisURL string) (*Store, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info().Str("module", "redisstore").Msg("connected to redis")
	return &Store{client: client}, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) (int64, error) {
	return s.client.Del(ctx, key).Result()
}

func (s *Store) Close() error {
	err := s.client.Close()
	if err == nil {
		log.Info().Str("module", "redisstore").Msg("redis connection closed")
	}
	return err
}
