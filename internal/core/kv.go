package core

import (
	"context"
	"time"
)

// KV is the minimal key-value contract the session core needs for persisted
// metadata. A zero ttl means no expiry.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) (int64, error)
}
