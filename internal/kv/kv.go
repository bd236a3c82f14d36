// Package kv is the TTL-capable key-value contract the poke engine persists to.
//
// Two backends are provided: Redis (when a URL is configured) and Local, an
// in-process map with lazy expiry that can be persisted to a JSON file.
// Expired entries are never returned by Get or Keys, whether or not they have
// been physically removed yet.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/datastore"
)

// Special TTL results, matching Redis semantics.
const (
	NoExpiry time.Duration = -1
	Missing  time.Duration = -2
)

// ErrNotInteger is returned by Incr when the stored value is not an integer.
var ErrNotInteger = datastore.ErrNotInteger

// Store is the storage contract. Incr must be atomic per key; nothing else
// is atomic across keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Close() error
}

// Options selects and tunes a backend.
type Options struct {
	RedisURL    string
	StoragePath string
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Open returns a Redis store when RedisURL is set and reachable, otherwise a
// Local store persisted at StoragePath.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.RedisURL != "" {
		r, err := DialRedis(ctx, opts.RedisURL)
		if err == nil {
			opts.Logger.Info().Msg("using redis store")
			return r, nil
		}
		opts.Logger.Warn().Err(err).Msg("redis unavailable, falling back to local store")
	}

	l, err := NewLocal(opts.StoragePath, opts.Logger, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	opts.Logger.Info().Str("path", opts.StoragePath).Msg("using local store")
	return l, nil
}
