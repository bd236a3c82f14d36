package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/datastore"
)

// Local is a Store over the in-process datastore. An empty path keeps
// everything in memory.
type Local struct {
	ds *datastore.DataStore

	mu    sync.Mutex
	globs map[string]glob.Glob
}

// NewLocal opens a local store. now may be nil.
func NewLocal(path string, logger zerolog.Logger, now func() time.Time) (*Local, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = logger.With().Str("component", "datastore").Logger()
	if now != nil {
		cfg.Now = now
	}
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Local{ds: ds, globs: make(map[string]glob.Glob)}, nil
}

func (l *Local) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := l.ds.Get(key)
	return v, ok, nil
}

func (l *Local) Set(_ context.Context, key, value string) error {
	return l.ds.Set(key, value, 0)
}

func (l *Local) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	if ttl <= 0 {
		return fmt.Errorf("setex %q: invalid ttl %v", key, ttl)
	}
	return l.ds.Set(key, value, ttl)
}

func (l *Local) Incr(_ context.Context, key string) (int64, error) {
	return l.ds.Incr(key)
}

func (l *Local) Expire(_ context.Context, key string, ttl time.Duration) error {
	l.ds.Expire(key, ttl)
	return nil
}

func (l *Local) Del(_ context.Context, keys ...string) error {
	l.ds.Delete(keys...)
	return nil
}

func (l *Local) Keys(_ context.Context, pattern string) ([]string, error) {
	g, err := l.compile(pattern)
	if err != nil {
		return nil, err
	}
	return l.ds.Keys(g.Match), nil
}

// TTL truncates to whole seconds like Redis does, so an entry in its last
// second reports 0.
func (l *Local) TTL(_ context.Context, key string) (time.Duration, error) {
	rem, hasExpiry, ok := l.ds.TTL(key)
	switch {
	case !ok:
		return Missing, nil
	case !hasExpiry:
		return NoExpiry, nil
	default:
		return rem.Truncate(time.Second), nil
	}
}

// Reap drops expired entries from memory.
func (l *Local) Reap() int {
	return l.ds.Reap()
}

// Stats reports what the local store currently holds.
func (l *Local) Stats() datastore.Stats {
	return l.ds.Stats()
}

func (l *Local) Close() error {
	return l.ds.Close()
}

func (l *Local) compile(pattern string) (glob.Glob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if g, ok := l.globs[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", pattern, err)
	}
	l.globs[pattern] = g
	return g, nil
}
