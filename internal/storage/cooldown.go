package storage

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/internal/kv"
)

// Cooldown kinds.
const (
	CooldownInteraction = "interaction"
	CooldownSpecial     = "special_effect"
	CooldownPunishment  = "punishment"
)

// fallbackCooldown applies to kinds without a configured duration.
const fallbackCooldown = 3 * time.Second

// DefaultCooldowns returns the stock per-kind durations.
func DefaultCooldowns() map[string]time.Duration {
	return map[string]time.Duration{
		CooldownInteraction: 30 * time.Second,
		CooldownSpecial:     3 * time.Minute,
		CooldownPunishment:  time.Minute,
	}
}

// Cooldowns rate-limits (subject, kind) pairs. An entry that exists within
// its window means the pair is still cooling down.
type Cooldowns struct {
	kv        kv.Store
	durations map[string]time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewCooldowns builds a gate over the same store as s.
func (s *Storage) NewCooldowns(durations map[string]time.Duration) *Cooldowns {
	if durations == nil {
		durations = DefaultCooldowns()
	}
	return &Cooldowns{kv: s.kv, durations: durations, now: s.now, log: s.log}
}

// Duration returns the configured window for kind.
func (c *Cooldowns) Duration(kind string) time.Duration {
	if d, ok := c.durations[kind]; ok {
		return d
	}
	return fallbackCooldown
}

// CheckAndRenew reports whether subject may act. When allowed, a new window
// starts; when denied nothing is written. Store failures fail open.
func (c *Cooldowns) CheckAndRenew(ctx context.Context, subject, kind string) bool {
	d := c.Duration(kind)
	if d <= 0 {
		return true
	}

	key := CooldownPrefix + kind + ":" + subject
	now := c.now()

	last, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("cooldown read failed")
		return true
	}
	if ok {
		if ms, err := strconv.ParseInt(last, 10, 64); err == nil && now.Sub(time.UnixMilli(ms)) < d {
			return false
		}
	}

	ttl := time.Duration(math.Ceil(d.Seconds())) * time.Second
	if err := c.kv.SetEx(ctx, key, ttl, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("cooldown write failed")
	}
	return true
}
