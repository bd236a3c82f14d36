package storage

import (
	"context"
	"time"
)

// SchedulerOptions tunes RunScheduler.
type SchedulerOptions struct {
	Interval  time.Duration // default one hour
	ResetHour int           // local hour at which daily counters are dropped
}

// RunScheduler runs the daily reset and the expired-key sweep on its own
// ticker until ctx is done. Call it in a goroutine; it never touches the
// event path.
func RunScheduler(ctx context.Context, store *Storage, opts SchedulerOptions) {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Tick(ctx, opts.ResetHour)
		}
	}
}

// Tick performs one scheduler round.
func (s *Storage) Tick(ctx context.Context, resetHour int) {
	if s.now().In(s.loc).Hour() == resetHour {
		if n, err := s.ResetDaily(ctx); err != nil {
			s.log.Error().Err(err).Msg("daily reset failed")
		} else {
			s.log.Info().Int("keys", n).Msg("daily counters reset")
		}
	}
	if n, err := s.SweepExpired(ctx); err != nil {
		s.log.Error().Err(err).Msg("expired sweep failed")
	} else if n > 0 {
		s.log.Debug().Int("keys", n).Msg("expired keys swept")
	}
}

// ResetDaily deletes every daily counter.
func (s *Storage) ResetDaily(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, DailyPrefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return len(keys), s.kv.Del(ctx, keys...)
}

type reaper interface {
	Reap() int
}

// SweepExpired deletes state, offense and cooldown keys whose ttl reads as
// exactly zero. It is advisory: reads already ignore expired entries.
func (s *Storage) SweepExpired(ctx context.Context) (int, error) {
	swept := 0
	if r, ok := s.kv.(reaper); ok {
		swept += r.Reap()
	}

	for _, prefix := range []string{UserPrefix, OffensePrefix, CooldownPrefix} {
		keys, err := s.kv.Keys(ctx, prefix+"*")
		if err != nil {
			return swept, err
		}
		for _, key := range keys {
			ttl, err := s.kv.TTL(ctx, key)
			if err != nil {
				return swept, err
			}
			if ttl != 0 {
				continue
			}
			if err := s.kv.Del(ctx, key); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}
