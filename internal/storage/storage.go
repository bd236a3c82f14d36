// /internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/internal/kv"
	st "github.com/keshon/pokebot/internal/storagetypes"
)

// Key prefixes. Kept stable so existing Redis data stays readable.
const (
	UserPrefix     = "xrk:poke:user:"
	DailyPrefix    = "xrk:poke:daily:"
	OffensePrefix  = "xrk:poke:master:"
	CooldownPrefix = "xrk:poke:cd:"
)

const (
	userTTL    = 7 * 24 * time.Hour
	offenseTTL = 24 * time.Hour
)

// Storage gives typed access to poke state on top of a kv.Store.
type Storage struct {
	kv  kv.Store
	log zerolog.Logger
	now func() time.Time
	loc *time.Location
}

// New wraps store. now and loc may be nil.
func New(store kv.Store, log zerolog.Logger, now func() time.Time, loc *time.Location) *Storage {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Storage{kv: store, log: log, now: now, loc: loc}
}

// KV exposes the underlying store.
func (s *Storage) KV() kv.Store {
	return s.kv
}

func (s *Storage) Close() error {
	return s.kv.Close()
}

// LoadUser never fails: store errors and malformed records are logged and
// the subject starts over from defaults.
func (s *Storage) LoadUser(ctx context.Context, subject string) st.UserState {
	data, ok, err := s.kv.Get(ctx, UserPrefix+subject)
	if err != nil {
		s.log.Error().Err(err).Str("subject", subject).Msg("failed to load user state")
		return st.DefaultUserState()
	}
	if !ok {
		return st.DefaultUserState()
	}

	state, err := MergeUserState(st.DefaultUserState(), []byte(data))
	if err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("user state partly unreadable, defaults used")
	}
	return state
}

// SaveUser writes state with a fresh seven day ttl.
func (s *Storage) SaveUser(ctx context.Context, subject string, state st.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error marshalling user state: %w", err)
	}
	if err := s.kv.SetEx(ctx, UserPrefix+subject, userTTL, string(data)); err != nil {
		return fmt.Errorf("save user state %s: %w", subject, err)
	}
	return nil
}

// MergeUserState overlays a persisted document on defaults field by field.
// A field present in the document with a usable value wins; missing, null or
// mistyped fields keep the default. A document that is not a JSON object
// yields the defaults untouched. Derived fields are recomputed afterwards.
func MergeUserState(defaults st.UserState, data []byte) (st.UserState, error) {
	out := defaults.Clone()

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return out, fmt.Errorf("error unmarshalling user state: %w", err)
	}

	var errs []error
	num := func(key string, dst *int) {
		raw, ok := doc[key]
		if !ok || string(raw) == "null" {
			return
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = int(math.Round(f))
	}

	num("intimacy", &out.Intimacy)
	num("moodValue", &out.MoodValue)
	num("consecutivePokes", &out.Consecutive)
	num("totalPokes", &out.Total)

	if raw, ok := doc["lastInteraction"]; ok && string(raw) != "null" {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			errs = append(errs, fmt.Errorf("lastInteraction: %w", err))
		} else {
			out.LastInteraction = int64(f)
		}
	}

	if raw, ok := doc["achievements"]; ok && string(raw) != "null" {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			errs = append(errs, fmt.Errorf("achievements: %w", err))
		} else {
			out.Achievements = dedupe(ids)
		}
	}

	// mood and relationship are derived and never trusted from disk.
	out.Normalize()
	return out, errors.Join(errs...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func offenseKey(scope, actor string) string {
	return OffensePrefix + scope + ":" + actor
}

// LoadOffense returns the record for actor in scope, or a fresh one.
func (s *Storage) LoadOffense(ctx context.Context, scope, actor string) st.OffenseRecord {
	fresh := st.OffenseRecord{LastOffense: s.now().UnixMilli()}

	data, ok, err := s.kv.Get(ctx, offenseKey(scope, actor))
	if err != nil {
		s.log.Error().Err(err).Str("scope", scope).Str("actor", actor).Msg("failed to load offense record")
		return fresh
	}
	if !ok {
		return fresh
	}

	var rec st.OffenseRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Str("actor", actor).Msg("offense record unreadable, starting over")
		return fresh
	}
	if rec.Count < 0 {
		rec.Count = 0
	}
	return rec
}

// SaveOffense stamps the record and writes it with a fresh 24h ttl.
func (s *Storage) SaveOffense(ctx context.Context, scope, actor string, rec *st.OffenseRecord) error {
	rec.LastOffense = s.now().UnixMilli()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshalling offense record: %w", err)
	}
	if err := s.kv.SetEx(ctx, offenseKey(scope, actor), offenseTTL, string(data)); err != nil {
		return fmt.Errorf("save offense record %s/%s: %w", scope, actor, err)
	}
	return nil
}

// IncrementDaily bumps the subject's counter for today; it expires at the
// end of the local day.
func (s *Storage) IncrementDaily(ctx context.Context, subject string) (int64, error) {
	key := DailyPrefix + subject
	n, err := s.kv.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment daily count: %w", err)
	}
	if err := s.kv.Expire(ctx, key, s.untilEndOfDay()); err != nil {
		return n, fmt.Errorf("expire daily count: %w", err)
	}
	return n, nil
}

// DailyCount returns today's counter for subject.
func (s *Storage) DailyCount(ctx context.Context, subject string) (int64, error) {
	v, ok, err := s.kv.Get(ctx, DailyPrefix+subject)
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscan(v, &n); err != nil {
		return 0, fmt.Errorf("daily count %q: %w", v, err)
	}
	return n, nil
}

func (s *Storage) untilEndOfDay() time.Duration {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), s.loc)
	ttl := end.Sub(now).Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
