package poke

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keshon/pokebot/internal/kv"
	"github.com/keshon/pokebot/internal/storage"
	st "github.com/keshon/pokebot/internal/storagetypes"
)

// fixedRand returns the same draw every time; IntN always picks the first
// element.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
func (fixedRand) IntN(int) int       { return 0 }

// seqRand replays draws in order and repeats the last one.
type seqRand struct {
	mu    sync.Mutex
	draws []float64
}

func (s *seqRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.draws[0]
	if len(s.draws) > 1 {
		s.draws = s.draws[1:]
	}
	return v
}

func (*seqRand) IntN(int) int { return 0 }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// afternoon keeps the late-night mood penalty and time slots out of tests.
var afternoon = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

type fakeHost struct {
	mu      sync.Mutex
	roles   Roles
	muteErr error
	replies []Response
	mutes   []time.Duration
	pokes   []string
}

func (h *fakeHost) Roles(context.Context, Event) (Roles, error) {
	return h.roles, nil
}

func (h *fakeHost) Reply(_ context.Context, _ Event, r Response) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies = append(h.replies, r)
	return nil
}

func (h *fakeHost) Mute(_ context.Context, _ Event, _ string, d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.muteErr != nil {
		return h.muteErr
	}
	h.mutes = append(h.mutes, d)
	return nil
}

func (h *fakeHost) Poke(_ context.Context, _ Event, user string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pokes = append(h.pokes, user)
	return nil
}

func (h *fakeHost) pokeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pokes)
}

// quietSettings turns every probabilistic module off except what a test
// enables, and never stops the pipeline early.
func quietSettings() Settings {
	s := DefaultSettings()
	s.Location = time.UTC
	s.Chances = Chances{}
	s.Modules.Image = false
	s.MasterImage = false
	return s
}

func newTestStorage(t *testing.T, c *clock) *storage.Storage {
	t.Helper()
	local, err := kv.NewLocal("", zerolog.Nop(), c.Now)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })
	return storage.New(local, zerolog.Nop(), c.Now, time.UTC)
}

func newTestEngine(t *testing.T, settings Settings, rng Rand, c *clock) (*Engine, *storage.Storage) {
	t.Helper()
	store := newTestStorage(t, c)
	tasks := NewTasks(context.Background(), zerolog.Nop())
	t.Cleanup(func() {
		tasks.jobs.StopAll()
		tasks.Wait()
	})
	e := NewEngine(Options{
		Store:    store,
		Settings: settings,
		Rand:     rng,
		Tasks:    tasks,
		Logger:   zerolog.Nop(),
	})
	return e, store
}

func botEvent(actor string, at time.Time) Event {
	return Event{
		ID:        "ev-" + actor,
		ActorID:   actor,
		ActorName: "Alice",
		TargetID:  "bot",
		SelfID:    "bot",
		ScopeID:   "g1",
		ChannelID: "c1",
		At:        at,
	}
}

func newTurn(state st.UserState, settings *Settings, fx Effects) (*Turn, *Decision) {
	out := &Decision{}
	return &Turn{
		Event:    botEvent("u1", afternoon),
		State:    state,
		Settings: settings,
		Corpus:   DefaultCorpus(),
		Hour:     15,
		Effects:  fx.withDefaults(),
		log:      zerolog.Nop(),
		out:      out,
	}, out
}
