package poke

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/pokebot/internal/kv"
	"github.com/keshon/pokebot/internal/storage"
	st "github.com/keshon/pokebot/internal/storagetypes"
)

func TestDecide_FirstPokeUnlocksAchievement(t *testing.T) {
	c := &clock{now: afternoon}
	e, _ := newTestEngine(t, DefaultSettings(), fixedRand(0.99), c)

	state := st.DefaultUserState()
	state.SetIntimacy(5)

	d := e.Decide(context.Background(), state, botEvent("u1", afternoon), Roles{}, Effects{Rand: fixedRand(0.99)})

	assert.Equal(t, 1, d.State.Total)
	assert.Equal(t, 1, d.State.Consecutive)
	assert.Equal(t, 6, d.State.Intimacy)
	assert.Equal(t, []string{"first_poke"}, d.State.Achievements)
	require.Len(t, d.Responses, 1)
	assert.Contains(t, d.Responses[0].Text, "First Contact")
	assert.Equal(t, "u1", d.Responses[0].Mention)
	assert.Empty(t, state.Achievements, "input state is not mutated")
}

func TestDecide_IsReproducible(t *testing.T) {
	c := &clock{now: afternoon}
	settings := DefaultSettings()
	settings.Location = time.UTC
	e, _ := newTestEngine(t, settings, nil, c)

	state := st.DefaultUserState()
	state.SetIntimacy(120)
	state.Consecutive = 7
	state.LastInteraction = afternoon.Add(-time.Second).UnixMilli()
	ev := botEvent("u1", afternoon)

	a := e.Decide(context.Background(), state, ev, Roles{}, Effects{Rand: NewRand(42)})
	b := e.Decide(context.Background(), state, ev, Roles{}, Effects{Rand: NewRand(42)})
	assert.Equal(t, a, b)
}

func TestHandle_StreakReachesPunishment(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.Chances.Punishment = 1
	settings.Cooldowns = map[string]time.Duration{
		storage.CooldownInteraction: 0,
		storage.CooldownPunishment:  0,
		storage.CooldownSpecial:     0,
	}
	e, store := newTestEngine(t, settings, fixedRand(0), c)
	host := &fakeHost{roles: Roles{BotOwner: true}}

	var last Result
	for range 11 {
		last = e.Handle(context.Background(), botEvent("u1", c.Now()), host)
		require.Equal(t, StatusHandled, last.Status)
		c.Advance(4 * time.Second)
	}

	assert.Equal(t, 11, last.Decision.State.Consecutive)
	require.NotEmpty(t, host.mutes)
	assert.Equal(t, 660*time.Second, host.mutes[len(host.mutes)-1])
	assert.Equal(t, PunishmentMuteDuration(11), host.mutes[len(host.mutes)-1])
	assert.Len(t, host.mutes, 6, "streaks six through eleven are punishable")

	saved := store.LoadUser(context.Background(), "u1")
	assert.Equal(t, 11, saved.Consecutive)
	assert.Equal(t, 11, saved.Total)

	daily, err := store.DailyCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 11, daily)
}

func TestHandle_InteractionCooldown(t *testing.T) {
	c := &clock{now: afternoon}
	e, store := newTestEngine(t, quietSettings(), fixedRand(0.99), c)
	host := &fakeHost{}

	assert.Equal(t, StatusHandled, e.Handle(context.Background(), botEvent("u1", c.Now()), host).Status)
	c.Advance(10 * time.Second)
	assert.Equal(t, StatusCooling, e.Handle(context.Background(), botEvent("u1", c.Now()), host).Status)
	c.Advance(20 * time.Second)
	assert.Equal(t, StatusHandled, e.Handle(context.Background(), botEvent("u1", c.Now()), host).Status)

	assert.Equal(t, 2, store.LoadUser(context.Background(), "u1").Total)
}

func TestHandle_IgnoresOtherTargetsAndSelf(t *testing.T) {
	c := &clock{now: afternoon}
	e, _ := newTestEngine(t, quietSettings(), fixedRand(0.99), c)
	host := &fakeHost{}

	ev := botEvent("u1", c.Now())
	ev.TargetID = "someone"
	assert.Equal(t, StatusIgnored, e.Handle(context.Background(), ev, host).Status)

	ev.TargetID = "u1"
	assert.Equal(t, StatusSelf, e.Handle(context.Background(), ev, host).Status)

	settings := quietSettings()
	settings.Enabled = false
	off, _ := newTestEngine(t, settings, fixedRand(0.99), c)
	assert.Equal(t, StatusDisabled, off.Handle(context.Background(), botEvent("u1", c.Now()), host).Status)
	assert.Empty(t, host.replies)
}

func TestHandle_PersistsStateAsJSON(t *testing.T) {
	c := &clock{now: afternoon}
	e, store := newTestEngine(t, quietSettings(), fixedRand(0.99), c)

	e.Handle(context.Background(), botEvent("u1", c.Now()), &fakeHost{})

	raw, ok, err := store.KV().Get(context.Background(), storage.UserPrefix+"u1")
	require.NoError(t, err)
	require.True(t, ok)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.EqualValues(t, 1, doc["totalPokes"])
	assert.EqualValues(t, 1, doc["consecutivePokes"])
	assert.Equal(t, "stranger", doc["relationship"])
	assert.Equal(t, []any{"first_poke"}, doc["achievements"])

	ttl, err := store.KV().TTL(context.Background(), storage.UserPrefix+"u1")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, ttl)
}

// downStore fails every read and write.
type downStore struct{ kv.Store }

var errDown = errors.New("connection refused")

func (downStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errDown
}

func (downStore) SetEx(context.Context, string, time.Duration, string) error {
	return errDown
}

func (downStore) Incr(context.Context, string) (int64, error) {
	return 0, errDown
}

func (downStore) Expire(context.Context, string, time.Duration) error {
	return errDown
}

func TestHandle_StoreOutageStillReplies(t *testing.T) {
	c := &clock{now: afternoon}
	local, err := kv.NewLocal("", zerolog.Nop(), c.Now)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })
	store := storage.New(downStore{local}, zerolog.Nop(), c.Now, time.UTC)

	tasks := NewTasks(context.Background(), zerolog.Nop())
	t.Cleanup(tasks.Wait)
	e := NewEngine(Options{
		Store:    store,
		Settings: quietSettings(),
		Rand:     fixedRand(0.99),
		Tasks:    tasks,
		Logger:   zerolog.Nop(),
	})
	host := &fakeHost{}

	for range 2 {
		res := e.Handle(context.Background(), botEvent("u1", c.Now()), host)
		require.Equal(t, StatusHandled, res.Status, "cooldown reads fail open")
		assert.Equal(t, 1, res.Decision.State.Total, "state starts from defaults")
		c.Advance(time.Second)
	}

	require.Len(t, host.replies, 2)
	for _, r := range host.replies {
		assert.Contains(t, r.Text, "First Contact")
	}
}

func TestPunishLevel_Monotonic(t *testing.T) {
	prev := 0
	for count := 0; count <= 15; count++ {
		level := PunishLevel(count)
		require.GreaterOrEqual(t, level, prev, "count %d", count)
		prev = level
	}
	assert.Equal(t, 1, PunishLevel(3))
	assert.Equal(t, 2, PunishLevel(4))
	assert.Equal(t, 2, PunishLevel(10))
	assert.Equal(t, 3, PunishLevel(11))

	assert.Equal(t, 10800*time.Second, EscalationMuteDuration(3, 12))
	assert.Equal(t, 24*time.Hour, EscalationMuteDuration(3, 100))
	assert.Equal(t, 15, EscalationPokeCount(3))
	assert.Equal(t, 20, EscalationPokeCount(5))
}

func TestEscalate_RepeatOffender(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.PokebackEnabled = true
	e, _ := newTestEngine(t, settings, fixedRand(0), c)

	var muted time.Duration
	fx := Effects{
		Rand: fixedRand(0),
		Mute: func(_ context.Context, d time.Duration) error { muted = d; return nil },
	}
	ev := botEvent("u2", afternoon)
	ev.TargetID = "owner"

	d := e.Escalate(context.Background(), st.OffenseRecord{Count: 11}, ev, Roles{BotAdmin: true}, fx)

	require.NotNil(t, d.Offense)
	assert.Equal(t, 12, d.Offense.Count)
	assert.Equal(t, 10800*time.Second, muted)
	require.Len(t, d.Responses, 3)
	assert.Equal(t, "That's 12 times now, Alice. You've been warned.", d.Responses[0].Text)
	assert.Equal(t, "Muted for 180 minutes. Think about what you did.", d.Responses[1].Text)
	assert.Equal(t, "Counterattack!", d.Responses[2].Text)
	require.Len(t, d.Actions, 2)
	assert.Equal(t, Action{Kind: ActionPoke, Target: "u2", Count: 15, Interval: 800 * time.Millisecond}, d.Actions[1])
}

func TestEscalate_PoolByActorRole(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.MasterPunishment = false
	e, _ := newTestEngine(t, settings, fixedRand(0), c)
	ev := botEvent("u2", afternoon)

	first := func(roles Roles, count int) string {
		d := e.Escalate(context.Background(), st.OffenseRecord{Count: count}, ev, roles, Effects{Rand: fixedRand(0)})
		require.Len(t, d.Responses, 1)
		return d.Responses[0].Text
	}

	assert.Equal(t, "Even the server owner doesn't get to poke my master.", first(Roles{ActorOwner: true, ActorAdmin: true}, 20))
	assert.Equal(t, "Admins are not exempt. Stop poking my master.", first(Roles{ActorAdmin: true}, 20))
	assert.Equal(t, "Hands off my master, Alice!", first(Roles{}, 4))
	assert.Equal(t, "That's 6 times now, Alice. You've been warned.", first(Roles{}, 5))

	// An owner without an owner pool gets the normal line, not the admin one.
	corpus := DefaultCorpus()
	corpus.MasterProtection.OwnerWarning = nil
	e.corpus.Store(corpus)
	assert.Equal(t, "Hands off my master, Alice!", first(Roles{ActorOwner: true, ActorAdmin: true}, 20))
}

func TestEscalate_ThemedImageAndMuteFailure(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.MasterImage = true
	e, _ := newTestEngine(t, settings, fixedRand(0), c)

	fx := Effects{
		Rand:  fixedRand(0.4),
		Media: fakeMedia{themed: "https://img.example/poke.png"},
		Mute:  func(context.Context, time.Duration) error { return ErrMuteUnsupported },
	}
	d := e.Escalate(context.Background(), st.OffenseRecord{}, botEvent("u2", afternoon), Roles{BotOwner: true}, fx)

	require.Len(t, d.Responses, 3)
	assert.Equal(t, Response{Kind: ResponseImage, Media: "https://img.example/poke.png"}, d.Responses[1])
	assert.Equal(t, "I can't mute you, but I'm watching you.", d.Responses[2].Text)
	require.Len(t, d.Actions, 1)
	assert.ErrorIs(t, d.Actions[0].Err, ErrMuteUnsupported)
	assert.Equal(t, 300*time.Second, d.Actions[0].Duration)
}

func TestEscalate_HangingThemedImageDoesNotHoldUpMute(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.MasterImage = true
	settings.MediaTimeout = 50 * time.Millisecond
	e, _ := newTestEngine(t, settings, fixedRand(0), c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var muteCtxErr error
	muted := false
	fx := Effects{
		Rand:  fixedRand(0),
		Media: NewDirMedia("", "", srv.URL, zerolog.Nop()),
		Mute: func(ctx context.Context, _ time.Duration) error {
			muted = true
			muteCtxErr = ctx.Err()
			return nil
		},
	}

	start := time.Now()
	d := e.Escalate(ctx, st.OffenseRecord{}, botEvent("u2", afternoon), Roles{BotOwner: true}, fx)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.True(t, muted)
	assert.NoError(t, muteCtxErr)
	assert.NoError(t, ctx.Err())
	require.Len(t, d.Responses, 2, "warning and mute notice, no image")
	assert.Equal(t, "u2", d.Responses[0].Mention)
	for _, r := range d.Responses {
		assert.Equal(t, ResponseText, r.Kind)
	}
	require.Len(t, d.Actions, 1)
	assert.NoError(t, d.Actions[0].Err)
}

func TestHandle_ProtectedTargetEscalates(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	e, store := newTestEngine(t, settings, fixedRand(0), c)
	ctx := context.Background()

	rec := st.OffenseRecord{Count: 11}
	require.NoError(t, store.SaveOffense(ctx, "g1", "u2", &rec))

	host := &fakeHost{roles: Roles{TargetProtected: true, BotOwner: true}}
	ev := botEvent("u2", c.Now())
	ev.TargetID = "owner"

	res := e.Handle(ctx, ev, host)
	require.Equal(t, StatusEscalated, res.Status)
	assert.Equal(t, []time.Duration{10800 * time.Second}, host.mutes)
	assert.Equal(t, 12, store.LoadOffense(ctx, "g1", "u2").Count)

	_, ok, err := store.KV().Get(ctx, storage.UserPrefix+"u2")
	require.NoError(t, err)
	assert.False(t, ok, "escalation bypasses the pipeline")

	// Privileged actors are not escalated against.
	host.roles.ActorPrivileged = true
	assert.Equal(t, StatusIgnored, e.Handle(ctx, ev, host).Status)
}

func TestHandle_PokebackRunsAsBoundedTask(t *testing.T) {
	c := &clock{now: afternoon}
	settings := quietSettings()
	settings.PokebackEnabled = true
	settings.Modules.Pokeback = true
	settings.PokebackInterval = time.Millisecond
	settings.Cooldowns = map[string]time.Duration{storage.CooldownInteraction: 0}
	e, _ := newTestEngine(t, settings, fixedRand(0.1), c)
	host := &fakeHost{}

	for range 6 {
		e.Handle(context.Background(), botEvent("u1", c.Now()), host)
		e.tasks.Wait()
		c.Advance(time.Second)
	}

	// Streaks 2..6 poke back 1, 1, 2, 2 and 3 times.
	assert.Equal(t, 9, host.pokeCount())
	assert.Empty(t, e.tasks.Running())
}
