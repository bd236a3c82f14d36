package poke

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

func TestDefaultCorpus_HasEveryPool(t *testing.T) {
	c := DefaultCorpus()

	for _, r := range []st.Relationship{st.Stranger, st.Acquaintance, st.Friend, st.CloseFriend, st.BestFriend, st.Intimate, st.Soulmate} {
		assert.NotEmpty(t, c.Relationship[string(r)], r)
	}
	for _, a := range Achievements {
		assert.NotEmpty(t, c.Achievements[a.ID], a.ID)
	}
	for _, slot := range []string{"morning", "noon", "evening", "night"} {
		assert.NotEmpty(t, c.TimeEffects[slot], slot)
	}
	assert.NotEmpty(t, c.Punishments.MuteSuccess)
	assert.NotEmpty(t, c.Punishments.MuteFail)
	assert.NotEmpty(t, c.Punishments.IntimacyReduction)
	assert.NotEmpty(t, c.MasterProtection.Normal)
	assert.NotEmpty(t, c.MasterProtection.Punishments.Mute)
	assert.Equal(t, "calm", c.MoodName(st.MoodNormal))
}

func TestFormatReply(t *testing.T) {
	c := &Corpus{MoodNames: map[string]string{"happy": "cheerful"}}
	s := st.DefaultUserState()
	s.SetIntimacy(42)
	s.SetMoodValue(65)
	s.Consecutive = 3
	s.Total = 17

	got := formatReply("{name}|{intimacy}|{mood}|{consecutive}|{total}|{count}", Event{ActorName: "Bob"}, s, c)
	assert.Equal(t, "Bob|42|cheerful|3|17|3", got)

	got = formatReply("hi {name}, {mood}, -{reduction}", Event{ActorName: "  "}, st.DefaultUserState(), c, "{reduction}", "6")
	assert.Equal(t, "hi you, normal, -6", got)
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "responses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relationship:\n  stranger: [\"custom\"]\n"), 0o644))

	c, err := LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, c.Relationship["stranger"])
	assert.Empty(t, c.Mood)

	_, err = LoadCorpus(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("relationship: [oops"), 0o644))
	_, err = LoadCorpus(path)
	assert.Error(t, err)
}

func TestWatchCorpus_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "responses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relationship:\n  stranger: [\"one\"]\n"), 0o644))

	first, err := LoadCorpus(path)
	require.NoError(t, err)
	store := NewCorpusStore(first)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchCorpus(ctx, path, store, zerolog.Nop()) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{"one"}, store.Load().Relationship["stranger"], "broken file keeps the old set")

	require.NoError(t, os.WriteFile(path, []byte("relationship:\n  stranger: [\"two\"]\n"), 0o644))
	require.Eventually(t, func() bool {
		pool := store.Load().Relationship["stranger"]
		return len(pool) == 1 && pool[0] == "two"
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
