package poke

import (
	"context"
	"math"
	"time"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// streakWindow is the largest gap that keeps a streak going.
const streakWindow = 30 * time.Second

// Touch records a trigger at `at`: the streak grows when the previous trigger
// is less than 30s old and restarts at 1 otherwise; the lifetime total grows.
func Touch(state st.UserState, at time.Time) st.UserState {
	ms := at.UnixMilli()
	if ms-state.LastInteraction < streakWindow.Milliseconds() {
		state.Consecutive++
	} else {
		state.Consecutive = 1
	}
	state.LastInteraction = ms
	state.Total++
	return state
}

// lateNight reports whether hour falls in [22,24) or [0,6).
func lateNight(hour int) bool {
	return hour >= 22 || hour < 6
}

// MoodDelta computes the signed mood change. r is a uniform draw in [0,1)
// that scales the streak-driven jitter.
func MoodDelta(consecutive int, privileged bool, hour int, r float64) float64 {
	var delta float64
	switch {
	case consecutive <= 3:
		delta = r * 5
	case consecutive <= 10:
		delta = -r * 5
	default:
		delta = -r * 10
	}
	if privileged {
		delta += 5
	}
	if lateNight(hour) {
		delta -= 3
	}
	return delta
}

// ApplyMood adds a (rounded) delta to state and recomputes the mood band.
func ApplyMood(state *st.UserState, delta float64) {
	state.SetMoodValue(state.MoodValue + int(math.Round(delta)))
}

type moodModule struct{}

func (moodModule) Name() string { return ModuleMood }

func (moodModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	if !chance(t.Rand, t.Settings.Chances.Mood) {
		return NotHandled, nil
	}

	delta := MoodDelta(t.State.Consecutive, t.Roles.ActorPrivileged, t.Hour, t.Rand.Float64())
	ApplyMood(&t.State, delta)

	// Large swings are sometimes announced.
	if math.Abs(delta) > 10 && chance(t.Rand, 0.5) {
		if pool := t.Corpus.Mood[string(t.State.Mood)]; len(pool) > 0 {
			t.say(t.format(pick(t.Rand, pool)))
			return Handled, nil
		}
	}
	return NotHandled, nil
}
