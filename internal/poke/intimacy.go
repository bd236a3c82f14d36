package poke

import (
	"context"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// IntimacyDelta is the per-trigger intimacy change.
func IntimacyDelta(state st.UserState, privileged bool) int {
	delta := 1
	if privileged {
		delta += 3
	}
	switch state.Mood {
	case st.MoodHappy:
		delta++
	case st.MoodAngry:
		delta--
	}
	if state.Consecutive > 10 {
		delta -= 2
	}
	return delta
}

type intimacyModule struct{}

func (intimacyModule) Name() string { return ModuleIntimacy }

func (intimacyModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	prev := t.State.SetIntimacy(t.State.Intimacy + IntimacyDelta(t.State, t.Roles.ActorPrivileged))
	if prev == t.State.Relationship {
		return NotHandled, nil
	}

	pool := t.Corpus.Upgrade[string(t.State.Relationship)]
	if len(pool) == 0 {
		return NotHandled, nil
	}
	t.say("🎉 Relationship upgrade!\n" + t.format(pick(t.Rand, pool)))
	return Handled, nil
}
