package poke

import (
	"context"
	"fmt"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// Achievement is a one-shot unlock.
type Achievement struct {
	ID   string
	Name string
	Met  func(st.UserState) bool
}

// Achievements in evaluation order.
var Achievements = []Achievement{
	{"first_poke", "First Contact", func(s st.UserState) bool { return s.Total == 1 }},
	{"poke_10", "Poke Rookie", func(s st.UserState) bool { return s.Total == 10 }},
	{"poke_100", "Poke Expert", func(s st.UserState) bool { return s.Total == 100 }},
	{"poke_1000", "Poke Master", func(s st.UserState) bool { return s.Total == 1000 }},
	{"poke_5000", "Poke Deity", func(s st.UserState) bool { return s.Total == 5000 }},
	{"consecutive_10", "Combo Artist", func(s st.UserState) bool { return s.Consecutive == 10 }},
	{"intimate_100", "Close Companion", func(s st.UserState) bool { return s.Intimacy >= 100 }},
	{"intimate_500", "Kindred Spirit", func(s st.UserState) bool { return s.Intimacy >= 500 }},
	{"mood_master", "Mood Maestro", func(s st.UserState) bool { return s.MoodValue >= 90 }},
}

// NextAchievement returns the first achievement that is met and not yet held.
func NextAchievement(state st.UserState) (Achievement, bool) {
	for _, a := range Achievements {
		if !state.HasAchievement(a.ID) && a.Met(state) {
			return a, true
		}
	}
	return Achievement{}, false
}

type achievementModule struct{}

func (achievementModule) Name() string { return ModuleAchievement }

func (achievementModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	a, ok := NextAchievement(t.State)
	if !ok {
		return NotHandled, nil
	}
	t.State.Unlock(a.ID)

	pool := t.Corpus.Achievements[a.ID]
	if len(pool) == 0 {
		pool = orDefault(t.Corpus.Achievements["default"], "Achievement unlocked!")
	}
	t.say(fmt.Sprintf("🏆 Achievement unlocked: %s\n%s", a.Name, t.format(pick(t.Rand, pool))))
	return Handled, nil
}
