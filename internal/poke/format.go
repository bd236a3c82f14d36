package poke

import (
	"strconv"
	"strings"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// defaultName stands in for senders without a display name.
const defaultName = "you"

func displayName(ev Event) string {
	if name := strings.TrimSpace(ev.ActorName); name != "" {
		return name
	}
	return defaultName
}

// formatReply substitutes the state placeholders. {count} is the streak.
// extra pairs are applied first, so callers can override any token.
func formatReply(text string, ev Event, state st.UserState, c *Corpus, extra ...string) string {
	pairs := make([]string, 0, len(extra)+12)
	pairs = append(pairs, extra...)
	pairs = append(pairs,
		"{name}", displayName(ev),
		"{intimacy}", strconv.Itoa(state.Intimacy),
		"{mood}", c.MoodName(state.Mood),
		"{consecutive}", strconv.Itoa(state.Consecutive),
		"{total}", strconv.Itoa(state.Total),
		"{count}", strconv.Itoa(state.Consecutive),
	)
	return strings.NewReplacer(pairs...).Replace(text)
}
