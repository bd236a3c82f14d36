package poke

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/keshon/pokebot/internal/storage"
	st "github.com/keshon/pokebot/internal/storagetypes"
)

// ErrMuteUnsupported is returned when no mute capability is wired.
var ErrMuteUnsupported = errors.New("mute not supported")

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// BasicReplyChance is the probability that the basic module answers.
func BasicReplyChance(state st.UserState, privileged bool) float64 {
	p := 0.6 + min(0.2, float64(state.Intimacy)/1000)
	switch state.Mood {
	case st.MoodHappy:
		p += 0.1
	case st.MoodAngry:
		p -= 0.2
	}
	if state.Consecutive > 5 {
		p -= 0.3
	}
	if privileged {
		p += 0.2
	}
	return clamp(p, 0.1, 1)
}

// replyPool unions the relationship, mood and privileged pools.
func replyPool(c *Corpus, state st.UserState, privileged bool) []string {
	rel := c.relationshipPool(state.Relationship)
	pool := make([]string, 0, len(rel)+8)
	pool = append(pool, rel...)
	pool = append(pool, c.Mood[string(state.Mood)]...)
	if privileged {
		pool = append(pool, c.SpecialIdentity["master"]...)
	}
	return pool
}

type basicModule struct{}

func (basicModule) Name() string { return ModuleBasic }

func (basicModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	pool := replyPool(t.Corpus, t.State, t.Roles.ActorPrivileged)
	if !chance(t.Rand, BasicReplyChance(t.State, t.Roles.ActorPrivileged)) || len(pool) == 0 {
		return NotHandled, nil
	}
	t.say(t.format(pick(t.Rand, pool)))
	return Handled, nil
}

// TimeOfDay names the themed slot for an hour, or "" outside any slot.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 9:
		return "morning"
	case hour >= 11 && hour < 14:
		return "noon"
	case hour >= 17 && hour < 20:
		return "evening"
	case hour >= 22 || hour < 3:
		return "night"
	}
	return ""
}

type specialModule struct{}

func (specialModule) Name() string { return ModuleSpecial }

func (specialModule) Run(ctx context.Context, t *Turn) (Outcome, error) {
	if !t.Gate.CheckAndRenew(ctx, t.Event.ActorID, storage.CooldownSpecial) {
		return NotHandled, nil
	}

	if chance(t.Rand, t.Settings.Chances.Special) {
		if slot := TimeOfDay(t.Hour); slot != "" {
			if pool := t.Corpus.TimeEffects[slot]; len(pool) > 0 {
				t.say(t.format(pick(t.Rand, pool)))
				return Handled, nil
			}
		}
	}

	if chance(t.Rand, 0.1) && t.State.Intimacy > 50 {
		if keys := t.Corpus.specialEffectKeys(); len(keys) > 0 {
			pool := t.Corpus.SpecialEffects[pick(t.Rand, keys)]
			t.say("✨ " + t.format(pick(t.Rand, pool)))
			return Handled, nil
		}
	}
	return NotHandled, nil
}

// PunishmentMuteDuration is min(60s × streak, 30m).
func PunishmentMuteDuration(consecutive int) time.Duration {
	return time.Duration(min(60*consecutive, 1800)) * time.Second
}

// IntimacyReduction is min(2 × streak, 20).
func IntimacyReduction(consecutive int) int {
	return min(consecutive*2, 20)
}

type punishmentModule struct{}

func (punishmentModule) Name() string { return ModulePunishment }

func (punishmentModule) Run(ctx context.Context, t *Turn) (Outcome, error) {
	c := t.State.Consecutive
	if c <= 5 {
		return NotApplicable, nil
	}
	if !t.Gate.CheckAndRenew(ctx, t.Event.ActorID, storage.CooldownPunishment) {
		return NotHandled, nil
	}

	replied := false
	if chance(t.Rand, t.Settings.Chances.Punishment) {
		if t.Roles.CanMute() && chance(t.Rand, 0.5) {
			d := PunishmentMuteDuration(c)
			err := t.Mute(ctx, d)
			t.act(Action{Kind: ActionMute, Target: t.Event.ActorID, Duration: d, Err: err})
			if err == nil {
				t.say(t.format(pick(t.Rand, orDefault(t.Corpus.Punishments.MuteSuccess, "Muted!"))))
				return Handled, nil
			}
			t.say(t.format(pick(t.Rand, orDefault(t.Corpus.Punishments.MuteFail, "Mute failed..."))))
			replied = true
		}

		if chance(t.Rand, 0.5) {
			r := IntimacyReduction(c)
			t.State.SetIntimacy(t.State.Intimacy - r)
			text := pick(t.Rand, orDefault(t.Corpus.Punishments.IntimacyReduction, "Intimacy -{reduction}..."))
			t.say(t.format(text, "{reduction}", strconv.Itoa(r)))
			return Handled, nil
		}
	}

	// Without a reduction the streak still costs mood, even after a failed mute.
	t.State.SetMoodValue(t.State.MoodValue - c*2)
	if replied {
		return Handled, nil
	}
	return NotHandled, nil
}

// PokebackChance is the probability that the bot pokes back.
func PokebackChance(state st.UserState, privileged bool) float64 {
	p := 0.3
	if state.Mood == st.MoodAngry {
		p += 0.3
	}
	if state.Consecutive > 5 {
		p += 0.2
	}
	if privileged {
		p -= 0.2
	}
	return p
}

// PokebackCount is min(streak/2, 5).
func PokebackCount(consecutive int) int {
	return min(consecutive/2, 5)
}

type pokebackModule struct{}

func (pokebackModule) Name() string { return ModulePokeback }

func (pokebackModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	if !t.Settings.PokebackEnabled {
		return NotHandled, nil
	}
	if !chance(t.Rand, PokebackChance(t.State, t.Roles.ActorPrivileged)) {
		return NotHandled, nil
	}

	pool := t.Corpus.Pokeback[string(t.State.Mood)]
	if len(pool) == 0 {
		pool = orDefault(t.Corpus.Pokeback["normal"], "Poke back!")
	}
	t.say(t.format(pick(t.Rand, pool)))

	if n := PokebackCount(t.State.Consecutive); n > 0 {
		t.act(Action{Kind: ActionPoke, Target: t.Event.ActorID, Count: n, Interval: t.Settings.PokebackInterval})
	}
	return Handled, nil
}

type imageModule struct{}

func (imageModule) Name() string { return ModuleImage }

func (imageModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	p := t.Settings.Chances.Image
	if t.State.Mood == st.MoodHappy {
		p += 0.1
	}
	if t.State.Intimacy > 100 {
		p += 0.1
	}
	if !chance(t.Rand, p) {
		return NotHandled, nil
	}

	file, err := t.Media.RandomImage(t.Rand)
	if err != nil {
		t.log.Debug().Err(err).Msg("no image sent")
		return NotHandled, nil
	}
	t.send(Response{Kind: ResponseImage, Media: file})
	return Handled, nil
}

type voiceModule struct{}

func (voiceModule) Name() string { return ModuleVoice }

func (voiceModule) Run(_ context.Context, t *Turn) (Outcome, error) {
	p := t.Settings.Chances.Voice
	if t.State.Mood == st.MoodExcited {
		p += 0.1
	}
	if t.State.Intimacy > 200 {
		p += 0.1
	}
	if !chance(t.Rand, p) {
		return NotHandled, nil
	}

	file, err := t.Media.RandomVoice(t.Rand)
	if err != nil {
		t.log.Debug().Err(err).Msg("no voice sent")
		return NotHandled, nil
	}
	t.send(Response{Kind: ResponseVoice, Media: file})
	return Handled, nil
}
