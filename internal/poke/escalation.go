package poke

import (
	"context"
	"strconv"
	"strings"
	"time"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// PunishLevel is 1, 2 past three offenses, 3 past ten.
func PunishLevel(count int) int {
	level := 1
	if count > 3 {
		level++
	}
	if count > 10 {
		level++
	}
	return level
}

// EscalationMuteDuration is min(300s × level × count, 24h).
func EscalationMuteDuration(level, count int) time.Duration {
	return time.Duration(min(300*level*count, 86400)) * time.Second
}

// EscalationPokeCount is min(5 × level, 20).
func EscalationPokeCount(level int) int {
	return min(5*level, 20)
}

// escalationPool picks the pool by actor standing first; an empty pool for
// that standing falls back to the normal one.
func escalationPool(c *Corpus, roles Roles, count int) []string {
	mp := c.MasterProtection
	var pool []string
	switch {
	case roles.ActorOwner:
		pool = mp.OwnerWarning
	case roles.ActorAdmin:
		pool = mp.AdminWarning
	case count > 5:
		pool = mp.RepeatOffender
	}
	if len(pool) > 0 {
		return pool
	}
	return orDefault(mp.Normal, "Hands off my master!")
}

// Escalate decides the response to a poke against a protected identity.
// rec is the actor's record in this scope before the offense; the returned
// Decision carries the incremented record for the caller to persist.
func (e *Engine) Escalate(ctx context.Context, rec st.OffenseRecord, ev Event, roles Roles, fx Effects) Decision {
	fx = fx.withDefaults()
	c := e.corpus.Load()
	rec.Count++
	out := Decision{Offense: &rec}

	r := strings.NewReplacer("{count}", strconv.Itoa(rec.Count), "{name}", displayName(ev))
	text := r.Replace(pick(fx.Rand, escalationPool(c, roles, rec.Count)))
	out.Responses = append(out.Responses, Response{Kind: ResponseText, Mention: ev.ActorID, Text: text})

	if e.settings.MasterImage {
		mctx, cancel := context.WithTimeout(ctx, e.settings.mediaTimeout())
		link, err := fx.Media.ThemedImage(mctx)
		cancel()
		if err != nil {
			e.log.Debug().Err(err).Str("event", ev.ID).Msg("themed image skipped")
		} else {
			out.Responses = append(out.Responses, Response{Kind: ResponseImage, Media: link})
		}
	}

	if !e.settings.MasterPunishment {
		return out
	}

	level := PunishLevel(rec.Count)
	punish := c.MasterProtection.Punishments
	if roles.CanMute() && chance(fx.Rand, 0.5*float64(level)) {
		d := EscalationMuteDuration(level, rec.Count)
		err := fx.Mute(ctx, d)
		out.Actions = append(out.Actions, Action{Kind: ActionMute, Target: ev.ActorID, Duration: d, Err: err})
		if err == nil {
			minutes := strconv.Itoa(int(d / time.Minute))
			text := strings.ReplaceAll(pick(fx.Rand, orDefault(punish.Mute, "Muted for {time} minutes!")), "{time}", minutes)
			out.Responses = append(out.Responses, Response{Kind: ResponseText, Text: text})
		} else {
			e.log.Warn().Err(err).Str("event", ev.ID).Str("actor", ev.ActorID).Msg("escalation mute failed")
			out.Responses = append(out.Responses, Response{Kind: ResponseText, Text: pick(fx.Rand, orDefault(punish.MuteFail, "Mute failed..."))})
		}
	}

	if e.settings.PokebackEnabled && chance(fx.Rand, 0.7) {
		out.Responses = append(out.Responses, Response{Kind: ResponseText, Text: pick(fx.Rand, orDefault(punish.Poke, "Counterattack!"))})
		out.Actions = append(out.Actions, Action{
			Kind:     ActionPoke,
			Target:   ev.ActorID,
			Count:    EscalationPokeCount(level),
			Interval: e.settings.EscalationInterval,
		})
	}
	return out
}
