package poke

import (
	"time"

	"github.com/keshon/pokebot/internal/storage"
)

// Module names in pipeline order.
const (
	ModuleMood        = "mood"
	ModuleIntimacy    = "intimacy"
	ModuleAchievement = "achievement"
	ModuleSpecial     = "special"
	ModuleBasic       = "basic"
	ModulePunishment  = "punishment"
	ModulePokeback    = "pokeback"
	ModuleImage       = "image"
	ModuleVoice       = "voice"
	ModuleMaster      = "master"
)

// Modules toggles the pipeline stages individually. Master gates the
// protected-identity escalation path.
type Modules struct {
	Basic       bool
	Mood        bool
	Intimacy    bool
	Achievement bool
	Special     bool
	Punishment  bool
	Pokeback    bool
	Image       bool
	Voice       bool
	Master      bool
}

// Enabled looks a module up by name. Unknown names are disabled.
func (m Modules) Enabled(name string) bool {
	switch name {
	case ModuleBasic:
		return m.Basic
	case ModuleMood:
		return m.Mood
	case ModuleIntimacy:
		return m.Intimacy
	case ModuleAchievement:
		return m.Achievement
	case ModuleSpecial:
		return m.Special
	case ModulePunishment:
		return m.Punishment
	case ModulePokeback:
		return m.Pokeback
	case ModuleImage:
		return m.Image
	case ModuleVoice:
		return m.Voice
	case ModuleMaster:
		return m.Master
	}
	return false
}

// Chances are per-trigger probabilities in [0,1].
type Chances struct {
	Mood       float64 // mood_change
	Special    float64 // special_trigger
	Punishment float64
	Image      float64
	Voice      float64
	Stop       float64 // stop the pipeline after a handled module
}

// Settings is everything the engine needs from configuration.
type Settings struct {
	Enabled          bool
	Modules          Modules
	Chances          Chances
	PokebackEnabled  bool
	MasterImage      bool
	MasterPunishment bool

	// Cooldowns per kind; see storage.Cooldown* for the kinds.
	Cooldowns map[string]time.Duration

	// Location decides the local hour for time-of-day effects.
	Location *time.Location

	PokebackInterval   time.Duration
	EscalationInterval time.Duration

	// MediaTimeout bounds optional media fetches so they cannot hold up
	// mutes and replies.
	MediaTimeout time.Duration
}

// DefaultSettings mirrors the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled: true,
		Modules: Modules{
			Basic:       true,
			Mood:        true,
			Intimacy:    true,
			Achievement: true,
			Special:     true,
			Punishment:  true,
			Image:       true,
			Master:      true,
		},
		Chances: Chances{
			Mood:       0.2,
			Special:    0.15,
			Punishment: 0.3,
			Image:      0.3,
			Voice:      0.2,
			Stop:       0.3,
		},
		MasterImage:        true,
		MasterPunishment:   true,
		Cooldowns:          storage.DefaultCooldowns(),
		Location:           time.Local,
		PokebackInterval:   time.Second,
		EscalationInterval: 800 * time.Millisecond,
		MediaTimeout:       defaultMediaTimeout,
	}
}

const defaultMediaTimeout = 3 * time.Second

func (s *Settings) mediaTimeout() time.Duration {
	if s.MediaTimeout <= 0 {
		return defaultMediaTimeout
	}
	return s.MediaTimeout
}

func (s *Settings) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}
