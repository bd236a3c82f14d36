package poke

import (
	"context"
	"time"

	"github.com/google/uuid"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// Event is one incoming poke.
type Event struct {
	ID        string
	ActorID   string
	ActorName string
	TargetID  string
	SelfID    string // the bot's own identity
	ScopeID   string // guild, or the channel for private pokes
	ChannelID string
	Private   bool
	At        time.Time
}

// NewEvent stamps a fresh id and time on ev.
func NewEvent(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev
}

// Roles is resolved once per event.
type Roles struct {
	ActorPrivileged bool // developer or protected user
	TargetProtected bool
	ActorOwner      bool
	ActorAdmin      bool
	BotOwner        bool
	BotAdmin        bool
}

// CanMute reports whether the bot outranks the actor in this scope.
func (r Roles) CanMute() bool {
	if r.BotOwner {
		return true
	}
	if r.BotAdmin {
		return !r.ActorOwner && !r.ActorAdmin
	}
	return false
}

// ResponseKind says how a Response is delivered.
type ResponseKind string

const (
	ResponseText  ResponseKind = "text"
	ResponseImage ResponseKind = "image"
	ResponseVoice ResponseKind = "voice"
)

// Response is one message the engine wants sent.
type Response struct {
	Kind    ResponseKind
	Mention string // user id to mention, may be empty
	Text    string
	Media   string // file path or URL for image and voice
}

// ActionKind names a side effect beyond a message.
type ActionKind string

const (
	ActionMute ActionKind = "mute"
	ActionPoke ActionKind = "poke"
)

// Action is a side effect the engine performed or wants scheduled. Mutes are
// performed during the decision and carry their outcome; pokes are scheduled
// afterwards as a repeat task.
type Action struct {
	Kind     ActionKind
	Target   string
	Duration time.Duration // mute
	Count    int           // poke
	Interval time.Duration // poke
	Err      error
}

// Decision is the outcome of one trigger.
type Decision struct {
	State     st.UserState
	Offense   *st.OffenseRecord
	Responses []Response
	Actions   []Action
	Modules   []ModuleResult
}

// RoleResolver answers capability queries for an event.
type RoleResolver interface {
	Roles(ctx context.Context, ev Event) (Roles, error)
}

// Transport delivers responses and side effects.
type Transport interface {
	Reply(ctx context.Context, ev Event, r Response) error
	Mute(ctx context.Context, ev Event, userID string, d time.Duration) error
	Poke(ctx context.Context, ev Event, userID string) error
}

// Host is what a chat adapter provides to the engine.
type Host interface {
	RoleResolver
	Transport
}
