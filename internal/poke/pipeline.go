package poke

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

// Outcome is what a module reports back to the pipeline.
type Outcome int

const (
	NotHandled Outcome = iota
	Handled
	NotApplicable
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case NotApplicable:
		return "not_applicable"
	default:
		return "not_handled"
	}
}

// ModuleResult records one module run.
type ModuleResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// Gate is the cooldown check modules consult for their own rate limits.
type Gate interface {
	CheckAndRenew(ctx context.Context, subject, kind string) bool
}

// Gates that never block, for pure evaluation.
type openGate struct{}

func (openGate) CheckAndRenew(context.Context, string, string) bool { return true }

// Effects are the collaborators a decision may touch.
type Effects struct {
	Rand  Rand
	Gate  Gate
	Media MediaSource
	// Mute silences the actor in the event's scope.
	Mute func(ctx context.Context, d time.Duration) error
}

func (fx Effects) withDefaults() Effects {
	if fx.Rand == nil {
		fx.Rand = NewRand(0)
	}
	if fx.Gate == nil {
		fx.Gate = openGate{}
	}
	if fx.Media == nil {
		fx.Media = NoMedia{}
	}
	if fx.Mute == nil {
		fx.Mute = func(context.Context, time.Duration) error { return ErrMuteUnsupported }
	}
	return fx
}

// Turn is the mutable working set for one trigger.
type Turn struct {
	Event    Event
	Roles    Roles
	State    st.UserState
	Settings *Settings
	Corpus   *Corpus
	Hour     int // local hour of the event
	Effects

	log zerolog.Logger
	out *Decision
}

// Module is one pipeline stage.
type Module interface {
	Name() string
	Run(ctx context.Context, t *Turn) (Outcome, error)
}

func (t *Turn) format(text string, extra ...string) string {
	return formatReply(text, t.Event, t.State, t.Corpus, extra...)
}

// say queues a text reply that mentions the actor.
func (t *Turn) say(text string) {
	t.out.Responses = append(t.out.Responses, Response{Kind: ResponseText, Mention: t.Event.ActorID, Text: text})
}

func (t *Turn) send(r Response) {
	t.out.Responses = append(t.out.Responses, r)
}

func (t *Turn) act(a Action) {
	t.out.Actions = append(t.out.Actions, a)
}

// Pipeline runs modules in order. After a handled module the run stops with
// probability Settings.Chances.Stop.
type Pipeline struct {
	modules []Module
	log     zerolog.Logger
}

// DefaultModules returns the stock modules in their fixed order.
func DefaultModules() []Module {
	return []Module{
		moodModule{},
		intimacyModule{},
		achievementModule{},
		specialModule{},
		basicModule{},
		punishmentModule{},
		pokebackModule{},
		imageModule{},
		voiceModule{},
	}
}

func NewPipeline(log zerolog.Logger, modules ...Module) *Pipeline {
	if len(modules) == 0 {
		modules = DefaultModules()
	}
	return &Pipeline{modules: modules, log: log}
}

// Run executes every enabled module against t.
func (p *Pipeline) Run(ctx context.Context, t *Turn) {
	for _, m := range p.modules {
		if !t.Settings.Modules.Enabled(m.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		out, err := p.runOne(ctx, m, t)
		t.out.Modules = append(t.out.Modules, ModuleResult{Name: m.Name(), Outcome: out, Err: err})
		if err != nil {
			p.log.Error().Err(err).Str("module", m.Name()).Str("event", t.Event.ID).Msg("module failed")
			continue
		}
		if out == Handled && chance(t.Rand, t.Settings.Chances.Stop) {
			p.log.Debug().Str("module", m.Name()).Str("event", t.Event.ID).Msg("pipeline stopped early")
			return
		}
	}
}

func (p *Pipeline) runOne(ctx context.Context, m Module, t *Turn) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = NotHandled, fmt.Errorf("panic in %s: %v", m.Name(), r)
		}
	}()
	out, err = m.Run(ctx, t)
	if err != nil {
		out = NotHandled
	}
	return out, err
}
