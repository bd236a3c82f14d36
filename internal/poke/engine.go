package poke

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/internal/storage"
	st "github.com/keshon/pokebot/internal/storagetypes"
	"github.com/keshon/pokebot/pkg/jobmgr"
)

// Status summarizes what Handle did with an event.
type Status string

const (
	StatusDisabled  Status = "disabled"
	StatusSelf      Status = "self"
	StatusIgnored   Status = "ignored"
	StatusCooling   Status = "cooling"
	StatusEscalated Status = "escalated"
	StatusHandled   Status = "handled"
)

// Result is returned by Handle.
type Result struct {
	Status   Status
	Decision Decision
}

// Options configures an Engine. Store is required.
type Options struct {
	Store    *storage.Storage
	Settings Settings
	Corpus   *CorpusStore
	Media    MediaSource
	Rand     Rand
	Tasks    *Tasks
	Logger   zerolog.Logger
	Modules  []Module
}

// Engine turns poke events into responses and state changes.
type Engine struct {
	store     *storage.Storage
	cooldowns *storage.Cooldowns
	settings  Settings
	corpus    *CorpusStore
	media     MediaSource
	rand      Rand
	tasks     *Tasks
	pipeline  *Pipeline
	log       zerolog.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Corpus == nil {
		opts.Corpus = NewCorpusStore(DefaultCorpus())
	}
	if opts.Media == nil {
		opts.Media = NoMedia{}
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.Tasks == nil {
		opts.Tasks = NewTasks(context.Background(), opts.Logger)
	}
	return &Engine{
		store:     opts.Store,
		cooldowns: opts.Store.NewCooldowns(opts.Settings.Cooldowns),
		settings:  opts.Settings,
		corpus:    opts.Corpus,
		media:     opts.Media,
		rand:      opts.Rand,
		tasks:     opts.Tasks,
		pipeline:  NewPipeline(opts.Logger, opts.Modules...),
		log:       opts.Logger,
	}
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// Decide runs the behavior pipeline for one trigger on state. It touches
// nothing beyond fx: given the same inputs and draws it returns the same
// decision. The streak and totals are updated from ev.At first.
func (e *Engine) Decide(ctx context.Context, state st.UserState, ev Event, roles Roles, fx Effects) Decision {
	fx = fx.withDefaults()
	out := Decision{}
	t := &Turn{
		Event:    ev,
		Roles:    roles,
		State:    Touch(state.Clone(), ev.At),
		Settings: &e.settings,
		Corpus:   e.corpus.Load(),
		Hour:     ev.At.In(e.settings.location()).Hour(),
		Effects:  fx,
		log:      e.log.With().Str("event", ev.ID).Logger(),
		out:      &out,
	}
	e.pipeline.Run(ctx, t)
	out.State = t.State
	return out
}

// Handle processes one event end to end against the store and host.
func (e *Engine) Handle(ctx context.Context, ev Event, host Host) Result {
	log := e.log.With().Str("event", ev.ID).Str("actor", ev.ActorID).Str("target", ev.TargetID).Logger()

	if !e.settings.Enabled {
		return Result{Status: StatusDisabled}
	}
	if ev.ActorID == ev.TargetID {
		return Result{Status: StatusSelf}
	}

	// Resolvers leave whatever they could not determine false.
	roles, err := host.Roles(ctx, ev)
	if err != nil {
		log.Warn().Err(err).Msg("role lookup incomplete")
	}

	fx := Effects{
		Rand:  e.rand,
		Gate:  e.cooldowns,
		Media: e.media,
		Mute: func(ctx context.Context, d time.Duration) error {
			return host.Mute(ctx, ev, ev.ActorID, d)
		},
	}

	if roles.TargetProtected && !roles.ActorPrivileged && e.settings.Modules.Master {
		rec := e.store.LoadOffense(ctx, ev.ScopeID, ev.ActorID)
		d := e.Escalate(ctx, rec, ev, roles, fx)
		if err := e.store.SaveOffense(ctx, ev.ScopeID, ev.ActorID, d.Offense); err != nil {
			log.Error().Err(err).Msg("failed to save offense record")
		}
		log.Info().Int("count", d.Offense.Count).Msg("protected identity poked")
		e.deliver(ctx, ev, host, d, log)
		return Result{Status: StatusEscalated, Decision: d}
	}

	if ev.TargetID != ev.SelfID {
		return Result{Status: StatusIgnored}
	}

	if !e.cooldowns.CheckAndRenew(ctx, ev.ActorID, storage.CooldownInteraction) {
		log.Debug().Msg("interaction cooling down")
		return Result{Status: StatusCooling}
	}

	state := e.store.LoadUser(ctx, ev.ActorID)
	if _, err := e.store.IncrementDaily(ctx, ev.ActorID); err != nil {
		log.Error().Err(err).Msg("failed to bump daily counter")
	}

	d := e.Decide(ctx, state, ev, roles, fx)

	if err := e.store.SaveUser(ctx, ev.ActorID, d.State); err != nil {
		log.Error().Err(err).Msg("failed to save user state")
	}
	e.deliver(ctx, ev, host, d, log)

	log.Debug().
		Int("consecutive", d.State.Consecutive).
		Int("intimacy", d.State.Intimacy).
		Str("mood", string(d.State.Mood)).
		Int("responses", len(d.Responses)).
		Msg("poke handled")
	return Result{Status: StatusHandled, Decision: d}
}

// deliver sends responses in order and schedules repeat pokes.
func (e *Engine) deliver(ctx context.Context, ev Event, host Host, d Decision, log zerolog.Logger) {
	for _, r := range d.Responses {
		if err := host.Reply(ctx, ev, r); err != nil {
			log.Error().Err(err).Str("kind", string(r.Kind)).Msg("reply failed")
		}
	}

	for _, a := range d.Actions {
		if a.Kind != ActionPoke {
			continue
		}
		target := a.Target
		task := RepeatTask{
			Count:    a.Count,
			Interval: a.Interval,
			Do: func(ctx context.Context) error {
				return host.Poke(ctx, ev, target)
			},
		}
		if err := e.tasks.Start(ev.ScopeID, target, task); err != nil {
			if errors.Is(err, jobmgr.ErrRunning) {
				log.Debug().Msg("retaliation already running")
				continue
			}
			log.Warn().Err(err).Msg("retaliation not started")
		}
	}
}
