package discord

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/internal/poke"
)

// handleTimeout bounds the work done for one event.
const handleTimeout = 30 * time.Second

// Options configures a Bot.
type Options struct {
	Token      string
	Engine     *poke.Engine
	Privileges Privileges
	// CacheDir keeps per-guild command hashes between runs.
	CacheDir string
	Logger   zerolog.Logger
}

// Bot feeds Discord pokes into the engine.
type Bot struct {
	dg     *discordgo.Session
	engine *poke.Engine
	host   *Host
	cache  commandCache
	log    zerolog.Logger
	ctx    context.Context
}

func New(opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join("data", "commands")
	}

	b := &Bot{
		dg:     dg,
		engine: opts.Engine,
		cache:  commandCache{dir: opts.CacheDir},
		log:    opts.Logger.With().Str("component", "discord").Logger(),
		ctx:    context.Background(),
	}
	b.host = NewHost(dg, sessionResolver(dg, opts.Privileges), b.log)
	return b, nil
}

// Run connects and serves until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onInteractionCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if err := b.registerCommands(b.ctx, s, r.User.ID, g.ID); err != nil {
			b.log.Error().Err(err).Str("guild", g.ID).Msg("failed to register commands")
		}
	}
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

// onGuildCreate also fires for every guild at startup; the hash cache keeps
// that from re-registering unchanged commands.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if s.State.User == nil {
		return
	}
	if err := b.registerCommands(b.ctx, s, s.State.User.ID, g.ID); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("failed to register commands")
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State.User == nil {
		return
	}
	ev, ok := messageEvent(m, s.State.User.ID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
	defer cancel()
	res := b.engine.Handle(ctx, ev, b.host)
	b.log.Debug().Str("event", ev.ID).Str("status", string(res.Status)).Msg("message poke")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if s.State.User == nil {
		return
	}
	ev, ok := interactionEvent(i, s.State.User.ID)
	if !ok {
		return
	}

	if err := RespondDeferredEphemeral(s, i); err != nil {
		b.log.Error().Err(err).Msg("failed to acknowledge interaction")
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
	defer cancel()
	res := b.engine.Handle(ctx, ev, b.host)

	// Pokes between ordinary users are relayed as-is.
	if res.Status == poke.StatusIgnored {
		if err := b.host.Poke(ctx, ev, ev.TargetID); err != nil {
			b.log.Warn().Err(err).Msg("failed to relay poke")
		}
	}
	if err := EditResponse(s, i, statusReply(res.Status, ev)); err != nil {
		b.log.Warn().Err(err).Msg("failed to edit interaction response")
	}
}
