// cmd/pokebot/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/pokebot/internal/config"
	"github.com/keshon/pokebot/internal/discord"
	"github.com/keshon/pokebot/internal/kv"
	"github.com/keshon/pokebot/internal/logging"
	"github.com/keshon/pokebot/internal/poke"
	"github.com/keshon/pokebot/internal/storage"
)

const appName = "pokebot"

func main() {
	cfg, err := config.New()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg(appName + " stopped")
	}
	log.Info().Msg(appName + " exited cleanly")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	log.Info().Msgf("Starting %s bot...", appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := kv.Open(ctx, kv.Options{
		RedisURL:    cfg.RedisURL,
		StoragePath: cfg.StoragePath,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	store := storage.New(backend, log.With().Str("component", "storage").Logger(), nil, cfg.Location())
	defer store.Close()

	corpus, err := poke.LoadCorpus(cfg.ResponsesPath)
	if err != nil {
		return err
	}
	corpora := poke.NewCorpusStore(corpus)

	tasks := poke.NewTasks(ctx, log.With().Str("component", "tasks").Logger())
	defer tasks.Wait()

	engine := poke.NewEngine(poke.Options{
		Store:    store,
		Settings: cfg.Poke(),
		Corpus:   corpora,
		Media:    poke.NewDirMedia(cfg.ImageDir, cfg.VoiceDir, cfg.MasterImageURL, log),
		Tasks:    tasks,
		Logger:   log.With().Str("component", "poke").Logger(),
	})

	bot, err := discord.New(discord.Options{
		Token:      cfg.DiscordToken,
		Engine:     engine,
		Privileges: cfg,
		CacheDir:   filepath.Join(filepath.Dir(cfg.StoragePath), "commands"),
		Logger:     log,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx)
	})
	g.Go(func() error {
		storage.RunScheduler(ctx, store, storage.SchedulerOptions{ResetHour: cfg.DailyResetHour})
		return nil
	})
	if cfg.ResponsesPath != "" {
		g.Go(func() error {
			return poke.WatchCorpus(ctx, cfg.ResponsesPath, corpora, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
