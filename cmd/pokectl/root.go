package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/pokebot/internal/config"
	"github.com/keshon/pokebot/internal/kv"
	"github.com/keshon/pokebot/internal/logging"
	"github.com/keshon/pokebot/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pokectl",
		Short:         "Inspect and exercise the poke engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("storage", "", "Local store path (overrides STORAGE_PATH)")
	cmd.PersistentFlags().String("redis", "", "Redis URL (overrides REDIS_URL)")
	cmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newResetDailyCmd())
	cmd.AddCommand(newSweepCmd())
	return cmd
}

// env bundles what every subcommand opens.
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *storage.Storage
}

// openEnv loads configuration, applies flag overrides and opens the store.
// now may be nil.
func openEnv(cmd *cobra.Command, now func() time.Time) (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		cfg.StoragePath = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: cmd.ErrOrStderr()})
	backend, err := kv.Open(cmd.Context(), kv.Options{
		RedisURL:    cfg.RedisURL,
		StoragePath: cfg.StoragePath,
		Logger:      log,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		log:   log,
		store: storage.New(backend, log, now, cfg.Location()),
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
