package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/pokebot/internal/kv"
	"github.com/keshon/pokebot/internal/storage"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <subject>",
		Short: "Print a subject's stored state and today's poke count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			subject := args[0]
			out := cmd.OutOrStdout()

			state := e.store.LoadUser(ctx, subject)
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", data)

			daily, err := e.store.DailyCount(ctx, subject)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "today: %d\n", daily)

			ttl, err := e.store.KV().TTL(ctx, storage.UserPrefix+subject)
			if err == nil && ttl > 0 {
				fmt.Fprintf(out, "expires in: %s\n", ttl)
			}

			if scope, _ := cmd.Flags().GetString("scope"); scope != "" {
				rec := e.store.LoadOffense(ctx, scope, subject)
				fmt.Fprintf(out, "offenses in %s: %d (last %s)\n", scope, rec.Count, time.UnixMilli(rec.LastOffense).Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().String("scope", "", "Also print the offense record for this guild")
	return cmd
}

func newResetDailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-daily",
		Short: "Drop every daily poke counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.store.ResetDaily(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d daily counters\n", n)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired state, offense and cooldown keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.store.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "swept %d keys\n", n)
			if local, ok := e.store.KV().(*kv.Local); ok {
				st := local.Stats()
				fmt.Fprintf(out, "local store: %d keys, %d bytes\n", st.Keys, st.MemorySize)
			}
			return nil
		},
	}
}
