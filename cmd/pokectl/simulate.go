package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/pokebot/internal/poke"
	"github.com/keshon/pokebot/internal/storage"
)

// printHost writes everything the engine would send to out.
type printHost struct {
	mu      sync.Mutex
	out     io.Writer
	roles   poke.Roles
	muteErr error
}

func (h *printHost) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}

func (h *printHost) Roles(context.Context, poke.Event) (poke.Roles, error) {
	return h.roles, nil
}

func (h *printHost) Reply(_ context.Context, _ poke.Event, r poke.Response) error {
	to := ""
	if r.Mention != "" {
		to = "@" + r.Mention + " "
	}
	switch r.Kind {
	case poke.ResponseImage, poke.ResponseVoice:
		h.printf("  [%s] %s%s\n", r.Kind, to, r.Media)
	default:
		h.printf("  [text] %s%s\n", to, r.Text)
	}
	return nil
}

func (h *printHost) Mute(_ context.Context, _ poke.Event, userID string, d time.Duration) error {
	if h.muteErr != nil {
		h.printf("  [mute] %s for %s failed: %v\n", userID, d, h.muteErr)
		return h.muteErr
	}
	h.printf("  [mute] %s for %s\n", userID, d)
	return nil
}

func (h *printHost) Poke(_ context.Context, _ poke.Event, userID string) error {
	h.printf("  [poke] @%s\n", userID)
	return nil
}

// simClock advances only when told to, so cooldowns and streaks follow the
// simulated spacing rather than wall time.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run pokes through the engine and print what it would send",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			name, _ := cmd.Flags().GetString("name")
			target, _ := cmd.Flags().GetString("target")
			scopeID, _ := cmd.Flags().GetString("scope")
			count, _ := cmd.Flags().GetInt("count")
			spacing, _ := cmd.Flags().GetDuration("spacing")
			seed, _ := cmd.Flags().GetUint64("seed")
			noCooldown, _ := cmd.Flags().GetBool("no-cooldown")
			canMute, _ := cmd.Flags().GetBool("can-mute")

			clock := &simClock{now: time.Now()}
			if at, _ := cmd.Flags().GetString("at"); at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				clock.now = t
			}

			e, err := openEnv(cmd, clock.Now)
			if err != nil {
				return err
			}
			defer e.Close()

			settings := e.cfg.Poke()
			settings.PokebackInterval = 0
			settings.EscalationInterval = 0
			if noCooldown {
				settings.Cooldowns = map[string]time.Duration{
					storage.CooldownInteraction: 0,
					storage.CooldownSpecial:     0,
					storage.CooldownPunishment:  0,
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			tasks := poke.NewTasks(ctx, e.log)

			corpus, err := poke.LoadCorpus(e.cfg.ResponsesPath)
			if err != nil {
				return err
			}
			engine := poke.NewEngine(poke.Options{
				Store:    e.store,
				Settings: settings,
				Corpus:   poke.NewCorpusStore(corpus),
				Media:    poke.NewDirMedia(e.cfg.ImageDir, e.cfg.VoiceDir, "", e.log),
				Rand:     poke.NewRand(seed),
				Tasks:    tasks,
				Logger:   e.log,
			})

			host := &printHost{
				out: cmd.OutOrStdout(),
				roles: poke.Roles{
					ActorPrivileged: e.cfg.IsProtected(actor) || e.cfg.IsDeveloper(actor),
					TargetProtected: e.cfg.IsProtected(target),
					BotOwner:        canMute,
				},
			}
			if !canMute {
				host.muteErr = poke.ErrMuteUnsupported
			}

			for n := 1; n <= count; n++ {
				ev := poke.NewEvent(poke.Event{
					ActorID:   actor,
					ActorName: name,
					TargetID:  target,
					SelfID:    "bot",
					ScopeID:   scopeID,
					ChannelID: scopeID,
					At:        clock.Now(),
				})
				host.printf("#%d %s\n", n, ev.At.Format(time.TimeOnly))
				res := engine.Handle(cmd.Context(), ev, host)
				tasks.Wait()

				host.printf("  => %s", res.Status)
				if res.Status == poke.StatusHandled {
					s := res.Decision.State
					host.printf(" (streak %d, intimacy %d %s, mood %d %s)", s.Consecutive, s.Intimacy, s.Relationship, s.MoodValue, s.Mood)
				}
				if res.Decision.Offense != nil {
					host.printf(" (offense %d)", res.Decision.Offense.Count)
				}
				host.printf("\n")
				clock.Advance(spacing)
			}
			return nil
		},
	}

	cmd.Flags().String("actor", "user", "Poking user id")
	cmd.Flags().String("name", "User", "Poking user's display name")
	cmd.Flags().String("target", "bot", "Poked id; \"bot\" is the bot itself")
	cmd.Flags().String("scope", "sim", "Guild or channel id")
	cmd.Flags().Int("count", 1, "Number of pokes")
	cmd.Flags().Duration("spacing", 5*time.Second, "Simulated time between pokes")
	cmd.Flags().String("at", "", "Simulated start time (RFC3339)")
	cmd.Flags().Uint64("seed", 0, "Random seed; 0 picks one")
	cmd.Flags().Bool("no-cooldown", false, "Disable all cooldowns")
	cmd.Flags().Bool("can-mute", true, "Whether mutes succeed")
	return cmd
}
