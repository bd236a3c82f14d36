package poke

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	st "github.com/keshon/pokebot/internal/storagetypes"
)

//go:embed responses.yaml
var defaultResponses []byte

// Corpus holds the phrase pools. Any pool may be missing; callers fall back.
type Corpus struct {
	Relationship    map[string][]string `yaml:"relationship"`
	Upgrade         map[string][]string `yaml:"relationship_upgrade"`
	Mood            map[string][]string `yaml:"mood"`
	SpecialIdentity map[string][]string `yaml:"special_identity"`
	TimeEffects     map[string][]string `yaml:"time_effects"`
	SpecialEffects  map[string][]string `yaml:"special_effects"`
	Achievements    map[string][]string `yaml:"achievements"`
	Punishments     struct {
		MuteSuccess       []string `yaml:"mute_success"`
		MuteFail          []string `yaml:"mute_fail"`
		IntimacyReduction []string `yaml:"intimacy_reduction"`
	} `yaml:"punishments"`
	Pokeback         map[string][]string `yaml:"pokeback"`
	MasterProtection struct {
		Normal         []string `yaml:"normal"`
		OwnerWarning   []string `yaml:"owner_warning"`
		AdminWarning   []string `yaml:"admin_warning"`
		RepeatOffender []string `yaml:"repeat_offender"`
		Punishments    struct {
			Mute     []string `yaml:"mute"`
			MuteFail []string `yaml:"mute_fail"`
			Poke     []string `yaml:"poke"`
		} `yaml:"punishments"`
	} `yaml:"master_protection"`
	MoodNames map[string]string `yaml:"mood_names"`
}

// ParseCorpus decodes a YAML corpus.
func ParseCorpus(data []byte) (*Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse responses: %w", err)
	}
	return &c, nil
}

// DefaultCorpus returns the embedded phrase set.
func DefaultCorpus() *Corpus {
	c, err := ParseCorpus(defaultResponses)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCorpus reads path, or returns the embedded set when path is empty.
func LoadCorpus(path string) (*Corpus, error) {
	if path == "" {
		return DefaultCorpus(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}
	return ParseCorpus(data)
}

// MoodName is the display name used for {mood}.
func (c *Corpus) MoodName(m st.Mood) string {
	if name, ok := c.MoodNames[string(m)]; ok && name != "" {
		return name
	}
	return string(m)
}

// relationshipPool falls back to the stranger pool, then to a fixed phrase.
func (c *Corpus) relationshipPool(r st.Relationship) []string {
	if pool := c.Relationship[string(r)]; len(pool) > 0 {
		return pool
	}
	if pool := c.Relationship[string(st.Stranger)]; len(pool) > 0 {
		return pool
	}
	return []string{"Stop poking me!"}
}

func (c *Corpus) specialEffectKeys() []string {
	keys := make([]string, 0, len(c.SpecialEffects))
	for k, pool := range c.SpecialEffects {
		if len(pool) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func orDefault(pool []string, fallback ...string) []string {
	if len(pool) > 0 {
		return pool
	}
	return fallback
}

// CorpusStore swaps corpora atomically so reloads never block handlers.
type CorpusStore struct {
	p atomic.Pointer[Corpus]
}

func NewCorpusStore(c *Corpus) *CorpusStore {
	s := &CorpusStore{}
	s.Store(c)
	return s
}

func (s *CorpusStore) Load() *Corpus {
	return s.p.Load()
}

func (s *CorpusStore) Store(c *Corpus) {
	if c == nil {
		c = DefaultCorpus()
	}
	s.p.Store(c)
}

// WatchCorpus reloads path into store whenever the file changes, until ctx
// is done. A file that fails to parse leaves the current corpus in place.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
func WatchCorpus(ctx context.Context, path string, store *CorpusStore, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("responses watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	// Writes usually arrive in bursts; coalesce them.
	const debounce = 200 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("responses watcher error")
		case <-pending:
			pending = nil
			c, err := LoadCorpus(abs)
			if err != nil {
				log.Error().Err(err).Str("path", abs).Msg("responses reload failed, keeping previous set")
				continue
			}
			store.Store(c)
			log.Info().Str("path", abs).Msg("responses reloaded")
		}
	}
}
