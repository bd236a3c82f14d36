package poke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/pokebot/pkg/retrylimit"
)

// ErrNoMedia means a pool is unconfigured or empty.
var ErrNoMedia = errors.New("no media available")

// MediaSource supplies optional attachments. Every failure is non-fatal to
// the caller.
type MediaSource interface {
	RandomImage(rng Rand) (string, error)
	RandomVoice(rng Rand) (string, error)
	ThemedImage(ctx context.Context) (string, error)
}

// NoMedia has nothing to offer.
type NoMedia struct{}

func (NoMedia) RandomImage(Rand) (string, error)            { return "", ErrNoMedia }
func (NoMedia) RandomVoice(Rand) (string, error)            { return "", ErrNoMedia }
func (NoMedia) ThemedImage(context.Context) (string, error) { return "", ErrNoMedia }

var (
	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	voiceExts = []string{".mp3", ".wav", ".ogg", ".silk", ".amr"}
)

// DirMedia picks files from local directories and fetches themed images
// from a JSON endpoint answering {"status":200,"link":"..."}.
type DirMedia struct {
	ImageDir  string
	VoiceDir  string
	ThemedURL string
	Client    *http.Client
	Retry     retrylimit.Config
}

// NewDirMedia builds a DirMedia with a short-timeout client.
func NewDirMedia(imageDir, voiceDir, themedURL string, log zerolog.Logger) *DirMedia {
	retry := retrylimit.DefaultConfig()
	retry.Logger = log
	return &DirMedia{
		ImageDir:  imageDir,
		VoiceDir:  voiceDir,
		ThemedURL: themedURL,
		Client:    &http.Client{Timeout: defaultMediaTimeout},
		Retry:     retry,
	}
}

func (m *DirMedia) RandomImage(rng Rand) (string, error) {
	return randomFile(m.ImageDir, imageExts, rng)
}

func (m *DirMedia) RandomVoice(rng Rand) (string, error) {
	return randomFile(m.VoiceDir, voiceExts, rng)
}

func randomFile(dir string, exts []string, rng Rand) (string, error) {
	if dir == "" {
		return "", ErrNoMedia
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read media dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	if len(files) == 0 {
		return "", ErrNoMedia
	}
	return pick(rng, files), nil
}

type themedReply struct {
	Status int    `json:"status"`
	Link   string `json:"link"`
}

// ThemedImage returns the URL of a themed image.
func (m *DirMedia) ThemedImage(ctx context.Context) (string, error) {
	if m.ThemedURL == "" {
		return "", ErrNoMedia
	}

	var link string
	err := retrylimit.Do(ctx, m.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.ThemedURL, nil)
		if err != nil {
			return retrylimit.Permanent(err)
		}
		resp, err := m.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := retrylimit.CheckResponse(resp); err != nil {
			return err
		}
		var body themedReply
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return retrylimit.Permanent(fmt.Errorf("decode themed image: %w", err))
		}
		if body.Status != http.StatusOK || body.Link == "" {
			return retrylimit.Permanent(ErrNoMedia)
		}
		link = body.Link
		return nil
	})
	if err != nil {
		return "", err
	}
	return link, nil
}
