package poke

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lastRand always picks the last element.
type lastRand struct{}

func (lastRand) Float64() float64 { return 0 }
func (lastRand) IntN(n int) int   { return n - 1 }

func TestDirMedia_PicksMatchingFiles(t *testing.T) {
	images := t.TempDir()
	for _, name := range []string{"notes.txt", "b.PNG", "a.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(images, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(images, "nested.png"), 0o755))

	m := NewDirMedia(images, t.TempDir(), "", zerolog.Nop())

	got, err := m.RandomImage(fixedRand(0))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(images, "a.jpg"), got)

	got, err = m.RandomImage(lastRand{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(images, "b.PNG"), got, "extension match ignores case")

	_, err = m.RandomVoice(fixedRand(0))
	assert.ErrorIs(t, err, ErrNoMedia, "empty directory")

	_, err = (&DirMedia{}).RandomImage(fixedRand(0))
	assert.ErrorIs(t, err, ErrNoMedia, "unconfigured")

	_, err = (&DirMedia{ImageDir: filepath.Join(images, "missing")}).RandomImage(fixedRand(0))
	assert.Error(t, err)
}

func fastRetry(m *DirMedia) {
	m.Retry.InitialDelay = time.Millisecond
	m.Retry.Jitter = false
}

func TestDirMedia_ThemedImageRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"status":200,"link":"https://img.example/1.png"}`)
	}))
	defer srv.Close()

	m := NewDirMedia("", "", srv.URL, zerolog.Nop())
	fastRetry(m)

	link, err := m.ThemedImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.png", link)
	assert.EqualValues(t, 2, hits.Load())
}

func TestDirMedia_ThemedImageFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		wantHits int32
	}{
		{"bad status in body", http.StatusOK, `{"status":404,"link":""}`, 1},
		{"undecodable body", http.StatusOK, `<html>`, 1},
		{"client error is final", http.StatusForbidden, ``, 1},
		{"server error exhausts attempts", http.StatusInternalServerError, ``, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.code)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			m := NewDirMedia("", "", srv.URL, zerolog.Nop())
			fastRetry(m)

			_, err := m.ThemedImage(context.Background())
			assert.Error(t, err)
			assert.Equal(t, tc.wantHits, hits.Load())
		})
	}

	_, err := (&DirMedia{}).ThemedImage(context.Background())
	assert.ErrorIs(t, err, ErrNoMedia)
}
