// Package retrylimit retries flaky calls with exponential backoff and an
// optional shared rate limit. HTTP status errors are classified so that
// 429 and 5xx responses are retried while other client errors are not.
//
// Example usage:
//
//	lim := rate.NewLimiter(rate.Every(time.Second), 1)
//	cfg := retrylimit.DefaultConfig()
//	cfg.Limiter = lim
//	err := retrylimit.Do(ctx, cfg, func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %s", e.Status) }

// CheckResponse turns a non-2xx response into a *StatusError.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status}
}

// permanentError stops retries immediately.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable is the default classifier: status errors are retried only for
// 429 and 5xx, everything else is retried.
func Retryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// Config configures Do.
type Config struct {
	MaxAttempts  int           // total attempts, at least 1
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // add up to 25% random delay
	Classifier   func(error) bool
	Limiter      *rate.Limiter // optional, waited on before every attempt
	Logger       zerolog.Logger
}

// DefaultConfig suits small best-effort fetches.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		Classifier:   Retryable,
		Logger:       zerolog.Nop(),
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, ctx ends or
// the attempts run out. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Classifier == nil {
		cfg.Classifier = Retryable
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if cfg.Limiter != nil {
			if werr := cfg.Limiter.Wait(ctx); werr != nil {
				return werr
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if !cfg.Classifier(err) || attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = addJitter(wait)
		}
		cfg.Logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

func addJitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(d/4)))
}
