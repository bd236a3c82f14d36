// Package jobmgr runs named background jobs with cancellation, lifecycle
// reporting and in-memory tracking of what is running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	err := jm.StartAsync("poke:guild:user", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//
//	// on shutdown, after ctx is cancelled:
//	jm.Wait()
//
// Every job context derives from the manager's, so cancelling it stops all
// jobs. Only one job per name may run at a time.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrRunning is returned by StartAsync when the name is taken.
var ErrRunning = errors.New("job is already running")

// ErrNotRunning is returned by Stop for unknown names.
var ErrNotRunning = errors.New("job not running")

// Job represents a running unit of work.
type Job struct {
	Name   string
	Cancel context.CancelFunc
	id     uint64
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:poke:g1:u1
//	error:poke:g1:u1:context canceled
//	done:poke:g1:u1
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	base     context.Context
	jobs     map[string]*Job
	seq      uint64
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a Manager whose jobs stop when ctx does.
// The reporter callback may be nil.
func NewManager(ctx context.Context, reporter StatusReporter) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		base:     ctx,
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// Jobs are removed automatically after completion (success or failure).
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	if err := m.base.Err(); err != nil {
		m.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(m.base)
	m.seq++
	job := &Job{Name: name, Cancel: cancel, id: m.seq}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.report("running:" + name)

		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		// A stopped job may already have been replaced under the same name.
		if cur, ok := m.jobs[name]; ok && cur.id == job.id {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every running job.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, name)
	}
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: poke:g1:u1, poke:g1:u2"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
