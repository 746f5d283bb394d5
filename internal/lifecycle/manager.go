// Package lifecycle prepares the working directories at startup and tears
// all request state down at shutdown or on demand.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a cleanup sweep when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const (
	logFmtDirReady       = "Directory ready: %s"
	logFmtSweepStarted   = "Starting %s cleanup"
	logFmtSweepDone      = "%s cleanup completed in %s: %d artifacts, %d sessions, %d files removed"
	logFmtSweepTimedOut  = "%s cleanup timed out after %s"
	logFmtTaskFailed     = "Cleanup task %s failed: %v"
	logFmtScratchRemoved = "Removed scratch directory %s"
)

// Dirs are the directories owned by the service.
type Dirs struct {
	Uploads    string
	Static     string
	Converted  string
	Conversion string
	Scratch    []string
}

// Report summarizes one cleanup sweep.
type Report struct {
	ArtifactsPurged int      `json:"artifacts_purged"`
	SessionsCleared int      `json:"sessions_cleared"`
	FilesRemoved    int      `json:"files_removed"`
	Errors          []string `json:"errors,omitempty"`
	TimedOut        bool     `json:"timed_out"`
	Elapsed         string   `json:"elapsed"`
}

// Manager owns startup provisioning and the cleanup sweep.
type Manager struct {
	artifacts core.ArtifactStore
	sessions  core.SessionStore
	releaser  core.Releaser
	dirs      Dirs
	timeout   time.Duration
	log       *logger.Logger
}

// New creates a Manager. releaser frees accelerator memory held by loaded
// capabilities and may be nil.
func New(
	artifacts core.ArtifactStore,
	sessions core.SessionStore,
	releaser core.Releaser,
	dirs Dirs,
	timeout time.Duration,
	log *logger.Logger,
) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Manager{
		artifacts: artifacts,
		sessions:  sessions,
		releaser:  releaser,
		dirs:      dirs,
		timeout:   timeout,
		log:       log,
	}
}

// Startup creates every working directory. It is idempotent.
func (m *Manager) Startup(_ context.Context) error {
	dirs := []string{m.dirs.Uploads, m.dirs.Static, m.dirs.Converted, m.dirs.Conversion}
	dirs = append(dirs, m.dirs.Scratch...)

	for _, dir := range dirs {
		if dir == "" {
			continue
		}

		dirErr := fsutil.EnsureDir(dir)
		if dirErr != nil {
			return fmt.Errorf("failed to prepare %s: %w", dir, dirErr)
		}

		m.log.Info(logFmtDirReady, dir)
	}

	return nil
}

// Shutdown runs the cleanup sweep. Failures and timeouts are logged and
// never returned.
func (m *Manager) Shutdown(ctx context.Context) {
	m.sweep(ctx, "shutdown")
}

// Cleanup runs the same sweep on demand and reports what it did.
func (m *Manager) Cleanup(ctx context.Context) Report {
	return m.sweep(ctx, "manual")
}

func (m *Manager) sweep(ctx context.Context, name string) Report {
	start := time.Now()

	m.log.Info(logFmtSweepStarted, name)

	sweepCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		report Report
		group  errgroup.Group
	)

	record := func(task string, removed int, err error) {
		mu.Lock()
		defer mu.Unlock()

		report.FilesRemoved += removed

		if err != nil {
			m.log.Warn(logFmtTaskFailed, task, err)
			report.Errors = append(report.Errors, core.RedactPaths(fmt.Sprintf("%s: %v", task, err)))
		}
	}

	artifacts := m.artifacts.Len()
	sessions := m.sessions.Len()

	group.Go(func() error {
		record("artifacts", 0, m.artifacts.Purge(sweepCtx))

		return nil
	})

	group.Go(func() error {
		m.sessions.Clear()

		return nil
	})

	for _, dir := range []string{m.dirs.Converted, m.dirs.Uploads} {
		if dir == "" {
			continue
		}

		group.Go(func() error {
			removed, cleanErr := fsutil.CleanDir(dir)
			record(dir, removed, cleanErr)

			return nil
		})
	}

	for _, dir := range m.dirs.Scratch {
		group.Go(func() error {
			record(dir, 0, m.removeScratch(dir))

			return nil
		})
	}

	if m.releaser != nil {
		group.Go(func() error {
			record("release", 0, m.releaser.Release(sweepCtx))

			return nil
		})
	}

	done := make(chan struct{})

	go func() {
		_ = group.Wait()

		close(done)
	}()

	select {
	case <-done:
	case <-sweepCtx.Done():
		m.log.Warn(logFmtSweepTimedOut, name, m.timeout)

		mu.Lock()
		report.TimedOut = true
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()

	report.ArtifactsPurged = artifacts
	report.SessionsCleared = sessions
	report.Elapsed = time.Since(start).Round(time.Millisecond).String()

	m.log.Info(logFmtSweepDone, name, report.Elapsed, artifacts, sessions, report.FilesRemoved)

	out := report
	out.Errors = append([]string(nil), report.Errors...)

	return out
}

func (m *Manager) removeScratch(dir string) error {
	_, statErr := os.Stat(dir)
	if os.IsNotExist(statErr) {
		return nil
	}

	removeErr := os.RemoveAll(dir)
	if removeErr != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", removeErr)
	}

	m.log.Info(logFmtScratchRemoved, dir)

	return nil
}
