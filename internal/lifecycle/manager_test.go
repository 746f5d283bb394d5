package lifecycle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/artifact"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/lifecycle"
	"github.com/book-expert/vietforeign-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "lifecycle-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

type countingReleaser struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (r *countingReleaser) Release(context.Context) error {
	r.calls.Add(1)

	if r.block != nil {
		<-r.block
	}

	return r.err
}

func testDirs(root string) lifecycle.Dirs {
	return lifecycle.Dirs{
		Uploads:    filepath.Join(root, "static", "uploads"),
		Static:     filepath.Join(root, "static"),
		Converted:  filepath.Join(root, "static", "converted"),
		Conversion: filepath.Join(root, "temp"),
		Scratch:    []string{filepath.Join(root, "temp"), filepath.Join(root, "tmp")},
	}
}

func TestStartup_IsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := testDirs(root)
	log := newTestLogger(t)
	manager := lifecycle.New(artifact.NewStore(dirs.Uploads, log), session.NewStore(), nil, dirs, 0, log)

	require.NoError(t, manager.Startup(context.Background()))
	require.NoError(t, manager.Startup(context.Background()))

	for _, dir := range []string{dirs.Uploads, dirs.Converted, dirs.Conversion, dirs.Scratch[1]} {
		assert.DirExists(t, dir)
	}
}

func TestCleanup_RemovesEverything(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := testDirs(root)
	log := newTestLogger(t)
	artifacts := artifact.NewStore(dirs.Uploads, log)
	sessions := session.NewStore()
	releaser := &countingReleaser{}
	manager := lifecycle.New(artifacts, sessions, releaser, dirs, time.Second, log)

	require.NoError(t, manager.Startup(context.Background()))

	id, err := artifacts.Put(context.Background(), []byte("RIFF"), "a.wav", "audio/wav")
	require.NoError(t, err)
	require.NoError(t, sessions.Upsert(id, func(s *core.Session) error {
		s.RawTranscript = "xin chào"

		return nil
	}))

	converted := filepath.Join(dirs.Converted, "converted_12345678_fr.wav")
	require.NoError(t, os.WriteFile(converted, []byte("out"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Scratch[0], "generated.wav"), []byte("x"), 0o600))

	report := manager.Cleanup(context.Background())

	assert.False(t, report.TimedOut)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.ArtifactsPurged)
	assert.Equal(t, 1, report.SessionsCleared)
	assert.Equal(t, 0, artifacts.Len())
	assert.Equal(t, 0, sessions.Len())
	assert.NoFileExists(t, converted)
	assert.DirExists(t, dirs.Converted)
	assert.NoDirExists(t, dirs.Scratch[0])
	assert.NoDirExists(t, dirs.Scratch[1])
	assert.Equal(t, int32(1), releaser.calls.Load())

	_, err = artifacts.Get(id)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestShutdown_SwallowsErrorsAndTimeouts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := testDirs(root)
	log := newTestLogger(t)

	failing := lifecycle.New(artifact.NewStore(dirs.Uploads, log), session.NewStore(),
		&countingReleaser{err: errors.New("device busy")}, dirs, time.Second, log)

	report := failing.Cleanup(context.Background())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "device busy")

	releaser := &countingReleaser{block: make(chan struct{})}
	defer close(releaser.block)

	slow := lifecycle.New(artifact.NewStore(dirs.Uploads, log), session.NewStore(),
		releaser, dirs, 50*time.Millisecond, log)

	start := time.Now()
	slow.Shutdown(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)

	report = slow.Cleanup(context.Background())
	assert.True(t, report.TimedOut)
	assert.Equal(t, int32(2), releaser.calls.Load())
}

func TestCleanup_ReportOmitsDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := testDirs(root)
	log := newTestLogger(t)

	// A regular file where the converted directory belongs cannot be listed.
	dirs.Converted = filepath.Join(root, "converted-file")
	require.NoError(t, os.WriteFile(dirs.Converted, []byte("x"), 0o600))

	manager := lifecycle.New(artifact.NewStore(dirs.Uploads, log), session.NewStore(), nil, dirs, time.Second, log)

	report := manager.Cleanup(context.Background())

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "converted-file")
	assert.NotContains(t, report.Errors[0], root)
}
