package artifact

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/book-expert/vietforeign-service/internal/fsutil"
	"github.com/fsnotify/fsnotify"
)

const (
	logFmtWatchRemoved = "Backing file of artifact %s was %s; marking it corrupt"
	logFmtWatchError   = "Upload directory watcher error: %v"
	logFmtWatchStopped = "Upload directory watcher stopped"
)

// Watch marks artifacts corrupt as soon as their backing file is removed or
// renamed. It returns once the watcher is running; the watcher stops when ctx
// is cancelled. Access-time checks in Get stay authoritative.
func (s *Store) Watch(ctx context.Context) error {
	dirErr := fsutil.EnsureDir(s.dir)
	if dirErr != nil {
		return dirErr
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	addErr := watcher.Add(s.dir)
	if addErr != nil {
		_ = watcher.Close()

		return fmt.Errorf("failed to watch %s: %w", s.dir, addErr)
	}

	go s.watchLoop(ctx, watcher)

	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		_ = watcher.Close()
		s.log.Info(logFmtWatchStopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			if id, found := s.markCorruptByPath(filepath.Clean(event.Name)); found {
				s.log.Warn(logFmtWatchRemoved, id, event.Op.String())
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}

			s.log.Error(logFmtWatchError, watchErr)
		}
	}
}
