// Package artifact implements the artifact store: uploaded audio kept both in
// memory and as a backing file on disk.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/fsutil"
	"github.com/google/uuid"
)

const filePermissions = 0o600

const (
	errFmtWriteArtifact = "%w: failed to write artifact %s"
	errFmtPrepareDir    = "%w: failed to prepare upload directory"
	errFmtUnknownID     = "%w: artifact %s"
	errFmtMissingFile   = "%w: backing file for artifact %s is missing or empty"
	errFmtRemoveFile    = "failed to remove backing file of %s: %w"
)

const (
	logFmtStored          = "Stored artifact %s (%s, %s)"
	logFmtWriteFailed     = "Failed to write artifact %s to disk: %v"
	logFmtCorruptAccess   = "Artifact %s is corrupt: %v"
	logFmtRemovePartial   = "Failed to remove partial file %s: %v"
	logFmtPurged          = "Purged %d artifacts"
	logFmtTagsUnavailable = "No readable tags for artifact %s: %v"
)

type entry struct {
	artifact core.Artifact
	corrupt  bool
}

// Store keeps every uploaded artifact in memory and in a file under dir.
// It is safe for concurrent use.
type Store struct {
	dir string
	log *logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

var _ core.ArtifactStore = (*Store)(nil)

// NewStore creates a store writing its backing files into dir.
func NewStore(dir string, log *logger.Logger) *Store {
	return &Store{
		dir:     dir,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Dir returns the directory holding the backing files.
func (s *Store) Dir() string {
	return s.dir
}

// Put stores content under a fresh id. On a failed write no entry is recorded
// and any partial file is removed.
func (s *Store) Put(_ context.Context, content []byte, filename, contentType string) (string, error) {
	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(fsutil.SanitizeFilename(filename)))
	path := filepath.Join(s.dir, id+ext)

	dirErr := fsutil.EnsureDir(s.dir)
	if dirErr != nil {
		return "", errors.Join(fmt.Errorf(errFmtPrepareDir, core.ErrStorage), dirErr)
	}

	writeErr := os.WriteFile(path, content, filePermissions)
	if writeErr != nil {
		s.log.Error(logFmtWriteFailed, id, writeErr)

		removeErr := os.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warn(logFmtRemovePartial, path, removeErr)
		}

		return "", fmt.Errorf(errFmtWriteArtifact, core.ErrStorage, id)
	}

	stored := core.Artifact{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
		FilePath:    path,
		Size:        int64(len(content)),
		UploadTime:  s.now(),
	}

	tags, tagErr := ReadTags(content)
	if tagErr != nil {
		s.log.Info(logFmtTagsUnavailable, id, tagErr)
	} else {
		stored.Tags = tags
	}

	s.mu.Lock()
	s.entries[id] = &entry{artifact: stored}
	s.mu.Unlock()

	s.log.Info(logFmtStored, id, filename, fsutil.FormatFileSize(stored.Size))

	return id, nil
}

// Get returns the artifact stored under id. A missing or empty backing file
// makes the entry corrupt and yields core.ErrNotFound.
func (s *Store) Get(id string) (core.Artifact, error) {
	s.mu.RLock()
	found, ok := s.entries[id]

	var (
		stored  core.Artifact
		corrupt bool
	)

	if ok {
		stored = found.artifact
		corrupt = found.corrupt
	}
	s.mu.RUnlock()

	if !ok {
		return core.Artifact{}, fmt.Errorf(errFmtUnknownID, core.ErrNotFound, id)
	}

	checkErr := fsutil.CheckNonEmpty(stored.FilePath)
	if corrupt || checkErr != nil {
		if checkErr != nil {
			s.log.Warn(logFmtCorruptAccess, id, checkErr)
			s.markCorrupt(id)
		}

		return core.Artifact{}, fmt.Errorf(errFmtMissingFile, core.ErrNotFound, id)
	}

	return stored, nil
}

// Path returns the backing file path of the artifact stored under id.
func (s *Store) Path(id string) (string, error) {
	stored, err := s.Get(id)
	if err != nil {
		return "", err
	}

	return stored.FilePath, nil
}

// Len returns the number of recorded artifacts, corrupt ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// IDs returns the recorded artifact ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))

	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)

	return ids
}

// Purge deletes every backing file and forgets all entries. Entries are
// forgotten even when a file cannot be removed.
func (s *Store) Purge(ctx context.Context) error {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	var errs []error

	for id, stored := range entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())

			break
		}

		removeErr := os.Remove(stored.artifact.FilePath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			errs = append(errs, fmt.Errorf(errFmtRemoveFile, id, removeErr))
		}
	}

	s.log.Info(logFmtPurged, len(entries))

	return errors.Join(errs...)
}

func (s *Store) markCorrupt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if found, ok := s.entries[id]; ok {
		found.corrupt = true
	}
}

// markCorruptByPath flags the entry whose backing file is path.
func (s *Store) markCorruptByPath(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, found := range s.entries {
		if found.artifact.FilePath == path {
			found.corrupt = true

			return id, true
		}
	}

	return "", false
}
