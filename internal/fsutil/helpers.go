// Package fsutil provides the file and directory helpers shared by the stores,
// the stages and the lifecycle manager.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
	compareChunkSize       = 32 * 1024
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtReadDir           = "failed to read directory %s: %w"
	errFmtRemoveEntry       = "failed to remove %s: %w"
	errFmtOpenFile          = "failed to open %s: %w"
)

// ErrEmptyFile is returned by CheckNonEmpty for a zero-length regular file.
var ErrEmptyFile = errors.New("file is empty")

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
// Calling it on an existing directory is a no-op.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// CleanDir removes every entry inside dir but keeps dir itself. A missing
// directory is not an error. It keeps going after a failed removal and returns
// the joined errors.
func CleanDir(dir string) (int, error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return 0, nil
		}

		return 0, fmt.Errorf(errFmtReadDir, dir, readErr)
	}

	removed := 0

	var errs []error

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())

		removeErr := os.RemoveAll(entryPath)
		if removeErr != nil {
			errs = append(errs, fmt.Errorf(errFmtRemoveEntry, entryPath, removeErr))

			continue
		}

		removed++
	}

	return removed, errors.Join(errs...)
}

// CheckNonEmpty returns nil when path is a readable, non-empty regular file.
// A missing file yields an error satisfying os.IsNotExist.
func CheckNonEmpty(path string) error {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return statErr
	}

	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, filepath.Base(path))
	}

	return nil
}

// FileNonEmpty reports whether path is an existing, non-empty regular file.
func FileNonEmpty(path string) bool {
	return CheckNonEmpty(path) == nil
}

// SameContent reports whether the two files hold identical bytes.
func SameContent(pathA, pathB string) (bool, error) {
	infoA, statErr := os.Stat(pathA)
	if statErr != nil {
		return false, statErr
	}

	infoB, statErr := os.Stat(pathB)
	if statErr != nil {
		return false, statErr
	}

	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fileA, openErr := os.Open(pathA)
	if openErr != nil {
		return false, fmt.Errorf(errFmtOpenFile, pathA, openErr)
	}
	defer fileA.Close()

	fileB, openErr := os.Open(pathB)
	if openErr != nil {
		return false, fmt.Errorf(errFmtOpenFile, pathB, openErr)
	}
	defer fileB.Close()

	bufA := make([]byte, compareChunkSize)
	bufB := make([]byte, compareChunkSize)

	for {
		readA, errA := io.ReadFull(fileA, bufA)
		readB, errB := io.ReadFull(fileB, bufB)

		if !bytes.Equal(bufA[:readA], bufB[:readB]) {
			return false, nil
		}

		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)

		switch {
		case doneA && doneB:
			return true, nil
		case errA != nil && !doneA:
			return false, errA
		case errB != nil && !doneB:
			return false, errB
		case doneA != doneB:
			return false, nil
		}
	}
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(size int64) string {
	switch {
	case size >= gigabyte:
		return fmt.Sprintf(formatGB, float64(size)/gigabyte)
	case size >= megabyte:
		return fmt.Sprintf(formatMB, float64(size)/megabyte)
	case size >= kilobyte:
		return fmt.Sprintf(formatKB, float64(size)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, size)
	}
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
