package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	defaultFFmpegPath = "ffmpeg"
	convertedPrefix   = "canonical_"
	stderrTailLength  = 512
)

const (
	errFmtFFmpegFailed  = "ffmpeg conversion of %s failed: %w"
	logFmtFFmpegFailed  = "ffmpeg conversion of %s failed: %v: %s"
	errFmtScratchDir    = "failed to prepare scratch directory: %w"
	logFmtRemoveScratch = "Failed to remove scratch file %s: %v"
)

// ErrConversionOutputMissing indicates ffmpeg exited cleanly without producing output.
var ErrConversionOutputMissing = errors.New("ffmpeg completed but output file is missing")

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and returns its captured stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	err := cmd.Run()

	return stderr.String(), err
}

// Converter turns compressed uploads into canonical mono 16 kHz PCM WAV files.
type Converter struct {
	ffmpegPath string
	scratchDir string
	runner     CommandRunner
	log        *logger.Logger
}

// NewConverter creates a Converter writing its temporary output to scratchDir.
// A nil runner uses ExecRunner.
func NewConverter(ffmpegPath, scratchDir string, runner CommandRunner, log *logger.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpegPath
	}

	if runner == nil {
		runner = ExecRunner{}
	}

	return &Converter{ffmpegPath: ffmpegPath, scratchDir: scratchDir, runner: runner, log: log}
}

// ToWAV converts inputPath and returns the path of the temporary WAV file with
// a cleanup function that removes it. The cleanup function is never nil and must
// be called on every path.
func (c *Converter) ToWAV(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	mkdirErr := os.MkdirAll(c.scratchDir, 0o750)
	if mkdirErr != nil {
		return "", noop, fmt.Errorf(errFmtScratchDir, mkdirErr)
	}

	outPath := filepath.Join(c.scratchDir, convertedPrefix+uuid.NewString()+FormatWAV.Extension())
	cleanup := func() {
		removeErr := os.Remove(outPath)
		if removeErr != nil && !os.IsNotExist(removeErr) && c.log != nil {
			c.log.Warn(logFmtRemoveScratch, outPath, removeErr)
		}
	}

	stderr, runErr := c.runner.Run(ctx, c.ffmpegPath, BuildFFmpegArgs(inputPath, outPath)...)
	if runErr != nil {
		cleanup()

		// ffmpeg names the input path on stderr, so the tail stays in the log.
		if c.log != nil {
			c.log.Error(logFmtFFmpegFailed, inputPath, runErr, tail(stderr))
		}

		return "", noop, fmt.Errorf(errFmtFFmpegFailed, filepath.Base(inputPath), runErr)
	}

	info, statErr := os.Stat(outPath)
	if statErr != nil || info.Size() == 0 {
		cleanup()

		return "", noop, ErrConversionOutputMissing
	}

	return outPath, cleanup, nil
}

// BuildFFmpegArgs builds the CLI args for mono 16k PCM WAV output.
func BuildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func tail(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if len(trimmed) > stderrTailLength {
		return trimmed[len(trimmed)-stderrTailLength:]
	}

	return trimmed
}
