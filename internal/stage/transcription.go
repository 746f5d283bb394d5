// Package stage implements the transcription, translation and synthesis
// stages of the localization pipeline.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/capability"
	"github.com/book-expert/vietforeign-service/internal/core"
)

// Stage names used in errors and metrics.
const (
	NameTranscription = "transcription"
	NameCorrection    = "correction"
	NameTranslation   = "translation"
	NameSynthesis     = "synthesis"
)

// State is the progress of one transcription request.
type State string

// Transcription states. StateError is absorbing.
const (
	StateNotStarted   State = "not_started"
	StateTranscribing State = "transcribing"
	StateCorrecting   State = "correcting"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

const (
	logFmtASRUnavailable    = "ASR unavailable, rejecting transcription of %s: %v"
	logFmtConverting        = "Converting %s to canonical WAV"
	logFmtTranscribed       = "Transcribed %s: %d characters"
	logFmtCorrectionSkipped = "Correction unavailable, returning raw transcript: %v"
	logFmtCorrectionFailed  = "Correction failed, returning raw transcript: %v"
	logFmtCorrectionEmpty   = "Correction returned empty text, returning raw transcript"
)

// TranscriptionResult is the tagged outcome of a transcription request.
// Err is nil exactly when State is StateCompleted.
type TranscriptionResult struct {
	Raw       string
	Corrected string
	Status    core.SessionStatus
	Degraded  bool
	State     State
	Err       error
}

// OK reports whether the transcription completed.
func (r TranscriptionResult) OK() bool {
	return r.State == StateCompleted && r.Err == nil
}

// WAVConverter turns any accepted upload into a canonical WAV file.
type WAVConverter interface {
	ToWAV(ctx context.Context, inputPath string) (string, func(), error)
}

// Transcriber runs recognition followed by best-effort correction.
type Transcriber struct {
	recognizer capability.Provider[core.SpeechRecognizer]
	corrector  capability.Provider[core.TextCorrector]
	converter  WAVConverter
	log        *logger.Logger
}

// NewTranscriber creates the transcription stage. corrector may be nil, in
// which case every result is degraded to the raw transcript.
func NewTranscriber(
	recognizer capability.Provider[core.SpeechRecognizer],
	corrector capability.Provider[core.TextCorrector],
	converter WAVConverter,
	log *logger.Logger,
) *Transcriber {
	return &Transcriber{recognizer: recognizer, corrector: corrector, converter: converter, log: log}
}

// Transcribe recognizes the audio file at audioPath.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) TranscriptionResult {
	result := TranscriptionResult{State: StateNotStarted}

	recognizer, unavailableErr := t.recognizer(ctx)
	if unavailableErr != nil {
		t.log.Error(logFmtASRUnavailable, audioPath, unavailableErr)

		return result.fail(fmt.Errorf("ASR unavailable: %w", unavailableErr))
	}

	result.State = StateTranscribing

	raw, transcribeErr := t.recognize(ctx, recognizer, audioPath)
	if transcribeErr != nil {
		return result.fail(transcribeErr)
	}

	result.Raw = raw
	result.State = StateCorrecting
	result.Corrected, result.Degraded = t.correct(ctx, raw)
	result.Status = core.StatusCompleted
	result.State = StateCompleted

	return result
}

func (r TranscriptionResult) fail(err error) TranscriptionResult {
	r.State = StateError
	r.Status = core.StatusError
	r.Err = err

	return r
}

func (t *Transcriber) recognize(ctx context.Context, recognizer core.SpeechRecognizer, audioPath string) (string, error) {
	wavPath := audioPath

	if audio.FormatOf(audioPath) != audio.FormatWAV {
		t.log.Info(logFmtConverting, audioPath)

		convertedPath, cleanup, convertErr := t.converter.ToWAV(ctx, audioPath)
		defer cleanup()

		if convertErr != nil {
			return "", fmt.Errorf("%w: audio conversion: %w", core.ErrInferenceFailed, convertErr)
		}

		wavPath = convertedPath
	}

	samples, sampleErr := loadSamples(wavPath)
	if sampleErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInferenceFailed, sampleErr)
	}

	text, recognizeErr := recognizer.Transcribe(ctx, samples, audio.TargetSampleRate)
	if recognizeErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInferenceFailed, recognizeErr)
	}

	text = strings.TrimSpace(text)
	t.log.Info(logFmtTranscribed, audioPath, len([]rune(text)))

	return text, nil
}

func loadSamples(wavPath string) ([]float64, error) {
	file, openErr := os.Open(wavPath)
	if openErr != nil {
		var pathErr *fs.PathError
		if errors.As(openErr, &pathErr) {
			openErr = pathErr.Err
		}

		return nil, fmt.Errorf("failed to open waveform %s: %w", filepath.Base(wavPath), openErr)
	}
	defer file.Close()

	buffer, decodeErr := audio.DecodeWAV(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode waveform: %w", decodeErr)
	}

	samples, prepareErr := audio.PrepareForRecognition(buffer)
	if prepareErr != nil {
		return nil, fmt.Errorf("failed to prepare waveform: %w", prepareErr)
	}

	return samples, nil
}

// correct returns the corrected text and whether the result fell back to raw.
func (t *Transcriber) correct(ctx context.Context, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if t.corrector == nil {
		return raw, true
	}

	corrector, unavailableErr := t.corrector(ctx)
	if unavailableErr != nil {
		t.log.Warn(logFmtCorrectionSkipped, unavailableErr)

		return raw, true
	}

	corrected, correctErr := corrector.Correct(ctx, raw)
	if correctErr != nil {
		t.log.Warn(logFmtCorrectionFailed, correctErr)

		return raw, true
	}

	corrected = strings.TrimSpace(corrected)
	if corrected == "" {
		t.log.Warn(logFmtCorrectionEmpty)

		return raw, true
	}

	return corrected, false
}
