package core

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
)

// Error kinds surfaced by the pipeline. Match them with errors.Is.
var (
	// ErrNotFound indicates an unknown id or a missing backing file.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat indicates an upload with a disallowed extension.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrUnsupportedLanguage indicates a target language outside the supported set.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrValidationFailed indicates rejected input such as non-Vietnamese text.
	ErrValidationFailed = errors.New("validation failed")
	// ErrCapabilityUnavailable indicates a model that failed to load.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrInferenceFailed indicates a model call that failed during a request.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrTranslationFailed is the inference failure of the translation model.
	ErrTranslationFailed = fmt.Errorf("translation failed: %w", ErrInferenceFailed)
	// ErrSynthesisIncomplete indicates a missing output after a successful inference.
	ErrSynthesisIncomplete = errors.New("synthesis incomplete")
	// ErrReferenceAudioInvalid indicates an unreadable speaker reference recording.
	ErrReferenceAudioInvalid = errors.New("reference audio invalid")
	// ErrStorage indicates a failed write to the artifact storage.
	ErrStorage = errors.New("storage error")
)

// absolutePath matches a rooted path that starts a word or follows a quote, paren or '='.
var absolutePath = regexp.MustCompile(`(^|[\s"'(=])/[^\s"':,()]+`)

// RedactPaths replaces every absolute filesystem path in text with its base name.
// Messages that cross the process boundary go through it; the log keeps the full text.
func RedactPaths(text string) string {
	return absolutePath.ReplaceAllStringFunc(text, func(match string) string {
		slash := strings.IndexByte(match, '/')

		return match[:slash] + filepath.Base(match[slash:])
	})
}

// Error carries the context of a failed pipeline operation.
type Error struct {
	Op       string
	Stage    string
	ID       string
	Detected string
	Err      error
}

// NewError wraps err with the operation and artifact id it belongs to.
func NewError(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Err: err}
}

// WithStage sets the stage name and returns the receiver.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage

	return e
}

// WithDetected sets the detected language code and returns the receiver.
func (e *Error) WithDetected(code string) *Error {
	e.Detected = code

	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	if e.Stage != "" {
		parts = append(parts, "stage="+e.Stage)
	}

	if e.ID != "" {
		parts = append(parts, "id="+e.ID)
	}

	if e.Detected != "" {
		parts = append(parts, "detected="+e.Detected)
	}

	return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// DetectedLanguage returns the detected language code attached to err, if any.
func DetectedLanguage(err error) string {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Detected
	}

	return ""
}

// StatusCode maps an error to its HTTP-equivalent status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrReferenceAudioInvalid):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUnsupportedLanguage), errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short label for the error kind, used in metrics and replies.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrUnsupportedLanguage):
		return "unsupported_language"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrCapabilityUnavailable):
		return "capability_unavailable"
	case errors.Is(err, ErrTranslationFailed):
		return "translation_failed"
	case errors.Is(err, ErrInferenceFailed):
		return "inference_failed"
	case errors.Is(err, ErrSynthesisIncomplete):
		return "synthesis_incomplete"
	case errors.Is(err, ErrReferenceAudioInvalid):
		return "reference_audio_invalid"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal"
	}
}
