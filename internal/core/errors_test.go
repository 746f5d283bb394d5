package core_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeAndKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"nil", nil, http.StatusOK, "none"},
		{"not found", core.ErrNotFound, http.StatusNotFound, "not_found"},
		{"format", core.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"},
		{"language", core.ErrUnsupportedLanguage, http.StatusBadRequest, "unsupported_language"},
		{"validation", core.ErrValidationFailed, http.StatusBadRequest, "validation_failed"},
		{"unavailable", core.ErrCapabilityUnavailable, http.StatusServiceUnavailable, "capability_unavailable"},
		{"translation", core.ErrTranslationFailed, http.StatusInternalServerError, "translation_failed"},
		{"inference", core.ErrInferenceFailed, http.StatusInternalServerError, "inference_failed"},
		{"incomplete", core.ErrSynthesisIncomplete, http.StatusInternalServerError, "synthesis_incomplete"},
		{"reference", core.ErrReferenceAudioInvalid, http.StatusNotFound, "reference_audio_invalid"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			wrapped := core.NewError("op", "id-1", testCase.err)
			if testCase.err == nil {
				assert.Equal(t, testCase.status, core.StatusCode(nil))
				assert.Equal(t, testCase.kind, core.Kind(nil))

				return
			}

			assert.Equal(t, testCase.status, core.StatusCode(wrapped))
			assert.Equal(t, testCase.kind, core.Kind(wrapped))
		})
	}
}

func TestTranslationFailedIsInferenceFailed(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: model crashed", core.ErrTranslationFailed)

	require.ErrorIs(t, err, core.ErrTranslationFailed)
	require.ErrorIs(t, err, core.ErrInferenceFailed)
}

func TestErrorCarriesContext(t *testing.T) {
	t.Parallel()

	err := core.NewError("update_transcript", "abc", core.ErrValidationFailed).
		WithStage("language_guard").
		WithDetected("EN")

	assert.Equal(t, "EN", core.DetectedLanguage(fmt.Errorf("outer: %w", err)))
	assert.Contains(t, err.Error(), "update_transcript")
	assert.Contains(t, err.Error(), "stage=language_guard")
	assert.Contains(t, err.Error(), "id=abc")
	assert.Empty(t, core.DetectedLanguage(core.ErrNotFound))
}

func TestSessionCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := core.Session{
		ID:               "a",
		VoiceConversions: map[string]core.Conversion{"fr": {AudioURL: "/static/x.wav"}},
	}

	clone := original.Clone()
	clone.VoiceConversions["en"] = core.Conversion{}

	assert.Len(t, original.VoiceConversions, 1)
	assert.Equal(t, "b", core.Session{RawTranscript: "b"}.SourceText())
	assert.Equal(t, "c", core.Session{RawTranscript: "b", CorrectedTranscript: "c"}.SourceText())
}

func TestRedactPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no path", "transcribe id=abc: inference failed", "transcribe id=abc: inference failed"},
		{"bare path", "/srv/app/static/uploads/a.mp3: invalid data", "a.mp3: invalid data"},
		{
			"open error",
			"failed to open waveform: open /tmp/scratch/x.wav: no such file or directory",
			"failed to open waveform: open x.wav: no such file or directory",
		},
		{"quoted", `stat "/var/lib/app/y.json" failed`, `stat "y.json" failed`},
		{"several", "/a/b/c.wav and (/d/e/f.wav)", "c.wav and (f.wav)"},
		{"url untouched", "fetch http://host:8080/static/x.wav failed", "fetch http://host:8080/static/x.wav failed"},
		{"relative untouched", "open uploads/a.mp3", "open uploads/a.mp3"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, core.RedactPaths(testCase.text))
		})
	}
}
