package pipeline_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_FrenchVoiceConversion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	id := h.upload(t)

	transcript, err := h.service.GetTranscript(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, transcript.Status)
	assert.Equal(t, vietnameseTranscript, transcript.Corrected)

	translation, err := h.service.Translate(ctx, id, "fr")
	require.NoError(t, err)
	assert.Equal(t, "[fra_Latn] "+vietnameseTranscript, translation.Text)

	conversion, err := h.service.VoiceConvert(ctx, id, "fr", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(conversion.AudioURL, "/static/converted/converted_"))
	assert.True(t, strings.HasSuffix(conversion.AudioURL, "_fr.wav"))
	assert.Equal(t, translation.Text, conversion.Text)
	assert.FileExists(t, conversion.AudioPath)
	assert.Equal(t, filepath.Base(conversion.AudioPath), conversion.ObjectKey)

	stored, ok := h.sessions.Get(id)
	require.True(t, ok)
	require.Contains(t, stored.VoiceConversions, "fr")
	assert.Equal(t, conversion.AudioURL, stored.VoiceConversions["fr"].AudioURL)
	assert.Equal(t, "fr", stored.TranslatedLanguage)

	assert.Equal(t, []string{
		events.TypeUploaded,
		events.TypeTranscribed,
		events.TypeTranslated,
		events.TypeVoiceConverted,
	}, h.publisher.Types())
}

func TestVoiceConvert_AudioURLIsServed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	id := h.transcribed(t)

	conversion, err := h.service.VoiceConvert(ctx, id, "fr", "")
	require.NoError(t, err)

	server := metrics.NewServer(":0", nil, nil, newTestLogger(t))
	server.ServeStatic("/static", h.staticDir)

	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + conversion.AudioURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(conversion.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, onDisk, served)
}

func TestUpload_RoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	content := toneWAV(t)

	result, err := h.service.Upload(context.Background(), content, "Recording.WAV", "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, "Recording.WAV", result.Filename)

	path, err := h.artifacts.Path(result.ID)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)
}

func TestUpload_Rejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.service.Upload(context.Background(), []byte("hello"), "notes.txt", "text/plain")
	require.ErrorIs(t, err, core.ErrUnsupportedFormat)
	assert.Equal(t, http.StatusUnsupportedMediaType, core.StatusCode(err))
	assert.Equal(t, 0, h.artifacts.Len())

	_, err = h.service.Upload(context.Background(), nil, "empty.mp3", "audio/mpeg")
	require.ErrorIs(t, err, core.ErrValidationFailed)
	assert.Contains(t, err.Error(), "empty file uploaded")
	assert.Equal(t, 0, h.artifacts.Len())

	assert.Equal(t, []string{events.TypeStageFailed, events.TypeStageFailed}, h.publisher.Types())
}

func TestGetTranscript_UnknownID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.service.GetTranscript(context.Background(), "does-not-exist")

	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, h.sessions.Len())
	assert.Equal(t, 0, h.recognizer.Calls())
}

func TestGetTranscript_CachedAfterFirstRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)

	again, err := h.service.GetTranscript(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, again.Cached)
	assert.Equal(t, vietnameseTranscript, again.Raw)
	assert.Equal(t, 1, h.recognizer.Calls())
}

func TestGetTranscript_RechecksCachedLanguage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.upload(t)

	require.NoError(t, h.sessions.Upsert(id, func(session *core.Session) error {
		session.CorrectedTranscript = englishTranscript
		session.Status = core.StatusCompleted

		return nil
	}))

	_, err := h.service.GetTranscript(context.Background(), id)

	require.ErrorIs(t, err, core.ErrValidationFailed)
	assert.Equal(t, "EN", core.DetectedLanguage(err))
}

func TestGetTranscript_StageFailureWritesNoSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.recognizer.err = errModel
	id := h.upload(t)

	_, err := h.service.GetTranscript(context.Background(), id)

	require.ErrorIs(t, err, core.ErrInferenceFailed)
	assert.Equal(t, http.StatusInternalServerError, core.StatusCode(err))
	assert.Equal(t, 0, h.sessions.Len())
}

func TestGetTranscript_MissingBackingFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.upload(t)

	path, err := h.artifacts.Path(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = h.service.GetTranscript(context.Background(), id)

	require.ErrorIs(t, err, core.ErrNotFound)
	assert.NotContains(t, err.Error(), path)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestUpdateTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)
	edited := "Chào buổi sáng, hôm nay chúng ta sẽ học cách nấu phở bò truyền thống."

	updated, err := h.service.UpdateTranscript(context.Background(), id, "  "+edited+"  ")
	require.NoError(t, err)

	assert.Equal(t, core.StatusUpdated, updated.Status)
	assert.Equal(t, edited, updated.Corrected)
	assert.Equal(t, vietnameseTranscript, updated.Raw)
}

func TestUpdateTranscript_RejectsEnglish(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)

	_, err := h.service.UpdateTranscript(context.Background(), id, englishTranscript)

	require.ErrorIs(t, err, core.ErrValidationFailed)
	assert.Equal(t, "EN", core.DetectedLanguage(err))

	stored, ok := h.sessions.Get(id)
	require.True(t, ok)
	assert.Equal(t, vietnameseTranscript, stored.CorrectedTranscript)
	assert.Equal(t, core.StatusCompleted, stored.Status)
}

func TestUpdateTranscript_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.service.UpdateTranscript(context.Background(), "missing", vietnameseTranscript)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, h.sessions.Len())

	id := h.upload(t)

	_, err = h.service.UpdateTranscript(context.Background(), id, "   ")
	require.ErrorIs(t, err, core.ErrValidationFailed)

	_, err = h.service.UpdateTranscript(context.Background(), id, "Xin chào")
	require.ErrorIs(t, err, core.ErrValidationFailed)
	assert.Equal(t, "TEXT_TOO_SHORT", core.DetectedLanguage(err))
	assert.Equal(t, 0, h.sessions.Len())
}

func TestTranslate_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.service.Translate(context.Background(), "missing", "en")
	require.ErrorIs(t, err, core.ErrNotFound)

	id := h.transcribed(t)

	_, err = h.service.Translate(context.Background(), id, "de")
	require.ErrorIs(t, err, core.ErrUnsupportedLanguage)
	assert.Equal(t, http.StatusBadRequest, core.StatusCode(err))

	h.translator.err = errModel

	_, err = h.service.Translate(context.Background(), id, "ja")
	require.ErrorIs(t, err, core.ErrTranslationFailed)

	stored, _ := h.sessions.Get(id)
	assert.Empty(t, stored.TranslatedTranscript)
}

func TestTranslate_EmptyTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.recognizer.text = ""
	id := h.transcribed(t)

	_, err := h.service.Translate(context.Background(), id, "en")

	require.ErrorIs(t, err, core.ErrValidationFailed)
}

func TestTranslate_SingleSlotLastWriteWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)

	_, err := h.service.Translate(context.Background(), id, "en")
	require.NoError(t, err)

	_, err = h.service.Translate(context.Background(), id, "JA")
	require.NoError(t, err)

	stored, _ := h.sessions.Get(id)
	assert.Equal(t, "ja", stored.TranslatedLanguage)
	assert.True(t, strings.HasPrefix(stored.TranslatedTranscript, "[jpn_Jpan]"))
}

func TestTranslate_CancelledCallerDropsResult(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)
	h.translator.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.service.Translate(ctx, id, "en")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(h.translator.gate)

	stored, _ := h.sessions.Get(id)
	assert.Empty(t, stored.TranslatedTranscript)
}

func TestVoiceConvert_TextPriority(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.transcribed(t)

	conversion, err := h.service.VoiceConvert(context.Background(), id, "en", "")
	require.NoError(t, err)
	assert.Equal(t, vietnameseTranscript, conversion.Text)

	_, err = h.service.Translate(context.Background(), id, "en")
	require.NoError(t, err)

	conversion, err = h.service.VoiceConvert(context.Background(), id, "en", "")
	require.NoError(t, err)
	assert.Equal(t, "[eng_Latn] "+vietnameseTranscript, conversion.Text)

	conversion, err = h.service.VoiceConvert(context.Background(), id, "ja", "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", conversion.Text)
	assert.Equal(t, "こんにちは.", h.speech.LastText())

	stored, _ := h.sessions.Get(id)
	assert.Len(t, stored.VoiceConversions, 2)
}

func TestVoiceConvert_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.service.VoiceConvert(context.Background(), "missing", "fr", "")
	require.ErrorIs(t, err, core.ErrNotFound)

	id := h.transcribed(t)

	_, err = h.service.VoiceConvert(context.Background(), id, "  ", "")
	require.ErrorIs(t, err, core.ErrValidationFailed)

	path, err := h.artifacts.Path(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = h.service.VoiceConvert(context.Background(), id, "fr", "")
	require.ErrorIs(t, err, core.ErrNotFound)

	stored, _ := h.sessions.Get(id)
	assert.Empty(t, stored.VoiceConversions)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.upload(t)

	health := h.service.Health()

	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, 1, health.Artifacts)
	assert.Equal(t, 0, health.Sessions)
	assert.False(t, health.Capabilities["translation"])
}
