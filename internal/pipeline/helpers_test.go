package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/artifact"
	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/capability"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/langguard"
	"github.com/book-expert/vietforeign-service/internal/offload"
	"github.com/book-expert/vietforeign-service/internal/pipeline"
	"github.com/book-expert/vietforeign-service/internal/session"
	"github.com/book-expert/vietforeign-service/internal/stage"
	"github.com/stretchr/testify/require"
)

const (
	vietnameseTranscript = "Xin chào các bạn, hôm nay tôi muốn kể về những món ăn truyền thống của người Việt Nam."
	englishTranscript    = "Hello everyone, today I would like to talk about the weather and the traffic in our city."
)

var errModel = errors.New("model crashed")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func toneWAV(t *testing.T) []byte {
	t.Helper()

	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/16000)
	}

	var buf bytes.Buffer
	require.NoError(t, audio.EncodeWAV(&buf, samples, 16000))

	return buf.Bytes()
}

type stubRecognizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubRecognizer) Transcribe(context.Context, []float64, int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	return s.text, s.err
}

func (s *stubRecognizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type echoCorrector struct{}

func (echoCorrector) Correct(_ context.Context, text string) (string, error) {
	return text, nil
}

// stubTranslator prefixes the text with the target model code. When gate is
// set it blocks until the gate is closed.
type stubTranslator struct {
	err  error
	gate chan struct{}
}

func (s *stubTranslator) Translate(_ context.Context, text, _, targetCode string) (string, error) {
	if s.gate != nil {
		<-s.gate
	}

	if s.err != nil {
		return "", s.err
	}

	return "[" + targetCode + "] " + text, nil
}

// stubSpeech generates a fixed waveform and "converts" it by prefixing it.
type stubSpeech struct {
	mu   sync.Mutex
	text string
}

func (s *stubSpeech) ExtractConditioning(context.Context, string) (core.Conditioning, error) {
	return core.Conditioning{SpeakerEmbedding: []float32{1}}, nil
}

func (s *stubSpeech) GenerateSpeech(_ context.Context, text, language string, _ core.Conditioning) ([]byte, error) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()

	return []byte("RIFF generated " + language), nil
}

func (s *stubSpeech) ConvertVoice(_ context.Context, sourcePath, _, outputPath string) error {
	generated, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	return os.WriteFile(outputPath, append([]byte("converted "), generated...), 0o600)
}

func (s *stubSpeech) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.text
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PipelineEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event *events.PipelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, *event)

	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}

	return types
}

type recordingMirror struct {
	mu   sync.Mutex
	keys []string
}

func (m *recordingMirror) UploadFile(_ context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := filepath.Base(path)
	m.keys = append(m.keys, key)

	return key, nil
}

type harness struct {
	service    *pipeline.Service
	artifacts  *artifact.Store
	sessions   *session.Store
	recognizer *stubRecognizer
	translator *stubTranslator
	speech     *stubSpeech
	publisher  *recordingPublisher
	mirror     *recordingMirror
	staticDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	log := newTestLogger(t)

	h := &harness{
		artifacts:  artifact.NewStore(filepath.Join(dir, "static", "uploads"), log),
		sessions:   session.NewStore(),
		recognizer: &stubRecognizer{text: vietnameseTranscript},
		translator: &stubTranslator{},
		speech:     &stubSpeech{},
		publisher:  &recordingPublisher{},
		mirror:     &recordingMirror{},
		staticDir:  filepath.Join(dir, "static"),
	}

	scratch := filepath.Join(dir, "temp")

	h.service = pipeline.New(pipeline.Dependencies{
		Artifacts: h.artifacts,
		Sessions:  h.sessions,
		Guard:     langguard.New(langguard.Detector{}, log),
		Transcriber: stage.NewTranscriber(
			capability.Static[core.SpeechRecognizer](h.recognizer),
			capability.Static[core.TextCorrector](echoCorrector{}),
			audio.NewConverter("ffmpeg", scratch, nil, log),
			log,
		),
		Translator: stage.NewTranslator(capability.Static[core.TextTranslator](h.translator), log),
		Synthesizer: stage.NewSynthesizer(
			capability.Static[core.SpeechGenerator](h.speech),
			capability.Static[core.VoiceConverter](h.speech),
			scratch,
			log,
		),
		Pool:      offload.New(2, log),
		Publisher: h.publisher,
		Mirror:    h.mirror,
		Capabilities: func() map[string]bool {
			return map[string]bool{capability.NameASR: true, capability.NameTranslation: false}
		},
	}, pipeline.Options{
		StaticDir:       h.staticDir,
		ConvertedDir:    filepath.Join(h.staticDir, "converted"),
		StaticURLPrefix: "/static",
	}, log)

	return h
}

func (h *harness) upload(t *testing.T) string {
	t.Helper()

	result, err := h.service.Upload(context.Background(), toneWAV(t), "interview.wav", "audio/wav")
	require.NoError(t, err)

	return result.ID
}

func (h *harness) transcribed(t *testing.T) string {
	t.Helper()

	id := h.upload(t)

	_, err := h.service.GetTranscript(context.Background(), id)
	require.NoError(t, err)

	return id
}
