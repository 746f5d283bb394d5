package stage_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/stretchr/testify/require"
)

var errModel = errors.New("model crashed")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "stage-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

// writeTone writes a 100ms mono sine tone as a 16-bit WAV file.
func writeTone(t *testing.T, dir, name string, sampleRate int) string {
	t.Helper()

	samples := make([]float64, sampleRate/10)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}

	var buf bytes.Buffer
	require.NoError(t, audio.EncodeWAV(&buf, samples, sampleRate))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

type stubRecognizer struct {
	text     string
	err      error
	calls    int
	lastRate int
	lastLen  int
}

func (s *stubRecognizer) Transcribe(_ context.Context, samples []float64, sampleRate int) (string, error) {
	s.calls++
	s.lastRate = sampleRate
	s.lastLen = len(samples)

	return s.text, s.err
}

type stubCorrector struct {
	text  string
	err   error
	calls int
}

func (s *stubCorrector) Correct(_ context.Context, text string) (string, error) {
	s.calls++

	if s.err != nil {
		return "", s.err
	}

	if s.text == "" {
		return "", nil
	}

	return s.text, nil
}

// fakeWAVConverter stands in for ffmpeg by copying a prepared WAV file.
type fakeWAVConverter struct {
	source  string
	dir     string
	err     error
	outputs []string
}

func (f *fakeWAVConverter) ToWAV(_ context.Context, _ string) (string, func(), error) {
	if f.err != nil {
		return "", func() {}, f.err
	}

	data, err := os.ReadFile(f.source)
	if err != nil {
		return "", func() {}, err
	}

	out := filepath.Join(f.dir, "canonical.wav")
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return "", func() {}, err
	}

	f.outputs = append(f.outputs, out)

	return out, func() { _ = os.Remove(out) }, nil
}

type stubTranslator struct {
	result     string
	err        error
	calls      int
	sourceCode string
	targetCode string
}

func (s *stubTranslator) Translate(_ context.Context, text, sourceCode, targetCode string) (string, error) {
	s.calls++
	s.sourceCode = sourceCode
	s.targetCode = targetCode

	if s.err != nil {
		return "", s.err
	}

	if s.result != "" {
		return s.result, nil
	}

	return "[" + targetCode + "] " + text, nil
}

// stubSpeech implements both SpeechGenerator and VoiceConverter.
type stubSpeech struct {
	conditionErr error
	generateErr  error
	convertErr   error
	skipOutput   bool
	copyRef      bool
	language     string
	text         string
	generated    string
}

func (s *stubSpeech) ExtractConditioning(context.Context, string) (core.Conditioning, error) {
	if s.conditionErr != nil {
		return core.Conditioning{}, s.conditionErr
	}

	return core.Conditioning{SpeakerEmbedding: []float32{0.1, 0.2}}, nil
}

func (s *stubSpeech) GenerateSpeech(_ context.Context, text, language string, _ core.Conditioning) ([]byte, error) {
	s.text = text
	s.language = language

	if s.generateErr != nil {
		return nil, s.generateErr
	}

	return []byte("RIFF-generated-" + language), nil
}

func (s *stubSpeech) ConvertVoice(_ context.Context, sourcePath, referencePath, outputPath string) error {
	s.generated = sourcePath

	if s.convertErr != nil {
		return s.convertErr
	}

	if s.skipOutput {
		return nil
	}

	if s.copyRef {
		data, err := os.ReadFile(referencePath)
		if err != nil {
			return err
		}

		return os.WriteFile(outputPath, data, 0o600)
	}

	generated, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	return os.WriteFile(outputPath, append([]byte("converted:"), generated...), 0o600)
}
