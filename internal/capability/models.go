package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/vietforeign-service/internal/core"
)

const (
	apiTranscribe   = "/v1/asr/transcribe"
	apiCorrect      = "/v1/text/correct"
	apiTranslate    = "/v1/text/translate"
	apiConditioning = "/v1/speech/conditioning"
	apiGenerate     = "/v1/generate/speech"
	apiConvertVoice = "/v1/voice/convert"
)

const defaultTemperature = 0.75

// ErrTextEmpty is returned when a text capability receives no input.
var ErrTextEmpty = errors.New("text cannot be empty")

// TranscribeRequest is the payload of the recognition endpoint.
type TranscribeRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Language   string    `json:"language"`
}

// TextResponse is the reply of the recognition and correction endpoints.
type TextResponse struct {
	Text string `json:"text"`
}

// CorrectRequest is the payload of the correction endpoint.
type CorrectRequest struct {
	Text        string  `json:"text"`
	Temperature float64 `json:"temperature"`
}

// TranslateRequest is the payload of the translation endpoint. Language codes
// are model specific, e.g. "vie_Latn".
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"src_lang"`
	TargetLang string `json:"tgt_lang"`
}

// TranslateResponse is the reply of the translation endpoint.
type TranslateResponse struct {
	Translation string `json:"translation"`
}

// ConditioningRequest is the payload of the conditioning endpoint.
type ConditioningRequest struct {
	ReferencePath string `json:"reference_path"`
}

// GenerateRequest is the payload of the speech generation endpoint.
type GenerateRequest struct {
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Temperature float64 `json:"temperature"`
	core.Conditioning
}

// ConvertVoiceRequest is the payload of the voice conversion endpoint. The
// server writes its output to OutputPath.
type ConvertVoiceRequest struct {
	SourcePath    string `json:"source_path"`
	ReferencePath string `json:"reference_path"`
	OutputPath    string `json:"output_path"`
}

// ASRClient is a SpeechRecognizer backed by a recognition model server.
type ASRClient struct {
	*Client

	language string
}

var _ core.SpeechRecognizer = (*ASRClient)(nil)

// NewASRClient creates a recognizer for the given language hint.
func NewASRClient(client *Client, language string) *ASRClient {
	return &ASRClient{Client: client, language: language}
}

// Transcribe sends the prepared waveform and returns the recognized text.
func (c *ASRClient) Transcribe(ctx context.Context, samples []float64, sampleRate int) (string, error) {
	payload := TranscribeRequest{
		Samples:    make([]float32, len(samples)),
		SampleRate: sampleRate,
		Language:   c.language,
	}

	for index, sample := range samples {
		payload.Samples[index] = float32(sample)
	}

	var reply TextResponse

	err := c.postJSON(ctx, apiTranscribe, payload, &reply)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	return reply.Text, nil
}

// CorrectionClient is a TextCorrector backed by a text generation model server.
type CorrectionClient struct {
	*Client

	temperature float64
}

var _ core.TextCorrector = (*CorrectionClient)(nil)

// NewCorrectionClient creates a corrector sampling at temperature.
func NewCorrectionClient(client *Client, temperature float64) *CorrectionClient {
	return &CorrectionClient{Client: client, temperature: temperature}
}

// Correct returns the repaired transcript.
func (c *CorrectionClient) Correct(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", ErrTextEmpty
	}

	var reply TextResponse

	err := c.postJSON(ctx, apiCorrect, CorrectRequest{Text: text, Temperature: c.temperature}, &reply)
	if err != nil {
		return "", fmt.Errorf("correction request failed: %w", err)
	}

	return reply.Text, nil
}

// TranslationClient is a TextTranslator backed by a translation model server.
type TranslationClient struct {
	*Client
}

var _ core.TextTranslator = (*TranslationClient)(nil)

// NewTranslationClient creates a translator.
func NewTranslationClient(client *Client) *TranslationClient {
	return &TranslationClient{Client: client}
}

// Translate returns text translated from sourceCode to targetCode.
func (c *TranslationClient) Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error) {
	if text == "" {
		return "", ErrTextEmpty
	}

	var reply TranslateResponse

	err := c.postJSON(ctx, apiTranslate, TranslateRequest{
		Text:       text,
		SourceLang: sourceCode,
		TargetLang: targetCode,
	}, &reply)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}

	return reply.Translation, nil
}

// SpeechClient talks to the synthesis model server. It extracts speaker
// conditioning, generates speech and converts voices.
type SpeechClient struct {
	*Client

	temperature float64
}

var (
	_ core.SpeechGenerator = (*SpeechClient)(nil)
	_ core.VoiceConverter  = (*SpeechClient)(nil)
	_ core.Releaser        = (*SpeechClient)(nil)
)

// NewSpeechClient creates a synthesis client. A zero temperature uses the
// server default of 0.75.
func NewSpeechClient(client *Client, temperature float64) *SpeechClient {
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &SpeechClient{Client: client, temperature: temperature}
}

// ExtractConditioning derives speaker features from the reference audio file.
func (c *SpeechClient) ExtractConditioning(ctx context.Context, referencePath string) (core.Conditioning, error) {
	var cond core.Conditioning

	err := c.postJSON(ctx, apiConditioning, ConditioningRequest{ReferencePath: referencePath}, &cond)
	if err != nil {
		return core.Conditioning{}, fmt.Errorf("conditioning request failed: %w", err)
	}

	if len(cond.SpeakerEmbedding) == 0 {
		return core.Conditioning{}, fmt.Errorf("conditioning request failed: %w", ErrEmptyResponse)
	}

	return cond, nil
}

// GenerateSpeech returns the WAV encoded speech for text.
func (c *SpeechClient) GenerateSpeech(
	ctx context.Context,
	text, language string,
	cond core.Conditioning,
) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	audioData, err := c.postForAudio(ctx, apiGenerate, GenerateRequest{
		Text:         text,
		Language:     language,
		Temperature:  c.temperature,
		Conditioning: cond,
	})
	if err != nil {
		return nil, fmt.Errorf("speech generation failed: %w", err)
	}

	return audioData, nil
}

// ConvertVoice asks the server to rewrite sourcePath in the timbre of
// referencePath and store the result at outputPath.
func (c *SpeechClient) ConvertVoice(ctx context.Context, sourcePath, referencePath, outputPath string) error {
	err := c.postJSON(ctx, apiConvertVoice, ConvertVoiceRequest{
		SourcePath:    sourcePath,
		ReferencePath: referencePath,
		OutputPath:    outputPath,
	}, nil)
	if err != nil {
		return fmt.Errorf("voice conversion failed: %w", err)
	}

	return nil
}
