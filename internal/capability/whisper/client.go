// Package whisper provides a Whisper API recognizer.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/core"
)

// Error messages.
const (
	errFailedToEncodeWAV       = "failed to encode waveform: %w"
	errFailedToCreateFormFile  = "failed to create form file: %w"
	errFailedToCopyFileData    = "failed to copy file data: %w"
	errFailedToWriteModelField = "failed to write model field: %w"
	errFailedToWriteLangField  = "failed to write language field: %w"
	errFailedToCloseWriter     = "failed to close multipart writer: %w"
	errFailedToCreateRequest   = "failed to create request: %w"
	errFailedToMakeRequest     = "failed to make request: %w"
	errAPIRequestFailed        = "API request failed with status %d: %s"
	errFailedToDecodeResponse  = "failed to decode response: %w"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
)

// Form field names.
const (
	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/audio/transcriptions"
	defaultTimeout = 60 * time.Second
	uploadName     = "speech.wav"
	envAPIKey      = "OPENAI_API_KEY"
)

// ErrAPIKeyNotSet is returned by NewFromEnv when OPENAI_API_KEY is empty.
var ErrAPIKeyNotSet = errors.New("OPENAI_API_KEY environment variable not set")

// Client provides Whisper API client functionality.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	language   string
}

var _ core.SpeechRecognizer = (*Client)(nil)

// Response represents the response from Whisper API.
type Response struct {
	Text string `json:"text"`
}

// NewClient creates a new Whisper API client. An empty baseURL uses the
// public OpenAI endpoint.
func NewClient(apiKey, baseURL, model, language string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    model,
		language: language,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewFromEnv creates a client authenticated with OPENAI_API_KEY.
func NewFromEnv(baseURL, model, language string) (*Client, error) {
	apiKey := os.Getenv(envAPIKey)
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return NewClient(apiKey, baseURL, model, language), nil
}

// Transcribe encodes the waveform as WAV and uploads it for transcription.
func (c *Client) Transcribe(ctx context.Context, samples []float64, sampleRate int) (string, error) {
	var wav bytes.Buffer

	err := audio.EncodeWAV(&wav, samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf(errFailedToEncodeWAV, err)
	}

	return c.TranscribeWAV(ctx, &wav)
}

// TranscribeWAV uploads a WAV stream for transcription.
func (c *Client) TranscribeWAV(ctx context.Context, wav io.Reader) (string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, uploadName)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateFormFile, err)
	}

	_, err = io.Copy(part, wav)
	if err != nil {
		return "", fmt.Errorf(errFailedToCopyFileData, err)
	}

	err = writer.WriteField(formFieldModel, c.model)
	if err != nil {
		return "", fmt.Errorf(errFailedToWriteModelField, err)
	}

	if c.language != "" {
		err = writer.WriteField(formFieldLanguage, c.language)
		if err != nil {
			return "", fmt.Errorf(errFailedToWriteLangField, err)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return "", fmt.Errorf(errFailedToCloseWriter, closeErr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateRequest, err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	req.Header.Set(headerContentType, writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(errFailedToMakeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return "", fmt.Errorf(errAPIRequestFailed, resp.StatusCode, string(body))
	}

	var whisperResp Response

	decodeErr := json.NewDecoder(resp.Body).Decode(&whisperResp)
	if decodeErr != nil {
		return "", fmt.Errorf(errFailedToDecodeResponse, decodeErr)
	}

	return whisperResp.Text, nil
}
