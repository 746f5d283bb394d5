package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/book-expert/vietforeign-service/internal/lifecycle"
	"github.com/book-expert/vietforeign-service/internal/pipeline"
	"github.com/nats-io/nats.go"
)

// RemoteError is a failure reported by the worker.
type RemoteError struct {
	StatusCode int
	Kind       string
	Message    string
	Detected   string
}

func (e *RemoteError) Error() string {
	if e.Detected != "" {
		return fmt.Sprintf("%d %s: %s (detected %s)", e.StatusCode, e.Kind, e.Message, e.Detected)
	}

	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// Client sends pipeline requests to a NatsWorker.
type Client struct {
	natsConnection *nats.Conn
	prefix         string
}

// NewClient creates a client for workers listening under prefix.
func NewClient(natsConnection *nats.Conn, prefix string) *Client {
	return &Client{natsConnection: natsConnection, prefix: prefix}
}

// Upload stores an audio file.
func (c *Client) Upload(ctx context.Context, request UploadRequest) (pipeline.UploadResult, error) {
	return call[pipeline.UploadResult](ctx, c, SubjectUpload, request)
}

// GetTranscript returns the transcript of id, transcribing on first use.
func (c *Client) GetTranscript(ctx context.Context, id string) (pipeline.Transcript, error) {
	request := TranscriptRequest{Header: NewHeader(id), ID: id, Text: ""}

	return call[pipeline.Transcript](ctx, c, SubjectGetTranscript, request)
}

// UpdateTranscript replaces the transcript of id.
func (c *Client) UpdateTranscript(ctx context.Context, id, text string) (pipeline.Transcript, error) {
	request := TranscriptRequest{Header: NewHeader(id), ID: id, Text: text}

	return call[pipeline.Transcript](ctx, c, SubjectUpdateTranscript, request)
}

// Translate translates the transcript of id into target.
func (c *Client) Translate(ctx context.Context, id, target string) (pipeline.Translation, error) {
	request := TranslateRequest{Header: NewHeader(id), ID: id, TargetLanguage: target}

	return call[pipeline.Translation](ctx, c, SubjectTranslate, request)
}

// VoiceConvert synthesizes speech for id in target.
func (c *Client) VoiceConvert(ctx context.Context, id, target, text string) (pipeline.VoiceConversion, error) {
	request := VoiceConvertRequest{Header: NewHeader(id), ID: id, TargetLanguage: target, Text: text}

	return call[pipeline.VoiceConversion](ctx, c, SubjectVoiceConvert, request)
}

// Health returns the service health.
func (c *Client) Health(ctx context.Context) (pipeline.Health, error) {
	return call[pipeline.Health](ctx, c, SubjectHealth, struct{}{})
}

// Cleanup triggers the cleanup sweep.
func (c *Client) Cleanup(ctx context.Context) (lifecycle.Report, error) {
	return call[lifecycle.Report](ctx, c, SubjectCleanup, struct{}{})
}

func call[T any](ctx context.Context, c *Client, operation string, request any) (T, error) {
	var result T

	payload, err := json.Marshal(request)
	if err != nil {
		return result, fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	msg, err := c.natsConnection.RequestWithContext(ctx, Subject(c.prefix, operation), payload)
	if err != nil {
		return result, fmt.Errorf("%s request failed: %w", operation, err)
	}

	var reply Reply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return result, fmt.Errorf("failed to unmarshal %s reply: %w", operation, err)
	}

	if !reply.OK {
		return result, &RemoteError{
			StatusCode: reply.StatusCode,
			Kind:       reply.Kind,
			Message:    reply.Error,
			Detected:   reply.Detected,
		}
	}

	err = json.Unmarshal(reply.Data, &result)
	if err != nil {
		return result, fmt.Errorf("failed to decode %s result: %w", operation, err)
	}

	return result, nil
}
