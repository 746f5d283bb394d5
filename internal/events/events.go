// Package events publishes pipeline events to NATS, Kafka or the log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bookevents "github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/config"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event types.
const (
	TypeUploaded          = "artifact.uploaded"
	TypeTranscribed       = "transcript.completed"
	TypeTranscriptUpdated = "transcript.updated"
	TypeTranslated        = "transcript.translated"
	TypeVoiceConverted    = "voice.converted"
	TypeStageFailed       = "stage.failed"
	TypeCleanup           = "lifecycle.cleanup"
)

// ErrNATSConnRequired indicates the nats backend without a connection.
var ErrNATSConnRequired = errors.New("nats events backend requires a connection")

// PipelineEvent is the payload of every published event. The artifact id is
// carried as the workflow id of the header.
type PipelineEvent struct {
	Header     bookevents.EventHeader `json:"header"`
	Type       string                 `json:"type"`
	ArtifactID string                 `json:"artifact_id,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Degraded   bool                   `json:"degraded,omitempty"`
	AudioURL   string                 `json:"audio_url,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
	Detail     string                 `json:"detail,omitempty"`
	DurationMS int64                  `json:"duration_ms,omitempty"`
}

// New creates an event for artifactID with a fresh header.
func New(eventType, artifactID string) *PipelineEvent {
	return &PipelineEvent{
		Header: bookevents.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: artifactID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Type:       eventType,
		ArtifactID: artifactID,
	}
}

// Publisher sends pipeline events to a backend.
type Publisher interface {
	Publish(ctx context.Context, event *PipelineEvent) error
	Close() error
}

// NewPublisher selects the publisher configured in cfg. conn is only used by
// the nats backend.
func NewPublisher(cfg config.EventsConfig, conn *nats.Conn, log *logger.Logger) (Publisher, error) {
	switch cfg.Backend {
	case config.EventsBackendNATS:
		if conn == nil {
			return nil, ErrNATSConnRequired
		}

		return NewNATSPublisher(conn, cfg.SubjectPrefix, log), nil
	case config.EventsBackendKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log), nil
	case config.EventsBackendLog, "":
		return NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownEventsBackend, cfg.Backend)
	}
}

func marshal(event *PipelineEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	return payload, nil
}

// NATSPublisher publishes events on <prefix>.<type> subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *logger.Logger
}

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(conn *nats.Conn, prefix string, log *logger.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}

	return p.prefix + "." + eventType
}

// Publish sends event without waiting for subscribers.
func (p *NATSPublisher) Publish(_ context.Context, event *PipelineEvent) error {
	payload, err := marshal(event)
	if err != nil {
		return err
	}

	subject := p.Subject(event.Type)

	err = p.conn.Publish(subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	return nil
}

// Close flushes pending messages. The connection is owned by the caller.
func (p *NATSPublisher) Close() error {
	if p.conn.IsClosed() {
		return nil
	}

	flushErr := p.conn.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to flush event publisher: %w", flushErr)
	}

	return nil
}

// LogPublisher writes events to the service log only.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the encoded event.
func (p *LogPublisher) Publish(_ context.Context, event *PipelineEvent) error {
	payload, err := marshal(event)
	if err != nil {
		return err
	}

	p.log.Info("Event %s: %s", event.Type, payload)

	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
