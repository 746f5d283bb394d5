// Package pipeline orchestrates the localization stages behind the
// operations exposed to clients: upload, transcript retrieval and editing,
// translation and voice conversion.
package pipeline

import (
	"context"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/metrics"
	"github.com/book-expert/vietforeign-service/internal/offload"
	"github.com/book-expert/vietforeign-service/internal/stage"
)

// Operation names used in errors, metrics and events.
const (
	OpUpload           = "upload"
	OpGetTranscript    = "get_transcript"
	OpUpdateTranscript = "update_transcript"
	OpTranslate        = "translate"
	OpVoiceConvert     = "voice_convert"

	stageLanguageGuard = "language_guard"
)

const (
	logFmtOpFailed       = "%s failed for %s: %v"
	logFmtPublishFailed  = "Failed to publish %s event for %s: %v"
	logFmtMirrorFailed   = "Failed to mirror %s to object store: %v"
	logFmtMirrored       = "Mirrored %s to object store as %s"
	logFmtServingCached  = "Serving cached transcript for %s"
	logFmtTranscriptDone = "Transcript for %s completed (degraded=%t)"
)

// Guard decides whether text is in the source language.
type Guard interface {
	Classify(ctx context.Context, text string) (bool, string)
}

// Transcriber runs the transcription stage on a stored audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) stage.TranscriptionResult
}

// Translator runs the translation stage.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Synthesizer runs the synthesis stage.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, referencePath, target, outputPath string) (string, error)
}

// Mirror copies a finished output file to durable storage and returns its key.
type Mirror interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// Dependencies are the collaborators of a Service. Publisher, Metrics,
// Mirror and Capabilities are optional.
type Dependencies struct {
	Artifacts    core.ArtifactStore
	Sessions     core.SessionStore
	Guard        Guard
	Transcriber  Transcriber
	Translator   Translator
	Synthesizer  Synthesizer
	Pool         *offload.Pool
	Publisher    events.Publisher
	Metrics      *metrics.Metrics
	Mirror       Mirror
	Capabilities func() map[string]bool
}

// Options control where synthesized audio is written and how it is addressed.
type Options struct {
	StaticDir       string
	ConvertedDir    string
	StaticURLPrefix string
	RequestTimeout  time.Duration
}

// Service implements the pipeline operations. It is safe for concurrent use.
type Service struct {
	artifacts    core.ArtifactStore
	sessions     core.SessionStore
	guard        Guard
	transcriber  Transcriber
	translator   Translator
	synthesizer  Synthesizer
	pool         *offload.Pool
	publisher    events.Publisher
	metrics      *metrics.Metrics
	mirror       Mirror
	capabilities func() map[string]bool
	opts         Options
	log          *logger.Logger
}

// New creates a Service.
func New(deps Dependencies, opts Options, log *logger.Logger) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}

	pool := deps.Pool
	if pool == nil {
		pool = offload.New(1, log)
	}

	if opts.StaticURLPrefix == "" {
		opts.StaticURLPrefix = "/static"
	}

	return &Service{
		artifacts:    deps.Artifacts,
		sessions:     deps.Sessions,
		guard:        deps.Guard,
		transcriber:  deps.Transcriber,
		translator:   deps.Translator,
		synthesizer:  deps.Synthesizer,
		pool:         pool,
		publisher:    publisher,
		metrics:      m,
		mirror:       deps.Mirror,
		capabilities: deps.Capabilities,
		opts:         opts,
		log:          log,
	}
}

// Health summarizes the state of the service.
type Health struct {
	Status       string          `json:"status"`
	Capabilities map[string]bool `json:"capabilities"`
	Artifacts    int             `json:"artifacts"`
	Sessions     int             `json:"sessions"`
	InFlight     int64           `json:"in_flight"`
}

// Health reports capability availability and store sizes. Status is
// "healthy" when every registered capability has loaded.
func (s *Service) Health() Health {
	health := Health{
		Status:       "healthy",
		Capabilities: map[string]bool{},
		Artifacts:    s.artifacts.Len(),
		Sessions:     s.sessions.Len(),
		InFlight:     s.pool.InFlight(),
	}

	if s.capabilities != nil {
		health.Capabilities = s.capabilities()
	}

	for _, loaded := range health.Capabilities {
		if !loaded {
			health.Status = "degraded"
		}
	}

	return health
}

// withTimeout bounds a request by the configured request timeout.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// observe records the outcome of an operation and publishes a failure event
// when err is set.
func (s *Service) observe(ctx context.Context, op, id string, start time.Time, degraded bool, err error) {
	elapsed := time.Since(start)
	outcome := metrics.OutcomeSuccess

	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case degraded:
		outcome = metrics.OutcomeDegraded
	}

	s.metrics.RecordStage(op, outcome, core.Kind(err), elapsed)
	s.metrics.SetStoreSizes(s.artifacts.Len(), s.sessions.Len())
	s.metrics.SetInFlight(s.pool.InFlight())

	if err == nil {
		return
	}

	s.log.Warn(logFmtOpFailed, op, id, err)

	event := events.New(events.TypeStageFailed, id)
	event.Status = op
	event.ErrorKind = core.Kind(err)
	event.Detail = err.Error()
	event.DurationMS = elapsed.Milliseconds()
	s.publish(ctx, event)
}

// publish sends event on a context detached from the request's cancellation.
func (s *Service) publish(ctx context.Context, event *events.PipelineEvent) {
	publishErr := s.publisher.Publish(context.WithoutCancel(ctx), event)
	s.metrics.RecordEvent(event.Type, publishErr)

	if publishErr != nil {
		s.log.Warn(logFmtPublishFailed, event.Type, event.ArtifactID, publishErr)
	}
}
