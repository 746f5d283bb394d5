package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/artifact"
	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/capability"
	"github.com/book-expert/vietforeign-service/internal/capability/google"
	"github.com/book-expert/vietforeign-service/internal/capability/whisper"
	"github.com/book-expert/vietforeign-service/internal/config"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/langguard"
	"github.com/book-expert/vietforeign-service/internal/lifecycle"
	"github.com/book-expert/vietforeign-service/internal/metrics"
	"github.com/book-expert/vietforeign-service/internal/objectstore"
	"github.com/book-expert/vietforeign-service/internal/offload"
	"github.com/book-expert/vietforeign-service/internal/pipeline"
	"github.com/book-expert/vietforeign-service/internal/session"
	"github.com/book-expert/vietforeign-service/internal/stage"
	"github.com/book-expert/vietforeign-service/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	logFmtCapabilityDown = "Capability %s is unavailable at startup: %v"
	logFmtMirrorEnabled  = "Mirroring synthesized audio to object store bucket %s"
	logFmtCloseFailed    = "Failed to close %s: %v"
	logFmtPoolNotDrained = "Offloaded tasks still running at shutdown: %v"
)

// app owns every long-lived component of the service.
type app struct {
	cfg *config.Config
	log *logger.Logger

	natsConnection *nats.Conn
	loader         *capability.Loader
	artifacts      *artifact.Store
	pool           *offload.Pool
	publisher      events.Publisher
	httpServer     *metrics.Server
	lifecycle      *lifecycle.Manager
	worker         *worker.NatsWorker
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	application := &app{cfg: cfg, log: log, natsConnection: natsConnection}

	buildErr := application.build(ctx)
	if buildErr != nil {
		natsConnection.Close()

		return nil, buildErr
	}

	return application, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	a.loader = capability.NewLoader(a.log)
	registerCapabilities(a.loader, cfg)

	a.artifacts = artifact.NewStore(cfg.Paths.UploadsDir, a.log)
	sessions := session.NewStore()
	a.pool = offload.New(cfg.Pipeline.Workers, a.log)

	publisher, err := events.NewPublisher(cfg.Events, a.natsConnection, a.log)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}

	a.publisher = publisher

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	serviceMetrics := metrics.New(registry)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = registry
	}

	a.httpServer = metrics.NewServer(cfg.Metrics.Addr, gatherer, a.loader.Status, a.log)
	a.httpServer.ServeStatic(cfg.Pipeline.StaticURLPrefix, cfg.Paths.StaticDir)

	store, err := a.objectStore(ctx)
	if err != nil {
		return err
	}

	deps := pipeline.Dependencies{
		Artifacts:    a.artifacts,
		Sessions:     sessions,
		Guard:        langguard.New(langguard.Detector{}, a.log),
		Transcriber:  a.transcriber(),
		Translator:   stage.NewTranslator(capability.Provide[core.TextTranslator](a.loader, capability.NameTranslation), a.log),
		Synthesizer:  a.synthesizer(),
		Pool:         a.pool,
		Publisher:    publisher,
		Metrics:      serviceMetrics,
		Capabilities: a.loader.Status,
	}

	var workerStore core.ObjectStore
	if store != nil {
		deps.Mirror = store
		workerStore = store
	}

	pipelineService := pipeline.New(deps, pipeline.Options{
		StaticDir:       cfg.Paths.StaticDir,
		ConvertedDir:    cfg.Paths.ConvertedDir,
		StaticURLPrefix: cfg.Pipeline.StaticURLPrefix,
		RequestTimeout:  cfg.RequestTimeout(),
	}, a.log)

	a.lifecycle = lifecycle.New(a.artifacts, sessions, a.loader, lifecycle.Dirs{
		Uploads:    cfg.Paths.UploadsDir,
		Static:     cfg.Paths.StaticDir,
		Converted:  cfg.Paths.ConvertedDir,
		Conversion: cfg.Paths.ConversionDir,
		Scratch:    cfg.Paths.ScratchDirs,
	}, cfg.ShutdownTimeout(), a.log)

	a.worker = worker.NewNatsWorker(a.natsConnection, pipelineService, a.lifecycle, workerStore, worker.Options{
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		QueueGroup:    cfg.NATS.QueueGroup,
		Timeout:       cfg.RequestTimeout(),
	}, a.log)

	return nil
}

func (a *app) transcriber() *stage.Transcriber {
	var corrector capability.Provider[core.TextCorrector]
	if a.cfg.Models.CorrectionURL != "" {
		corrector = capability.Provide[core.TextCorrector](a.loader, capability.NameCorrection)
	}

	converter := audio.NewConverter(a.cfg.Pipeline.FFmpegPath, a.cfg.Paths.ConversionDir, nil, a.log)

	return stage.NewTranscriber(
		capability.Provide[core.SpeechRecognizer](a.loader, capability.NameASR),
		corrector,
		converter,
		a.log,
	)
}

func (a *app) synthesizer() *stage.Synthesizer {
	return stage.NewSynthesizer(
		capability.Provide[core.SpeechGenerator](a.loader, capability.NameSpeech),
		capability.Provide[core.VoiceConverter](a.loader, capability.NameSpeech),
		a.cfg.Paths.ConversionDir,
		a.log,
	)
}

// objectStore binds the audio bucket. It returns nil when no bucket is configured.
func (a *app) objectStore(ctx context.Context) (*objectstore.NatsObjectStore, error) {
	bucket := a.cfg.NATS.AudioObjectStoreBucket
	if bucket == "" {
		return nil, nil
	}

	js, err := jetstream.New(a.natsConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to bind object store %s: %w", bucket, err)
	}

	a.log.Info(logFmtMirrorEnabled, bucket)

	return store, nil
}

// registerCapabilities registers the model capabilities selected by cfg.
func registerCapabilities(loader *capability.Loader, cfg *config.Config) {
	timeout := cfg.ModelTimeout()

	switch cfg.ASR.Provider {
	case config.ASRProviderGoogle:
		loader.Register(capability.NameASR, func(ctx context.Context) (any, error) {
			return google.New(ctx, cfg.ASR.LanguageCode, cfg.ASR.CredentialsFile)
		})
	case config.ASRProviderWhisper:
		loader.Register(capability.NameASR, func(context.Context) (any, error) {
			return whisper.NewFromEnv(cfg.ASR.WhisperURL, cfg.ASR.WhisperModel, core.SourceLanguage)
		})
	default:
		loader.Register(capability.NameASR, capability.HTTPFactory(cfg.Models.ASRURL, timeout,
			func(client *capability.Client) *capability.ASRClient {
				return capability.NewASRClient(client, core.SourceLanguage)
			}))
	}

	if cfg.Models.CorrectionURL != "" {
		loader.Register(capability.NameCorrection, capability.HTTPFactory(cfg.Models.CorrectionURL, timeout,
			func(client *capability.Client) *capability.CorrectionClient {
				return capability.NewCorrectionClient(client, cfg.Models.Temperature)
			}))
	}

	loader.Register(capability.NameTranslation, capability.HTTPFactory(cfg.Models.TranslationURL, timeout,
		capability.NewTranslationClient))

	loader.Register(capability.NameSpeech, capability.HTTPFactory(cfg.Models.SpeechURL, timeout,
		func(client *capability.Client) *capability.SpeechClient {
			return capability.NewSpeechClient(client, cfg.Models.Temperature)
		}))
}

// serve runs the service until ctx is cancelled, then shuts it down.
func (a *app) serve(ctx context.Context) error {
	startupErr := a.lifecycle.Startup(ctx)
	if startupErr != nil {
		return fmt.Errorf("startup failed: %w", startupErr)
	}

	watchErr := a.artifacts.Watch(ctx)
	if watchErr != nil {
		a.log.Warn("Upload directory watcher disabled: %v", watchErr)
	}

	startErr := a.httpServer.Start()
	if startErr != nil {
		return fmt.Errorf("failed to start HTTP server: %w", startErr)
	}

	for name, loadErr := range a.loader.Warm(ctx) {
		a.log.Warn(logFmtCapabilityDown, name, loadErr)
	}

	runErr := a.worker.Run(ctx)

	return errors.Join(runErr, a.shutdown())
}

// drainer waits for in-flight offloaded work.
type drainer interface {
	Wait(ctx context.Context) error
}

// sweeper removes the working state.
type sweeper interface {
	Shutdown(ctx context.Context)
}

// drainAndSweep waits for offloaded tasks and then sweeps, both bounded by ctx.
func drainAndSweep(ctx context.Context, pool drainer, state sweeper, log *logger.Logger) {
	waitErr := pool.Wait(ctx)
	if waitErr != nil {
		log.Warn(logFmtPoolNotDrained, waitErr)
	}

	state.Shutdown(ctx)
}

// shutdown waits for offloaded tasks, sweeps the working state and closes
// every connection within one shutdown budget.
func (a *app) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	drainAndSweep(shutdownCtx, a.pool, a.lifecycle, a.log)

	httpErr := a.httpServer.Shutdown(shutdownCtx)

	closeErr := a.publisher.Close()
	if closeErr != nil {
		a.log.Warn(logFmtCloseFailed, "event publisher", closeErr)
	}

	drainErr := a.natsConnection.Drain()
	if drainErr != nil {
		a.log.Warn(logFmtCloseFailed, "NATS connection", drainErr)
		a.natsConnection.Close()
	}

	return httpErr
}
