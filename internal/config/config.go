// Package config provides the configuration structure for the vietforeign-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// ASR providers.
const (
	ASRProviderHTTP    = "http"
	ASRProviderGoogle  = "google"
	ASRProviderWhisper = "whisper"
)

// Event backends.
const (
	EventsBackendNATS  = "nats"
	EventsBackendKafka = "kafka"
	EventsBackendLog   = "log"
)

var (
	// ErrWorkersRange indicates a non-positive worker count.
	ErrWorkersRange = errors.New("pipeline workers must be positive")
	// ErrUnknownASRProvider indicates an unsupported asr.provider value.
	ErrUnknownASRProvider = errors.New("unknown asr provider")
	// ErrUnknownEventsBackend indicates an unsupported events.backend value.
	ErrUnknownEventsBackend = errors.New("unknown events backend")
	// ErrModelURLEmpty indicates a missing model server URL.
	ErrModelURLEmpty = errors.New("model server url cannot be empty")
	// ErrKafkaBrokersEmpty indicates the kafka backend without brokers.
	ErrKafkaBrokersEmpty = errors.New("kafka backend requires at least one broker")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SubjectPrefix          string `toml:"subject_prefix"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir   string   `toml:"base_logs_dir"`
	UploadsDir    string   `toml:"uploads_dir"`
	StaticDir     string   `toml:"static_dir"`
	ConvertedDir  string   `toml:"converted_dir"`
	ConversionDir string   `toml:"conversion_dir"`
	ScratchDirs   []string `toml:"scratch_dirs"`
}

// PipelineConfig tunes request handling.
type PipelineConfig struct {
	Workers               int    `toml:"workers"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	StaticURLPrefix       string `toml:"static_url_prefix"`
	FFmpegPath            string `toml:"ffmpeg_path"`
}

// ASRConfig selects and configures the speech recognition provider.
type ASRConfig struct {
	Provider        string `toml:"provider"`
	LanguageCode    string `toml:"language_code"`
	WhisperModel    string `toml:"whisper_model"`
	WhisperURL      string `toml:"whisper_url"`
	CredentialsFile string `toml:"credentials_file"`
}

// ModelsConfig holds the addresses of the model servers.
type ModelsConfig struct {
	ASRURL         string  `toml:"asr_url"`
	CorrectionURL  string  `toml:"correction_url"`
	TranslationURL string  `toml:"translation_url"`
	SpeechURL      string  `toml:"speech_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
}

// EventsConfig selects where pipeline events are published.
type EventsConfig struct {
	Backend       string   `toml:"backend"`
	SubjectPrefix string   `toml:"subject_prefix"`
	KafkaBrokers  []string `toml:"kafka_brokers"`
	KafkaTopic    string   `toml:"kafka_topic"`
}

// MetricsConfig controls the HTTP listener. It always serves /healthz and the
// static tree; Enabled adds the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ShutdownConfig bounds the cleanup sweep.
type ShutdownConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
	Pipeline PipelineConfig `toml:"pipeline"`
	ASR      ASRConfig      `toml:"asr"`
	Models   ModelsConfig   `toml:"models"`
	Events   EventsConfig   `toml:"events"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Shutdown ShutdownConfig `toml:"shutdown"`
}

// Load loads the configuration for the vietforeign-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads the configuration from a local TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, "nats://127.0.0.1:4222")
	setString(&c.NATS.SubjectPrefix, "vietforeign")
	setString(&c.NATS.QueueGroup, "vietforeign-workers")

	setString(&c.Paths.BaseLogsDir, "logs")
	setString(&c.Paths.UploadsDir, "static/uploads")
	setString(&c.Paths.StaticDir, "static")
	setString(&c.Paths.ConvertedDir, "static/converted")
	setString(&c.Paths.ConversionDir, "temp")

	if c.Paths.ScratchDirs == nil {
		c.Paths.ScratchDirs = []string{"temp", "tmp", "temporary"}
	}

	setInt(&c.Pipeline.Workers, 2)
	setInt(&c.Pipeline.RequestTimeoutSeconds, 300)
	setString(&c.Pipeline.StaticURLPrefix, "/static")
	setString(&c.Pipeline.FFmpegPath, "ffmpeg")

	setString(&c.ASR.Provider, ASRProviderHTTP)
	setString(&c.ASR.LanguageCode, "vi-VN")
	setString(&c.ASR.WhisperModel, "whisper-1")

	setInt(&c.Models.TimeoutSeconds, 120)

	if c.Models.Temperature == 0 {
		c.Models.Temperature = 0.3
	}

	setString(&c.Events.Backend, EventsBackendLog)
	setString(&c.Events.SubjectPrefix, "vietforeign.events")
	setString(&c.Events.KafkaTopic, "vietforeign-events")

	setString(&c.Metrics.Addr, ":9090")

	setInt(&c.Shutdown.TimeoutSeconds, 10)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrWorkersRange, c.Pipeline.Workers)
	}

	switch c.ASR.Provider {
	case ASRProviderHTTP:
		if c.Models.ASRURL == "" {
			return fmt.Errorf("%w: models.asr_url", ErrModelURLEmpty)
		}
	case ASRProviderGoogle, ASRProviderWhisper:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownASRProvider, c.ASR.Provider)
	}

	if c.Models.TranslationURL == "" {
		return fmt.Errorf("%w: models.translation_url", ErrModelURLEmpty)
	}

	if c.Models.SpeechURL == "" {
		return fmt.Errorf("%w: models.speech_url", ErrModelURLEmpty)
	}

	switch c.Events.Backend {
	case EventsBackendNATS, EventsBackendLog:
	case EventsBackendKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return ErrKafkaBrokersEmpty
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownEventsBackend, c.Events.Backend)
	}

	return nil
}

// ModelTimeout returns the per-call timeout for model servers.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Models.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the timeout for one pipeline request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pipeline.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the total budget of the cleanup sweep.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSeconds) * time.Second
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
