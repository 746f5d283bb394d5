package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/config"
	"github.com/book-expert/vietforeign-service/internal/worker"
	"github.com/nats-io/nats.go"
)

// Flag names.
const (
	flagCommand = "command"
	flagFile    = "file"
	flagObject  = "object"
	flagID      = "id"
	flagTarget  = "target"
	flagText    = "text"
	flagNATS    = "nats"
	flagPrefix  = "prefix"
	flagConfig  = "config"
	flagTimeout = "timeout"
	flagLogDir  = "log-dir"
)

// Flag descriptions.
const (
	flagCommandDesc = "Operation: upload, transcript, update, translate, convert, health, cleanup"
	flagFileDesc    = "Audio file to upload"
	flagObjectDesc  = "Object store key of an audio file to upload"
	flagIDDesc      = "Artifact id returned by upload"
	flagTargetDesc  = "Target language (en, ja, fr)"
	flagTextDesc    = "Transcript text for update, or the text to synthesize for convert"
	flagNATSDesc    = "NATS server URL"
	flagPrefixDesc  = "Subject prefix of the service"
	flagConfigDesc  = "Path to project.toml; overrides -nats and -prefix"
	flagTimeoutDesc = "Request timeout"
	flagLogDirDesc  = "Directory for the client log"
)

// Commands.
const (
	commandUpload     = "upload"
	commandTranscript = "transcript"
	commandUpdate     = "update"
	commandTranslate  = "translate"
	commandConvert    = "convert"
	commandHealth     = "health"
	commandCleanup    = "cleanup"
)

// Error messages.
const (
	errFmtFailedToLoadConfig = "failed to load configuration: %w"
	errFmtFailedToInitLogger = "failed to initialize logger: %w"
	errFmtFailedToConnect    = "failed to connect to NATS at %s: %w"
	errFmtFailedToReadFile   = "failed to read %s: %w"
	errFmtRequestFailed      = "%s failed: %w"
)

// Log messages.
const (
	logFmtConnected = "Connected to %s (prefix %s)"
	logFmtSending   = "Sending %s request"
	logFmtSucceeded = "%s succeeded in %s"
)

const (
	logFileName       = "vietforeign-client.log"
	defaultNATSURL    = "nats://127.0.0.1:4222"
	defaultPrefix     = "vietforeign"
	defaultTimeout    = 5 * time.Minute
	defaultLogDir     = "logs"
	outputIndentation = "  "
)

var (
	// ErrUnknownCommand indicates an unsupported -command value.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument indicates a flag the command requires.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrConflictingArguments indicates flags that cannot be combined.
	ErrConflictingArguments = errors.New("conflicting arguments")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	command string
	file    string
	object  string
	id      string
	target  string
	text    string
	natsURL string
	prefix  string
	config  string
	logDir  string
	timeout time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateArguments(flags)
	if err != nil {
		return err
	}

	flags, err = applyConfig(flags)
	if err != nil {
		return err
	}

	clientLogger, err := logger.New(flags.logDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFmtFailedToInitLogger, err)
	}
	defer clientLogger.Close()

	natsConnection, err := nats.Connect(flags.natsURL)
	if err != nil {
		return fmt.Errorf(errFmtFailedToConnect, flags.natsURL, err)
	}
	defer natsConnection.Close()

	clientLogger.Info(logFmtConnected, flags.natsURL, flags.prefix)

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	start := time.Now()
	client := worker.NewClient(natsConnection, flags.prefix)

	clientLogger.Info(logFmtSending, flags.command)

	result, err := dispatch(ctx, client, flags)
	if err != nil {
		clientLogger.Error(errFmtRequestFailed, flags.command, err)

		return fmt.Errorf(errFmtRequestFailed, flags.command, err)
	}

	clientLogger.Info(logFmtSucceeded, flags.command, time.Since(start).Round(time.Millisecond))

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", outputIndentation)

	return encoder.Encode(result)
}

// parseFlags parses args into appFlags.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("vietforeign-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.command, flagCommand, "", flagCommandDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.StringVar(&flags.object, flagObject, "", flagObjectDesc)
	flagSet.StringVar(&flags.id, flagID, "", flagIDDesc)
	flagSet.StringVar(&flags.target, flagTarget, "", flagTargetDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.natsURL, flagNATS, defaultNATSURL, flagNATSDesc)
	flagSet.StringVar(&flags.prefix, flagPrefix, defaultPrefix, flagPrefixDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.StringVar(&flags.logDir, flagLogDir, defaultLogDir, flagLogDirDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateArguments checks that the command has the flags it needs.
func validateArguments(flags appFlags) error {
	switch flags.command {
	case commandUpload:
		if flags.file == "" && flags.object == "" {
			return fmt.Errorf("%w: --%s or --%s", ErrMissingArgument, flagFile, flagObject)
		}

		if flags.file != "" && flags.object != "" {
			return fmt.Errorf("%w: --%s and --%s", ErrConflictingArguments, flagFile, flagObject)
		}
	case commandTranscript:
		return requireFlags(flags, flagID)
	case commandUpdate:
		return requireFlags(flags, flagID, flagText)
	case commandTranslate, commandConvert:
		return requireFlags(flags, flagID, flagTarget)
	case commandHealth, commandCleanup:
	case "":
		return fmt.Errorf("%w: --%s", ErrMissingArgument, flagCommand)
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownCommand, flags.command)
	}

	return nil
}

func requireFlags(flags appFlags, names ...string) error {
	values := map[string]string{flagID: flags.id, flagText: flags.text, flagTarget: flags.target}

	for _, name := range names {
		if values[name] == "" {
			return fmt.Errorf("%w: --%s", ErrMissingArgument, name)
		}
	}

	return nil
}

// applyConfig replaces the connection flags with the values of a config file.
func applyConfig(flags appFlags) (appFlags, error) {
	if flags.config == "" {
		return flags, nil
	}

	cfg, err := config.LoadFile(flags.config)
	if err != nil {
		return flags, fmt.Errorf(errFmtFailedToLoadConfig, err)
	}

	flags.natsURL = cfg.NATS.URL
	flags.prefix = cfg.NATS.SubjectPrefix

	return flags, nil
}

func dispatch(ctx context.Context, client *worker.Client, flags appFlags) (any, error) {
	switch flags.command {
	case commandUpload:
		request, err := uploadRequest(flags)
		if err != nil {
			return nil, err
		}

		return client.Upload(ctx, request)
	case commandTranscript:
		return client.GetTranscript(ctx, flags.id)
	case commandUpdate:
		return client.UpdateTranscript(ctx, flags.id, flags.text)
	case commandTranslate:
		return client.Translate(ctx, flags.id, flags.target)
	case commandConvert:
		return client.VoiceConvert(ctx, flags.id, flags.target, flags.text)
	case commandHealth:
		return client.Health(ctx)
	case commandCleanup:
		return client.Cleanup(ctx)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownCommand, flags.command)
	}
}

func uploadRequest(flags appFlags) (worker.UploadRequest, error) {
	request := worker.UploadRequest{Header: worker.NewHeader("")}

	if flags.object != "" {
		request.Filename = filepath.Base(flags.object)
		request.ObjectKey = flags.object
		request.ContentType = mime.TypeByExtension(filepath.Ext(flags.object))

		return request, nil
	}

	content, err := os.ReadFile(flags.file)
	if err != nil {
		return request, fmt.Errorf(errFmtFailedToReadFile, flags.file, err)
	}

	request.Filename = filepath.Base(flags.file)
	request.ContentType = mime.TypeByExtension(filepath.Ext(flags.file))
	request.Content = content

	return request, nil
}
