// Package worker serves the pipeline operations over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/lifecycle"
	"github.com/book-expert/vietforeign-service/internal/pipeline"
	"github.com/nats-io/nats.go"
)

const defaultHandleTimeout = 5 * time.Minute

const (
	logFmtSubscribed     = "Listening for %s requests on %s"
	logFmtBadRequest     = "Rejected malformed %s request: %v"
	logFmtRequestFailed  = "%s request failed (status %d): %v"
	logFmtReplyFailed    = "Failed to send reply on %s: %v"
	logFmtDownloadFailed = "Failed to download upload object %s: %v"
)

// Service is the pipeline surface served by the worker.
type Service interface {
	Upload(ctx context.Context, content []byte, filename, contentType string) (pipeline.UploadResult, error)
	GetTranscript(ctx context.Context, id string) (pipeline.Transcript, error)
	UpdateTranscript(ctx context.Context, id, text string) (pipeline.Transcript, error)
	Translate(ctx context.Context, id, target string) (pipeline.Translation, error)
	VoiceConvert(ctx context.Context, id, target, text string) (pipeline.VoiceConversion, error)
	Health() pipeline.Health
}

// Cleaner runs the manual cleanup sweep.
type Cleaner interface {
	Cleanup(ctx context.Context) lifecycle.Report
}

// Options configure subjects and timeouts.
type Options struct {
	SubjectPrefix string
	QueueGroup    string
	Timeout       time.Duration
}

type handlerFunc func(ctx context.Context, data []byte) (events.EventHeader, any, error)

// NatsWorker answers pipeline requests received on NATS subjects.
type NatsWorker struct {
	natsConnection *nats.Conn
	service        Service
	cleaner        Cleaner
	store          core.ObjectStore
	opts           Options
	log            *logger.Logger
	inFlight       sync.WaitGroup
}

// NewNatsWorker creates a worker. store resolves upload object keys and may
// be nil.
func NewNatsWorker(
	natsConnection *nats.Conn,
	service Service,
	cleaner Cleaner,
	store core.ObjectStore,
	opts Options,
	log *logger.Logger,
) *NatsWorker {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		service:        service,
		cleaner:        cleaner,
		store:          store,
		opts:           opts,
		log:            log,
	}
}

// Run subscribes to every operation subject and serves requests until ctx
// is done. Subscriptions are drained and running requests awaited on exit.
func (w *NatsWorker) Run(ctx context.Context) error {
	handlers := map[string]handlerFunc{
		SubjectUpload:           w.handleUpload,
		SubjectGetTranscript:    w.handleGetTranscript,
		SubjectUpdateTranscript: w.handleUpdateTranscript,
		SubjectTranslate:        w.handleTranslate,
		SubjectVoiceConvert:     w.handleVoiceConvert,
		SubjectHealth:           w.handleHealth,
		SubjectCleanup:          w.handleCleanup,
	}

	subs := make([]*nats.Subscription, 0, len(handlers))

	for operation, handler := range handlers {
		subject := Subject(w.opts.SubjectPrefix, operation)

		sub, err := w.natsConnection.QueueSubscribe(subject, w.opts.QueueGroup, func(msg *nats.Msg) {
			w.inFlight.Add(1)

			go func() {
				defer w.inFlight.Done()

				w.handleMessage(operation, msg, handler)
			}()
		})
		if err != nil {
			unsubscribeAll(subs)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		subs = append(subs, sub)
		w.log.Info(logFmtSubscribed, operation, subject)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		unsubscribeAll(subs)

		return fmt.Errorf("failed to flush subscriptions: %w", flushErr)
	}

	<-ctx.Done()

	var drainErr error

	for _, sub := range subs {
		err := sub.Drain()
		if err != nil && drainErr == nil {
			drainErr = fmt.Errorf("failed to drain subscription %s: %w", sub.Subject, err)
		}
	}

	w.inFlight.Wait()

	return drainErr
}

func unsubscribeAll(subs []*nats.Subscription) {
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
}

func (w *NatsWorker) handleMessage(operation string, msg *nats.Msg, handler handlerFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()

	header, result, err := handler(ctx, msg.Data)
	reply := Reply{Header: header, OK: err == nil, StatusCode: core.StatusCode(err)}

	if err != nil {
		reply.Kind = core.Kind(err)
		reply.Error = core.RedactPaths(err.Error())
		reply.Detected = core.DetectedLanguage(err)
		w.log.Error(logFmtRequestFailed, operation, reply.StatusCode, err)
	} else {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			reply = Reply{Header: header, StatusCode: core.StatusCode(marshalErr), Kind: core.Kind(marshalErr), Error: marshalErr.Error()}
		} else {
			reply.Data = data
		}
	}

	w.respond(msg, reply)
}

func (w *NatsWorker) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, msg.Subject, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error(logFmtReplyFailed, msg.Subject, err)
	}
}

// decode parses a request body. Malformed input is a validation failure.
func decode[T any](w *NatsWorker, operation string, data []byte) (T, error) {
	var request T

	err := json.Unmarshal(data, &request)
	if err != nil {
		w.log.Warn(logFmtBadRequest, operation, err)

		return request, fmt.Errorf("%w: malformed %s request: %w", core.ErrValidationFailed, operation, err)
	}

	return request, nil
}

func (w *NatsWorker) handleUpload(ctx context.Context, data []byte) (events.EventHeader, any, error) {
	request, err := decode[UploadRequest](w, SubjectUpload, data)
	if err != nil {
		return events.EventHeader{}, nil, err
	}

	content := request.Content
	if len(content) == 0 && request.ObjectKey != "" && w.store != nil {
		content, err = w.store.Download(ctx, request.ObjectKey)
		if err != nil {
			w.log.Error(logFmtDownloadFailed, request.ObjectKey, err)

			return request.Header, nil, err
		}
	}

	result, err := w.service.Upload(ctx, content, request.Filename, request.ContentType)
	if err == nil {
		request.Header.WorkflowID = result.ID
	}

	return request.Header, result, err
}

func (w *NatsWorker) handleGetTranscript(ctx context.Context, data []byte) (events.EventHeader, any, error) {
	request, err := decode[TranscriptRequest](w, SubjectGetTranscript, data)
	if err != nil {
		return events.EventHeader{}, nil, err
	}

	result, err := w.service.GetTranscript(ctx, request.ID)

	return request.Header, result, err
}

func (w *NatsWorker) handleUpdateTranscript(ctx context.Context, data []byte) (events.EventHeader, any, error) {
	request, err := decode[TranscriptRequest](w, SubjectUpdateTranscript, data)
	if err != nil {
		return events.EventHeader{}, nil, err
	}

	result, err := w.service.UpdateTranscript(ctx, request.ID, request.Text)

	return request.Header, result, err
}

func (w *NatsWorker) handleTranslate(ctx context.Context, data []byte) (events.EventHeader, any, error) {
	request, err := decode[TranslateRequest](w, SubjectTranslate, data)
	if err != nil {
		return events.EventHeader{}, nil, err
	}

	result, err := w.service.Translate(ctx, request.ID, request.TargetLanguage)

	return request.Header, result, err
}

func (w *NatsWorker) handleVoiceConvert(ctx context.Context, data []byte) (events.EventHeader, any, error) {
	request, err := decode[VoiceConvertRequest](w, SubjectVoiceConvert, data)
	if err != nil {
		return events.EventHeader{}, nil, err
	}

	result, err := w.service.VoiceConvert(ctx, request.ID, request.TargetLanguage, request.Text)

	return request.Header, result, err
}

func (w *NatsWorker) handleHealth(context.Context, []byte) (events.EventHeader, any, error) {
	return NewHeader(""), w.service.Health(), nil
}

func (w *NatsWorker) handleCleanup(ctx context.Context, _ []byte) (events.EventHeader, any, error) {
	return NewHeader(""), w.cleaner.Cleanup(ctx), nil
}
