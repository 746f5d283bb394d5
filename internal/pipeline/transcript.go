package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/offload"
	"github.com/book-expert/vietforeign-service/internal/stage"
)

// Transcript is the transcript view of a session.
type Transcript struct {
	ID        string             `json:"id"`
	Raw       string             `json:"raw_transcript"`
	Corrected string             `json:"corrected_transcript"`
	Status    core.SessionStatus `json:"status"`
	Degraded  bool               `json:"degraded,omitempty"`
	Cached    bool               `json:"cached,omitempty"`
}

func transcriptOf(session core.Session) Transcript {
	return Transcript{
		ID:        session.ID,
		Raw:       session.RawTranscript,
		Corrected: session.CorrectedTranscript,
		Status:    session.Status,
		Degraded:  session.Degraded,
	}
}

// GetTranscript returns the transcript of id, running transcription on first
// access. A cached corrected transcript is re-checked by the language guard.
func (s *Service) GetTranscript(ctx context.Context, id string) (transcript Transcript, err error) {
	start := time.Now()

	defer func() { s.observe(ctx, OpGetTranscript, id, start, transcript.Degraded, err) }()

	if cached, ok := s.sessions.Get(id); ok {
		s.log.Info(logFmtServingCached, id)

		guardErr := s.checkSourceLanguage(ctx, OpGetTranscript, id, cached.CorrectedTranscript)
		if guardErr != nil {
			return Transcript{}, guardErr
		}

		transcript = transcriptOf(cached)
		transcript.Cached = true

		return transcript, nil
	}

	audioPath, pathErr := s.artifacts.Path(id)
	if pathErr != nil {
		return Transcript{}, core.NewError(OpGetTranscript, id, pathErr)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, runErr := offload.Run(ctx, s.pool, stage.NameTranscription,
		func(taskCtx context.Context) (stage.TranscriptionResult, error) {
			transcribed := s.transcriber.Transcribe(taskCtx, audioPath)

			return transcribed, transcribed.Err
		})
	if runErr != nil {
		return Transcript{}, core.NewError(OpGetTranscript, id, runErr).WithStage(stage.NameTranscription)
	}

	updateErr := s.sessions.Upsert(id, func(session *core.Session) error {
		session.RawTranscript = result.Raw
		session.CorrectedTranscript = result.Corrected
		session.Status = core.StatusCompleted
		session.Degraded = result.Degraded

		return nil
	})
	if updateErr != nil {
		return Transcript{}, core.NewError(OpGetTranscript, id, updateErr)
	}

	s.log.Info(logFmtTranscriptDone, id, result.Degraded)

	event := events.New(events.TypeTranscribed, id)
	event.Status = string(core.StatusCompleted)
	event.Degraded = result.Degraded
	event.DurationMS = time.Since(start).Milliseconds()
	s.publish(ctx, event)

	return Transcript{
		ID:        id,
		Raw:       result.Raw,
		Corrected: result.Corrected,
		Status:    core.StatusCompleted,
		Degraded:  result.Degraded,
	}, nil
}

// UpdateTranscript replaces the corrected transcript of id with text after
// the language guard accepts it. A rejected edit leaves the session untouched.
func (s *Service) UpdateTranscript(ctx context.Context, id, text string) (transcript Transcript, err error) {
	start := time.Now()

	defer func() { s.observe(ctx, OpUpdateTranscript, id, start, false, err) }()

	_, getErr := s.artifacts.Get(id)
	if getErr != nil {
		return Transcript{}, core.NewError(OpUpdateTranscript, id, getErr)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Transcript{}, core.NewError(OpUpdateTranscript, id,
			fmt.Errorf("%w: transcript cannot be empty", core.ErrValidationFailed))
	}

	guardErr := s.checkSourceLanguage(ctx, OpUpdateTranscript, id, trimmed)
	if guardErr != nil {
		return Transcript{}, guardErr
	}

	var updated core.Session

	upsertErr := s.sessions.Upsert(id, func(session *core.Session) error {
		session.CorrectedTranscript = trimmed
		session.Status = core.StatusUpdated
		updated = session.Clone()

		return nil
	})
	if upsertErr != nil {
		return Transcript{}, core.NewError(OpUpdateTranscript, id, upsertErr)
	}

	updated.ID = id

	event := events.New(events.TypeTranscriptUpdated, id)
	event.Status = string(core.StatusUpdated)
	s.publish(ctx, event)

	return transcriptOf(updated), nil
}

// checkSourceLanguage rejects non-empty text the guard does not accept as
// Vietnamese.
func (s *Service) checkSourceLanguage(ctx context.Context, op, id, text string) error {
	if text == "" {
		return nil
	}

	accepted, code := s.guard.Classify(ctx, text)
	if accepted {
		return nil
	}

	return core.NewError(op, id,
		fmt.Errorf("%w: transcript is not in Vietnamese (detected %s)", core.ErrValidationFailed, strings.ToUpper(code))).
		WithStage(stageLanguageGuard).
		WithDetected(strings.ToUpper(code))
}
