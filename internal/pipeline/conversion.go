package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
	"github.com/book-expert/vietforeign-service/internal/fsutil"
	"github.com/book-expert/vietforeign-service/internal/offload"
	"github.com/book-expert/vietforeign-service/internal/stage"
	"github.com/google/uuid"
)

const outputSuffixLength = 8

// Translation is the result of a translate operation.
type Translation struct {
	ID     string `json:"id"`
	Target string `json:"target_language"`
	Text   string `json:"translated_text"`
}

// VoiceConversion is the result of a voice conversion.
type VoiceConversion struct {
	ID        string `json:"id"`
	Target    string `json:"target_language"`
	Text      string `json:"synthesized_text"`
	AudioURL  string `json:"converted_audio_url"`
	AudioPath string `json:"-"`
	ObjectKey string `json:"object_key,omitempty"`
}

// Translate translates the transcript of id into target and stores the
// result in the session's translated slot. The slot is shared by all target
// languages, so the latest translation wins.
func (s *Service) Translate(ctx context.Context, id, target string) (translation Translation, err error) {
	start := time.Now()

	defer func() { s.observe(ctx, OpTranslate, id, start, false, err) }()

	session, ok := s.sessions.Get(id)
	if !ok {
		return Translation{}, core.NewError(OpTranslate, id, fmt.Errorf("%w: transcript", core.ErrNotFound))
	}

	target = strings.ToLower(strings.TrimSpace(target))

	validateErr := stage.ValidateTarget(target)
	if validateErr != nil {
		return Translation{}, core.NewError(OpTranslate, id, validateErr)
	}

	text := session.SourceText()
	if text == "" {
		return Translation{}, core.NewError(OpTranslate, id,
			fmt.Errorf("%w: no transcript to translate", core.ErrValidationFailed))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	translated, runErr := offload.Run(ctx, s.pool, stage.NameTranslation,
		func(taskCtx context.Context) (string, error) {
			return s.translator.Translate(taskCtx, text, target)
		})
	if runErr != nil {
		return Translation{}, core.NewError(OpTranslate, id, runErr).WithStage(stage.NameTranslation)
	}

	updateErr := s.sessions.Update(id, func(session *core.Session) error {
		session.TranslatedTranscript = translated
		session.TranslatedLanguage = target

		return nil
	})
	if updateErr != nil {
		return Translation{}, core.NewError(OpTranslate, id, updateErr)
	}

	event := events.New(events.TypeTranslated, id)
	event.Language = target
	event.DurationMS = time.Since(start).Milliseconds()
	s.publish(ctx, event)

	return Translation{ID: id, Target: target, Text: translated}, nil
}

// VoiceConvert speaks text, or the stored translation, or the source
// transcript, in target using the uploaded recording as the voice reference.
func (s *Service) VoiceConvert(ctx context.Context, id, target, text string) (conversion VoiceConversion, err error) {
	start := time.Now()

	defer func() { s.observe(ctx, OpVoiceConvert, id, start, false, err) }()

	key := strings.ToLower(strings.TrimSpace(target))
	if key == "" {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id,
			fmt.Errorf("%w: target language is required", core.ErrValidationFailed))
	}

	session, ok := s.sessions.Get(id)
	if !ok {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id, fmt.Errorf("%w: transcript", core.ErrNotFound))
	}

	referencePath, pathErr := s.artifacts.Path(id)
	if pathErr != nil {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id, pathErr)
	}

	speech := chooseText(text, session)
	if speech == "" {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id,
			fmt.Errorf("%w: no text available for synthesis, provide text or translate first", core.ErrValidationFailed))
	}

	filename := outputFilename(key)
	outputPath := filepath.Join(s.opts.ConvertedDir, filename)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	synthesized, runErr := offload.Run(ctx, s.pool, stage.NameSynthesis,
		func(taskCtx context.Context) (string, error) {
			return s.synthesizer.Synthesize(taskCtx, speech, referencePath, key, outputPath)
		})
	if runErr != nil {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id, runErr).WithStage(stage.NameSynthesis)
	}

	conversion = VoiceConversion{
		ID:        id,
		Target:    key,
		Text:      speech,
		AudioURL:  s.audioURL(synthesized),
		AudioPath: synthesized,
		ObjectKey: s.mirrorOutput(ctx, synthesized),
	}

	updateErr := s.sessions.Update(id, func(session *core.Session) error {
		if session.VoiceConversions == nil {
			session.VoiceConversions = make(map[string]core.Conversion)
		}

		session.VoiceConversions[key] = core.Conversion{
			AudioPath: conversion.AudioPath,
			Text:      conversion.Text,
			AudioURL:  conversion.AudioURL,
		}

		return nil
	})
	if updateErr != nil {
		return VoiceConversion{}, core.NewError(OpVoiceConvert, id, updateErr)
	}

	event := events.New(events.TypeVoiceConverted, id)
	event.Language = key
	event.AudioURL = conversion.AudioURL
	event.DurationMS = time.Since(start).Milliseconds()
	s.publish(ctx, event)

	return conversion, nil
}

// chooseText picks the explicit text, then the stored translation, then the
// source transcript.
func chooseText(explicit string, session core.Session) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}

	if session.TranslatedTranscript != "" {
		return session.TranslatedTranscript
	}

	return session.SourceText()
}

func outputFilename(target string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:outputSuffixLength]

	return fmt.Sprintf("converted_%s_%s.wav", suffix, fsutil.SanitizeFilename(target))
}

// audioURL addresses outputPath below the static URL prefix, relative to the
// static directory.
func (s *Service) audioURL(outputPath string) string {
	relative, relErr := filepath.Rel(s.opts.StaticDir, outputPath)
	if relErr != nil || s.opts.StaticDir == "" || strings.HasPrefix(relative, "..") {
		relative = path.Join("converted", filepath.Base(outputPath))
	}

	return path.Join(s.opts.StaticURLPrefix, filepath.ToSlash(relative))
}

func (s *Service) mirrorOutput(ctx context.Context, outputPath string) string {
	if s.mirror == nil {
		return ""
	}

	key, mirrorErr := s.mirror.UploadFile(context.WithoutCancel(ctx), outputPath)
	if mirrorErr != nil {
		s.log.Warn(logFmtMirrorFailed, filepath.Base(outputPath), mirrorErr)

		return ""
	}

	s.log.Info(logFmtMirrored, filepath.Base(outputPath), key)

	return key
}
