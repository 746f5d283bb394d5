package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/capability"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/fsutil"
	"github.com/google/uuid"
)

const (
	generatedFilePermissions = 0o600

	logFmtLanguageFallback  = "Unrecognized synthesis language '%s', using '%s'"
	logFmtConditioning      = "Extracting speaker conditioning from reference audio"
	logFmtGenerated         = "Generated %s speech: %s"
	logFmtRemoveScratchFail = "Failed to remove intermediate waveform %s: %v"
	logFmtSynthesized       = "Voice conversion complete: %s (%s)"
)

// Synthesizer generates target-language speech in the voice of a reference
// recording.
type Synthesizer struct {
	generator  capability.Provider[core.SpeechGenerator]
	converter  capability.Provider[core.VoiceConverter]
	prep       *TextPreparer
	scratchDir string
	log        *logger.Logger
}

// NewSynthesizer creates the synthesis stage. Intermediate waveforms are
// written to scratchDir.
func NewSynthesizer(
	generator capability.Provider[core.SpeechGenerator],
	converter capability.Provider[core.VoiceConverter],
	scratchDir string,
	log *logger.Logger,
) *Synthesizer {
	return &Synthesizer{
		generator:  generator,
		converter:  converter,
		prep:       NewTextPreparer(),
		scratchDir: scratchDir,
		log:        log,
	}
}

// Synthesize speaks text in target using the timbre of referencePath and
// writes the result to outputPath, which it returns. The reference file is
// only read.
func (s *Synthesizer) Synthesize(ctx context.Context, text, referencePath, target, outputPath string) (string, error) {
	referenceErr := checkReference(referencePath)
	if referenceErr != nil {
		return "", referenceErr
	}

	generator, unavailableErr := s.generator(ctx)
	if unavailableErr != nil {
		return "", unavailableErr
	}

	converter, unavailableErr := s.converter(ctx)
	if unavailableErr != nil {
		return "", unavailableErr
	}

	s.log.Info(logFmtConditioning)

	conditioning, conditionErr := generator.ExtractConditioning(ctx, referencePath)
	if conditionErr != nil {
		return "", fmt.Errorf("%w: speaker conditioning: %w", core.ErrInferenceFailed, conditionErr)
	}

	generatedPath, generateErr := s.generate(ctx, generator, conditioning, text, target)
	if generatedPath != "" {
		defer s.removeScratch(generatedPath)
	}

	if generateErr != nil {
		return "", generateErr
	}

	dirErr := fsutil.EnsureDir(filepath.Dir(outputPath))
	if dirErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrStorage, dirErr)
	}

	convertErr := converter.ConvertVoice(ctx, generatedPath, referencePath, outputPath)
	if convertErr != nil {
		return "", fmt.Errorf("%w: voice conversion: %w", core.ErrInferenceFailed, convertErr)
	}

	verifyErr := verifyOutput(outputPath, referencePath)
	if verifyErr != nil {
		return "", verifyErr
	}

	s.log.Info(logFmtSynthesized, filepath.Base(outputPath), target)

	return outputPath, nil
}

func (s *Synthesizer) generate(
	ctx context.Context,
	generator core.SpeechGenerator,
	conditioning core.Conditioning,
	text, target string,
) (string, error) {
	language, fellBack := NormalizeLanguage(target)
	if fellBack {
		s.log.Warn(logFmtLanguageFallback, target, language)
	}

	waveform, generateErr := generator.GenerateSpeech(ctx, s.prep.Prepare(text), language, conditioning)
	if generateErr != nil {
		return "", fmt.Errorf("%w: speech generation: %w", core.ErrInferenceFailed, generateErr)
	}

	dirErr := fsutil.EnsureDir(s.scratchDir)
	if dirErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrStorage, dirErr)
	}

	generatedPath := filepath.Join(s.scratchDir, "generated_"+uuid.NewString()+".wav")

	writeErr := os.WriteFile(generatedPath, waveform, generatedFilePermissions)
	if writeErr != nil {
		return generatedPath, fmt.Errorf("%w: failed to write intermediate waveform: %w", core.ErrStorage, writeErr)
	}

	s.log.Info(logFmtGenerated, language, fsutil.FormatFileSize(int64(len(waveform))))

	return generatedPath, nil
}

func (s *Synthesizer) removeScratch(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn(logFmtRemoveScratchFail, path, removeErr)
	}
}

func checkReference(referencePath string) error {
	if referencePath == "" {
		return fmt.Errorf("%w: no reference recording", core.ErrReferenceAudioInvalid)
	}

	checkErr := fsutil.CheckNonEmpty(referencePath)
	if checkErr != nil {
		return fmt.Errorf("%w: reference recording is missing or empty", core.ErrReferenceAudioInvalid)
	}

	file, openErr := os.Open(referencePath)
	if openErr != nil {
		return fmt.Errorf("%w: reference recording is not readable", core.ErrReferenceAudioInvalid)
	}

	return file.Close()
}

func verifyOutput(outputPath, referencePath string) error {
	checkErr := fsutil.CheckNonEmpty(outputPath)
	if checkErr != nil {
		return fmt.Errorf("%w: no output written", core.ErrSynthesisIncomplete)
	}

	same, compareErr := fsutil.SameContent(outputPath, referencePath)
	if compareErr != nil {
		return fmt.Errorf("%w: %w", core.ErrSynthesisIncomplete, compareErr)
	}

	if same {
		return fmt.Errorf("%w: output is identical to the reference", core.ErrSynthesisIncomplete)
	}

	return nil
}
