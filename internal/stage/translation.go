package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/capability"
	"github.com/book-expert/vietforeign-service/internal/core"
)

// modelLanguageCodes maps pipeline language codes to translation model codes.
var modelLanguageCodes = map[string]string{
	core.SourceLanguage: "vie_Latn",
	core.LangEnglish:    "eng_Latn",
	core.LangJapanese:   "jpn_Jpan",
	core.LangFrench:     "fra_Latn",
}

const (
	errFmtUnsupportedTarget = "%w: '%s' (supported: %s)"
	logFmtTranslating       = "Translating %d characters from %s to %s"
)

// ModelLanguageCode returns the translation model code of a pipeline language.
func ModelLanguageCode(language string) (string, bool) {
	code, ok := modelLanguageCodes[language]

	return code, ok
}

// ValidateTarget checks that target is a supported target language.
func ValidateTarget(target string) error {
	if !core.IsSupportedTarget(target) {
		return fmt.Errorf(errFmtUnsupportedTarget,
			core.ErrUnsupportedLanguage, target, strings.Join(core.SupportedTargets, ", "))
	}

	return nil
}

// Translator translates Vietnamese text into one of the supported targets.
// The source language is not re-validated here.
type Translator struct {
	translator capability.Provider[core.TextTranslator]
	log        *logger.Logger
}

// NewTranslator creates the translation stage.
func NewTranslator(translator capability.Provider[core.TextTranslator], log *logger.Logger) *Translator {
	return &Translator{translator: translator, log: log}
}

// Translate calls the translation capability once. Failures wrap
// core.ErrTranslationFailed with the cause attached.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	validateErr := ValidateTarget(target)
	if validateErr != nil {
		return "", validateErr
	}

	translator, unavailableErr := t.translator(ctx)
	if unavailableErr != nil {
		return "", unavailableErr
	}

	targetCode := modelLanguageCodes[target]
	sourceCode := modelLanguageCodes[core.SourceLanguage]

	t.log.Info(logFmtTranslating, len([]rune(text)), sourceCode, targetCode)

	translated, translateErr := translator.Translate(ctx, text, sourceCode, targetCode)
	if translateErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTranslationFailed, translateErr)
	}

	translated = strings.TrimSpace(translated)
	if translated == "" && strings.TrimSpace(text) != "" {
		return "", fmt.Errorf("%w: empty translation for %s", core.ErrTranslationFailed, target)
	}

	return translated, nil
}
