package stage

import (
	"strings"

	"github.com/book-expert/vietforeign-service/internal/core"
)

// BaselineLanguage is used when a language cannot be normalized.
const BaselineLanguage = core.LangEnglish

// languageAliases maps accepted spellings to synthesis language codes.
var languageAliases = map[string]string{
	"en":       core.LangEnglish,
	"english":  core.LangEnglish,
	"ja":       core.LangJapanese,
	"japanese": core.LangJapanese,
	"jp":       core.LangJapanese,
	"fr":       core.LangFrench,
	"french":   core.LangFrench,
	"français": core.LangFrench,
}

// aliasOrder fixes the partial-match precedence.
var aliasOrder = []string{"en", "english", "ja", "japanese", "jp", "fr", "french", "français"}

// NormalizeLanguage maps language to a synthesis language code. It tries an
// exact alias match, then a prefix match in either direction (so "fr-CA" and
// "fre" both resolve), then a contains match on full language names, and
// otherwise falls back to BaselineLanguage. The second result reports whether
// the fallback was taken.
func NormalizeLanguage(language string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(language))
	if lowered == "" {
		return BaselineLanguage, true
	}

	if code, ok := languageAliases[lowered]; ok {
		return code, false
	}

	for _, alias := range aliasOrder {
		if strings.HasPrefix(lowered, alias) || strings.HasPrefix(alias, lowered) {
			return languageAliases[alias], false
		}
	}

	for _, alias := range aliasOrder {
		if len(alias) > 2 && strings.Contains(lowered, alias) {
			return languageAliases[alias], false
		}
	}

	return BaselineLanguage, true
}
