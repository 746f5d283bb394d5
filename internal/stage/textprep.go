package stage

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const whitespaceRegexPattern = `\s+`

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// TextPreparer normalizes text before it is handed to speech generation.
type TextPreparer struct {
	whitespacePattern *regexp.Regexp
	punctuation       *strings.Replacer
}

// NewTextPreparer creates a TextPreparer with its patterns compiled upfront.
func NewTextPreparer() *TextPreparer {
	return &TextPreparer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctuation: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Prepare collapses whitespace, normalizes quotes and dashes, drops repeated
// punctuation and makes sure the text ends like a sentence. Text in any of the
// target scripts passes through otherwise unchanged.
func (p *TextPreparer) Prepare(text string) string {
	cleaned := strings.TrimSpace(p.whitespacePattern.ReplaceAllString(text, " "))
	if cleaned == "" {
		return ""
	}

	cleaned = p.punctuation.Replace(cleaned)
	cleaned = removeRepeatedPunctuation(cleaned)

	return ensureSentenceEnding(cleaned)
}

// removeRepeatedPunctuation keeps the first mark of every run of identical
// punctuation. The three dots of an ellipsis are kept.
func removeRepeatedPunctuation(text string) string {
	var (
		result   strings.Builder
		previous rune
		runLen   int
	)

	for _, char := range text {
		if unicode.IsPunct(char) && char == previous {
			runLen++
			if char != '.' || runLen > 2 {
				continue
			}
		} else {
			runLen = 0
		}

		result.WriteRune(char)
		previous = char
	}

	return result.String()
}

// ensureSentenceEnding appends a period unless the text already ends with
// sentence-final punctuation, Japanese marks included.
func ensureSentenceEnding(text string) string {
	lastChar, _ := utf8.DecodeLastRuneInString(text)

	switch lastChar {
	case '.', '!', '?', '。', '！', '？':
		return text
	default:
		return text + "."
	}
}
