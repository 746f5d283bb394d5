// Package langguard decides whether a piece of text is in the source language
// before it is accepted into a session.
package langguard

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/core"
)

// Sentinel codes returned instead of a detected language.
const (
	CodeTooShort        = "text_too_short"
	CodeDetectionFailed = "detection_failed"
)

// MinTextLength is the smallest trimmed rune count the detector is trusted with.
const MinTextLength = 10

// acceptedCodes are the detector outputs that count as Vietnamese.
var acceptedCodes = map[string]struct{}{
	"VI":    {},
	"VIE":   {},
	"VI-VN": {},
}

const (
	logFmtDetected        = "Language detection: %s, is_vietnamese: %t"
	logFmtDetectionFailed = "Language detection failed: %v"
)

// Guard classifies text with a LanguageDetector. It never returns an error:
// detector failures are reported as CodeDetectionFailed.
type Guard struct {
	detector core.LanguageDetector
	log      *logger.Logger
}

// New creates a Guard backed by detector.
func New(detector core.LanguageDetector, log *logger.Logger) *Guard {
	return &Guard{detector: detector, log: log}
}

// Classify reports whether text is Vietnamese together with the detected code,
// or one of the sentinel codes.
func (g *Guard) Classify(_ context.Context, text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < MinTextLength {
		return false, CodeTooShort
	}

	code, err := g.detect(trimmed)
	if err != nil {
		g.log.Error(logFmtDetectionFailed, err)

		return false, CodeDetectionFailed
	}

	_, accepted := acceptedCodes[strings.ToUpper(code)]
	g.log.Info(logFmtDetected, code, accepted)

	return accepted, code
}

func (g *Guard) detect(text string) (code string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("detector panicked: %v", recovered)
		}
	}()

	return g.detector.Detect(text)
}
