package langguard

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ErrUndetermined indicates the detector could not name any language.
var ErrUndetermined = errors.New("language could not be determined")

// Detector identifies languages with whatlanggo and returns upper-case
// ISO 639-1 codes such as "VI" or "EN".
type Detector struct{}

// Detect returns the language code of text.
func (Detector) Detect(text string) (string, error) {
	info := whatlanggo.Detect(text)
	if info.Lang == whatlanggo.Lang(-1) {
		return "", ErrUndetermined
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetermined
	}

	return strings.ToUpper(code), nil
}
