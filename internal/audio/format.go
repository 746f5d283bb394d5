// Package audio provides upload format validation, WAV decoding and encoding,
// and the waveform preprocessing applied before speech recognition.
package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/vietforeign-service/internal/core"
)

// Format represents supported audio formats.
type Format string

// Supported upload formats.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	FormatAAC  Format = "aac"
	FormatWEBM Format = "webm"
)

// SupportedFormats lists the accepted upload formats in a stable order.
var SupportedFormats = []Format{
	FormatWAV, FormatMP3, FormatM4A, FormatFLAC, FormatOGG, FormatAAC, FormatWEBM,
}

const errFmtUnsupportedFormat = "%w: '%s' (allowed: %s)"

// FormatOf returns the lower-cased extension of filename without the dot.
func FormatOf(filename string) Format {
	return Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")))
}

// IsSupported reports whether the format is on the upload allow-list.
func (f Format) IsSupported() bool {
	for _, candidate := range SupportedFormats {
		if candidate == f {
			return true
		}
	}

	return false
}

// Extension returns the format with a leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ValidateUploadName checks the extension of filename against the allow-list.
// The comparison is case-insensitive.
func ValidateUploadName(filename string) (Format, error) {
	format := FormatOf(filename)
	if !format.IsSupported() {
		allowed := make([]string, 0, len(SupportedFormats))
		for _, supported := range SupportedFormats {
			allowed = append(allowed, string(supported))
		}

		return "", fmt.Errorf(
			errFmtUnsupportedFormat,
			core.ErrUnsupportedFormat,
			format,
			strings.Join(allowed, ", "),
		)
	}

	return format, nil
}
