package core

import (
	"maps"
	"time"
)

// Supported target language codes.
const (
	LangEnglish  = "en"
	LangJapanese = "ja"
	LangFrench   = "fr"
)

// SourceLanguage is the fixed input language of uploaded recordings.
const SourceLanguage = "vi"

// SupportedTargets lists the target languages in a stable order.
var SupportedTargets = []string{LangEnglish, LangJapanese, LangFrench}

// IsSupportedTarget reports whether code is one of SupportedTargets.
func IsSupportedTarget(code string) bool {
	for _, target := range SupportedTargets {
		if target == code {
			return true
		}
	}

	return false
}

// TagInfo is optional metadata read from audio container tags.
type TagInfo struct {
	Format string `json:"format"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// Artifact is one uploaded audio blob.
type Artifact struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	FilePath    string    `json:"-"`
	Size        int64     `json:"size"`
	UploadTime  time.Time `json:"upload_time"`
	Tags        *TagInfo  `json:"tags,omitempty"`
}

// SessionStatus is the lifecycle status of a Session.
type SessionStatus string

// Session statuses.
const (
	StatusAbsent    SessionStatus = "absent"
	StatusCompleted SessionStatus = "completed"
	StatusUpdated   SessionStatus = "updated"
	StatusError     SessionStatus = "error"
)

// Conversion records one synthesized output for a target language.
type Conversion struct {
	AudioPath string `json:"audio_path"`
	Text      string `json:"text"`
	AudioURL  string `json:"audio_url"`
}

// Session accumulates the derived text and audio for one artifact id.
//
// TranslatedTranscript is a single slot shared by all target languages; the
// last translation written wins. TranslatedLanguage records which language
// currently occupies it.
type Session struct {
	ID                   string                `json:"id"`
	RawTranscript        string                `json:"raw_transcript"`
	CorrectedTranscript  string                `json:"corrected_transcript"`
	TranslatedTranscript string                `json:"translated_transcript,omitempty"`
	TranslatedLanguage   string                `json:"translated_language,omitempty"`
	VoiceConversions     map[string]Conversion `json:"voice_conversions,omitempty"`
	Status               SessionStatus         `json:"status"`
	Degraded             bool                  `json:"degraded,omitempty"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.VoiceConversions != nil {
		out.VoiceConversions = maps.Clone(s.VoiceConversions)
	}

	return out
}

// SourceText returns the corrected transcript, falling back to the raw one.
func (s Session) SourceText() string {
	if s.CorrectedTranscript != "" {
		return s.CorrectedTranscript
	}

	return s.RawTranscript
}
