package worker

import (
	"encoding/json"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
)

// Operation subjects, relative to the configured prefix.
const (
	SubjectUpload           = "upload"
	SubjectGetTranscript    = "transcript.get"
	SubjectUpdateTranscript = "transcript.update"
	SubjectTranslate        = "translate"
	SubjectVoiceConvert     = "voice.convert"
	SubjectHealth           = "health"
	SubjectCleanup          = "cleanup"
)

// Subject joins prefix and an operation subject.
func Subject(prefix, operation string) string {
	if prefix == "" {
		return operation
	}

	return prefix + "." + operation
}

// NewHeader creates a request header for workflowID.
func NewHeader(workflowID string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

// UploadRequest carries an audio file inline, or the key of an object that
// holds it.
type UploadRequest struct {
	Header      events.EventHeader `json:"header"`
	Filename    string             `json:"filename"`
	ContentType string             `json:"content_type"`
	Content     []byte             `json:"content,omitempty"`
	ObjectKey   string             `json:"object_key,omitempty"`
}

// TranscriptRequest addresses the transcript of an artifact. Text is only
// used by updates.
type TranscriptRequest struct {
	Header events.EventHeader `json:"header"`
	ID     string             `json:"id"`
	Text   string             `json:"transcript,omitempty"`
}

// TranslateRequest asks for a translation of the stored transcript.
type TranslateRequest struct {
	Header         events.EventHeader `json:"header"`
	ID             string             `json:"id"`
	TargetLanguage string             `json:"target_language"`
}

// VoiceConvertRequest asks for synthesized speech. Text is optional.
type VoiceConvertRequest struct {
	Header         events.EventHeader `json:"header"`
	ID             string             `json:"id"`
	TargetLanguage string             `json:"target_language"`
	Text           string             `json:"text,omitempty"`
}

// Reply is the envelope of every response. Data holds the operation result
// when OK is set.
type Reply struct {
	Header     events.EventHeader `json:"header"`
	OK         bool               `json:"ok"`
	StatusCode int                `json:"status_code"`
	Kind       string             `json:"kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	Detected   string             `json:"detected_language,omitempty"`
	Data       json.RawMessage    `json:"data,omitempty"`
}
