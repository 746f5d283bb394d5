// Package core defines the core business types and interfaces for the localization pipeline.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SpeechRecognizer converts a mono waveform into source-language text.
// Callers are responsible for mixing, resampling and normalizing the samples.
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, samples []float64, sampleRate int) (string, error)
}

// TextCorrector repairs spelling and diacritics in a raw transcript.
type TextCorrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// TextTranslator translates text between two model-specific language codes.
type TextTranslator interface {
	Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error)
}

// Conditioning holds the speaker features extracted from a reference recording.
type Conditioning struct {
	GPTCondLatent    []float32 `json:"gpt_cond_latent"`
	SpeakerEmbedding []float32 `json:"speaker_embedding"`
}

// SpeechGenerator produces speech conditioned on a reference speaker.
type SpeechGenerator interface {
	// ExtractConditioning derives speaker features from the reference audio file.
	ExtractConditioning(ctx context.Context, referencePath string) (Conditioning, error)

	// GenerateSpeech returns a WAV encoded waveform for text in the given language.
	GenerateSpeech(ctx context.Context, text, language string, cond Conditioning) ([]byte, error)
}

// VoiceConverter rewrites the timbre of sourcePath to match referencePath and
// writes the result to outputPath.
type VoiceConverter interface {
	ConvertVoice(ctx context.Context, sourcePath, referencePath, outputPath string) error
}

// LanguageDetector classifies a piece of text and returns a language code.
type LanguageDetector interface {
	Detect(text string) (string, error)
}

// Releaser is implemented by capabilities that hold accelerator memory which
// should be freed at shutdown.
type Releaser interface {
	Release(ctx context.Context) error
}

// ArtifactStore keeps uploaded audio both in memory and on disk.
type ArtifactStore interface {
	Put(ctx context.Context, content []byte, filename, contentType string) (string, error)
	Get(id string) (Artifact, error)
	Path(id string) (string, error)
	Len() int
	Purge(ctx context.Context) error
}

// SessionStore keeps the derived transcript state for each artifact id.
type SessionStore interface {
	// Get returns a copy of the session stored under id.
	Get(id string) (Session, bool)

	// Update applies fn atomically to an existing session. It returns ErrNotFound
	// if no session exists. An error from fn discards the mutation.
	Update(id string, fn func(*Session) error) error

	// Upsert is like Update but starts from an empty session when none exists.
	Upsert(id string, fn func(*Session) error) error

	Len() int
	Clear()
}
