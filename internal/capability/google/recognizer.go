// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/core"
)

const defaultLanguageCode = "vi-VN"

// Recognizer implements core.SpeechRecognizer with synchronous recognition.
type Recognizer struct {
	client       *speech.Client
	languageCode string
}

var _ core.SpeechRecognizer = (*Recognizer)(nil)

// New creates a recognizer. With an empty credentialsFile the client uses the
// GOOGLE_APPLICATION_CREDENTIALS environment variable.
func New(ctx context.Context, languageCode, credentialsFile string) (*Recognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if languageCode == "" {
		languageCode = defaultLanguageCode
	}

	return &Recognizer{client: client, languageCode: languageCode}, nil
}

// Transcribe recognizes the waveform and joins the best alternative of every result.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float64, sampleRate int) (string, error) {
	resp, err := r.client.Recognize(ctx, BuildRequest(samples, sampleRate, r.languageCode))
	if err != nil {
		return "", fmt.Errorf("google recognition failed: %w", err)
	}

	return JoinResults(resp.GetResults()), nil
}

// Close releases the underlying connection.
func (r *Recognizer) Close() error {
	return r.client.Close()
}

// BuildRequest creates a LINEAR16 recognition request for the waveform.
func BuildRequest(samples []float64, sampleRate int, languageCode string) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			AudioChannelCount:          1,
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.PCM16(samples)},
		},
	}
}

// JoinResults concatenates the top alternative of each result.
func JoinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))

	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}

		transcript := strings.TrimSpace(alternatives[0].GetTranscript())
		if transcript != "" {
			parts = append(parts, transcript)
		}
	}

	return strings.Join(parts, " ")
}
