package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/vietforeign-service/internal/audio"
	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/events"
)

// UploadResult describes a stored upload.
type UploadResult struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Size     int64         `json:"size"`
	Format   string        `json:"format"`
	Tags     *core.TagInfo `json:"tags,omitempty"`
}

// Upload validates and stores an audio file and returns its new id.
func (s *Service) Upload(ctx context.Context, content []byte, filename, contentType string) (result UploadResult, err error) {
	start := time.Now()

	defer func() { s.observe(ctx, OpUpload, result.ID, start, false, err) }()

	format, formatErr := audio.ValidateUploadName(filename)
	if formatErr != nil {
		return UploadResult{}, core.NewError(OpUpload, "", formatErr)
	}

	if len(content) == 0 {
		return UploadResult{}, core.NewError(OpUpload, "",
			fmt.Errorf("%w: empty file uploaded", core.ErrValidationFailed))
	}

	id, putErr := s.artifacts.Put(ctx, content, filename, contentType)
	if putErr != nil {
		return UploadResult{}, core.NewError(OpUpload, "", putErr)
	}

	stored, getErr := s.artifacts.Get(id)
	if getErr != nil {
		return UploadResult{}, core.NewError(OpUpload, id, getErr)
	}

	s.metrics.RecordUpload(string(format), len(content))

	event := events.New(events.TypeUploaded, id)
	event.Detail = stored.Filename
	s.publish(ctx, event)

	return UploadResult{
		ID:       id,
		Filename: stored.Filename,
		Size:     stored.Size,
		Format:   string(format),
		Tags:     stored.Tags,
	}, nil
}
