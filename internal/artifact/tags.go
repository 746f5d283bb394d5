package artifact

import (
	"bytes"
	"fmt"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/dhowden/tag"
)

// ReadTags extracts container metadata from content. Untagged formats such as
// plain WAV return tag.ErrNoTagsFound.
func ReadTags(content []byte) (*core.TagInfo, error) {
	metadata, err := tag.ReadFrom(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	return &core.TagInfo{
		Format: string(metadata.FileType()),
		Title:  metadata.Title(),
		Artist: metadata.Artist(),
		Album:  metadata.Album(),
	}, nil
}
