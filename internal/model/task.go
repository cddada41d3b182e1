package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Message is the queue payload published on upload. It carries just enough
// for the worker to pick up the job without reading the record first.
type Message struct {
	ImageID      uuid.UUID `json:"image_id"`
	OriginalPath string    `json:"original_path"`
}

// ThumbSize is one of the fixed bounding boxes thumbnails are generated for.
type ThumbSize struct {
	Width  int
	Height int
}

// Label returns the size identifier used in thumbnail maps and API queries,
// e.g. "100x100".
func (t ThumbSize) Label() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// ThumbSizes is the ordered set of thumbnails produced for every image.
var ThumbSizes = []ThumbSize{
	{Width: 100, Height: 100},
	{Width: 300, Height: 300},
	{Width: 1200, Height: 1200},
}

// ValidSizeLabel reports whether the given label names one of the fixed sizes.
func ValidSizeLabel(label string) bool {
	for _, t := range ThumbSizes {
		if t.Label() == label {
			return true
		}
	}
	return false
}
