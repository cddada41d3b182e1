package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/resizr/resizr/internal/model"
)

// jpegQuality matches the quality the thumbnails are encoded with.
const jpegQuality = 85

// fileStorage defines the interface for file storage.
// It allows saving and loading files from a backend (e.g., local FS, S3, MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

// Processor generates the fixed set of thumbnails for uploaded images.
type Processor struct {
	fileStorage fileStorage
}

// New creates a new Processor with the given file storage backend.
func New(fs fileStorage) *Processor {
	return &Processor{fileStorage: fs}
}

// Generate decodes the original image and produces one JPEG thumbnail per
// fixed bounding box, preserving aspect ratio and never upscaling. It returns
// the complete label -> path mapping; on any failure nothing is returned, so
// a partial mapping can never reach the record.
func (p *Processor) Generate(ctx context.Context, id uuid.UUID, originalPath string) (map[string]string, error) {
	srcReader, err := p.fileStorage.Load(ctx, originalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load original image: %w", err)
	}
	defer srcReader.Close()

	src, err := imaging.Decode(srcReader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumbnails := make(map[string]string, len(model.ThumbSizes))

	for _, size := range model.ThumbSizes {
		label := size.Label()

		// Fit keeps the aspect ratio and bounds the result by the box.
		thumb := imaging.Fit(src, size.Width, size.Height, imaging.Lanczos)

		buf := bytes.NewBuffer(nil)
		if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("failed to encode thumbnail %s: %w", label, err)
		}

		filename := fmt.Sprintf("%s_%s.jpg", id, label)
		dst, err := p.fileStorage.Save(ctx, path.Join("thumbs", label), filename, buf)
		if err != nil {
			return nil, fmt.Errorf("failed to save thumbnail %s: %w", label, err)
		}

		thumbnails[label] = dst
	}

	return thumbnails, nil
}
