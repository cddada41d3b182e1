package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/model"
	imagerepo "github.com/resizr/resizr/internal/repository/image"
)

var (
	// ErrUnsupportedType is returned for uploads that are neither JPEG nor PNG.
	ErrUnsupportedType = errors.New("only JPEG/PNG allowed")

	// ErrInvalidSize is returned when a size query names none of the fixed labels.
	ErrInvalidSize = errors.New("invalid thumbnail size")

	// ErrThumbnailNotFound is returned when a valid label is absent from the record.
	ErrThumbnailNotFound = errors.New("thumbnail not found")

	// ErrFileMissing is returned when the referenced storage location holds no data.
	ErrFileMissing = errors.New("file not found in storage")
)

// NotReadyError is returned when a file is requested before processing is
// complete. It carries the current status for the caller's conflict response.
type NotReadyError struct {
	Status model.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("image is not ready. Status: %s", e.Status)
}

// fileStorage defines the interface for storing files (local filesystem or S3).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// producer defines the interface for enqueueing jobs into the message broker.
type producer interface {
	Publish(ctx context.Context, msg model.Message) error
}

// thumbnailer defines the interface for generating the thumbnail set.
type thumbnailer interface {
	Generate(ctx context.Context, id uuid.UUID, originalPath string) (map[string]string, error)
}

// repository defines the record store operations the service needs.
type repository interface {
	CreateImage(ctx context.Context, originalURL string) (model.Image, error)
	GetImage(ctx context.Context, id uuid.UUID) (model.Image, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkDone(ctx context.Context, id uuid.UUID, thumbnails map[string]string) error
	MarkError(ctx context.Context, id uuid.UUID, message string) error
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

// Service provides business logic for image operations: the submission path,
// the worker processing path and file retrieval.
type Service struct {
	fileStorage fileStorage
	producer    producer
	thumbnailer thumbnailer
	repo        repository
}

// NewService creates a new Service with the given dependencies.
func NewService(fs fileStorage, p producer, t thumbnailer, r repository) *Service {
	return &Service{
		fileStorage: fs,
		producer:    p,
		thumbnailer: t,
		repo:        r,
	}
}

// Upload validates and persists an uploaded image, creates its record and
// enqueues the resize job. On success the returned record is in PROCESSING.
//
// The file is stored before the record is created, so a storage failure
// leaves no orphan record. A publish failure marks the record ERROR rather
// than leaving it silently in NEW.
func (s *Service) Upload(ctx context.Context, filename, contentType string, file io.Reader) (model.Image, error) {
	if contentType != "image/jpeg" && contentType != "image/png" {
		return model.Image{}, ErrUnsupportedType
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}

	storedName := uuid.New().String() + ext

	dst, err := s.fileStorage.Save(ctx, "original", storedName, file)
	if err != nil {
		return model.Image{}, fmt.Errorf("upload: failed to save file: %w", err)
	}

	img, err := s.repo.CreateImage(ctx, dst)
	if err != nil {
		return model.Image{}, fmt.Errorf("upload: failed to create record: %w", err)
	}

	msg := model.Message{ImageID: img.ID, OriginalPath: dst}
	if err := s.producer.Publish(ctx, msg); err != nil {
		if markErr := s.repo.MarkError(ctx, img.ID, "failed to enqueue processing job: "+err.Error()); markErr != nil {
			zlog.Logger.Err(markErr).
				Str("image_id", img.ID.String()).
				Msg("failed to mark record after publish failure")
		}

		return model.Image{}, fmt.Errorf("upload: failed to enqueue job: %w", err)
	}

	if err := s.repo.MarkProcessing(ctx, img.ID); err != nil {
		// The worker may have consumed the job and reached a terminal
		// state before this write. The record is current either way.
		if errors.Is(err, imagerepo.ErrTerminalState) {
			return s.repo.GetImage(ctx, img.ID)
		}
		return model.Image{}, fmt.Errorf("upload: failed to mark processing: %w", err)
	}

	img.Status = model.StatusProcessing

	return img, nil
}

// Get returns the full record for the given ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Image, error) {
	return s.repo.GetImage(ctx, id)
}

// ProcessImage runs one queued resize job to its terminal state. A nil return
// means the terminal record write (DONE or ERROR) succeeded and the message
// may be acknowledged; any error asks for redelivery.
//
// Re-entry is safe: PROCESSING -> PROCESSING is idempotent, thumbnail paths
// are deterministic, and a record already terminal is skipped outright.
func (s *Service) ProcessImage(ctx context.Context, msg model.Message) error {
	err := s.repo.MarkProcessing(ctx, msg.ImageID)
	if errors.Is(err, imagerepo.ErrTerminalState) {
		zlog.Logger.Info().
			Str("image_id", msg.ImageID.String()).
			Msg("image already processed, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("process: failed to mark processing: %w", err)
	}

	thumbnails, err := s.thumbnailer.Generate(ctx, msg.ImageID, msg.OriginalPath)
	if err != nil {
		// Transform failures are terminal: record the message and ack.
		// Partial thumbnail files may remain on disk; the empty mapping
		// keeps them invisible.
		if markErr := s.repo.MarkError(ctx, msg.ImageID, err.Error()); markErr != nil {
			return fmt.Errorf("process: failed to mark error: %w", markErr)
		}

		zlog.Logger.Err(err).
			Str("image_id", msg.ImageID.String()).
			Msg("image processing failed")

		return nil
	}

	if err := s.repo.MarkDone(ctx, msg.ImageID, thumbnails); err != nil {
		return fmt.Errorf("process: failed to mark done: %w", err)
	}

	return nil
}

// ResolveFile resolves a view or download request to the referenced bytes.
// An empty size selects the original; otherwise size must be one of the fixed
// labels and present in the record's thumbnails. The returned filename is the
// suggested download name.
func (s *Service) ResolveFile(ctx context.Context, id uuid.UUID, size string) (io.ReadCloser, string, error) {
	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if img.Status != model.StatusDone {
		return nil, "", &NotReadyError{Status: img.Status}
	}

	var path, filename string

	if size != "" {
		if !model.ValidSizeLabel(size) {
			return nil, "", ErrInvalidSize
		}

		path = img.Thumbnails[size]
		if path == "" {
			return nil, "", fmt.Errorf("%w: %s", ErrThumbnailNotFound, size)
		}

		base := filepath.Base(img.OriginalURL)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		filename = fmt.Sprintf("%s_%s.jpg", base, size)
	} else {
		path = img.OriginalURL
		filename = filepath.Base(path)
	}

	reader, err := s.fileStorage.Load(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrFileMissing, path)
	}

	return reader, filename, nil
}

// Delete removes the record together with the original and all thumbnails.
// File removal is best effort; the record delete decides the outcome.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return err
	}

	if err := s.fileStorage.Delete(ctx, img.OriginalURL); err != nil {
		zlog.Logger.Err(err).Str("path", img.OriginalURL).Msg("failed to delete original file")
	}
	for _, path := range img.Thumbnails {
		if err := s.fileStorage.Delete(ctx, path); err != nil {
			zlog.Logger.Err(err).Str("path", path).Msg("failed to delete thumbnail file")
		}
	}

	return s.repo.DeleteImage(ctx, id)
}
