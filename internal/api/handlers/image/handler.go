package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/api/respond"
	"github.com/resizr/resizr/internal/model"
	imagerepo "github.com/resizr/resizr/internal/repository/image"
	imagesvc "github.com/resizr/resizr/internal/service/image"
)

// service defines the interface for image-related operations.
type service interface {
	Upload(ctx context.Context, filename, contentType string, file io.Reader) (model.Image, error)
	Get(ctx context.Context, id uuid.UUID) (model.Image, error)
	ResolveFile(ctx context.Context, id uuid.UUID, size string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler provides HTTP handlers for image-related endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// TaskResponse is the submission response body.
type TaskResponse struct {
	TaskID uuid.UUID    `json:"task_id"`
	Status model.Status `json:"status"`
}

// Upload handles the HTTP request for uploading an image. It stores the file,
// creates the record, enqueues the resize job and responds with the task id.
func (h *Handler) Upload(c *ginext.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to retrieve uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")

	img, err := h.service.Upload(c.Request.Context(), header.Filename, contentType, file)
	if err != nil {
		if errors.Is(err, imagesvc.ErrUnsupportedType) {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("Only JPEG/PNG allowed"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to accept upload")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to accept upload"))
		return
	}

	respond.OK(c, TaskResponse{TaskID: img.ID, Status: img.Status})
}

// Get returns the full record for an image: status, locations, timestamps.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	img, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, imagerepo.ErrImageNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("Image not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get image")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get image"))
		return
	}

	respond.OK(c, img)
}

// ViewFile serves the original or a thumbnail inline for browser viewing.
func (h *Handler) ViewFile(c *ginext.Context) {
	h.serveFile(c, false)
}

// DownloadFile serves the original or a thumbnail as an attachment.
func (h *Handler) DownloadFile(c *ginext.Context) {
	h.serveFile(c, true)
}

func (h *Handler) serveFile(c *ginext.Context, download bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	size := c.Query("size")

	reader, filename, err := h.service.ResolveFile(c.Request.Context(), id, size)
	if err != nil {
		failFileRequest(c, size, err)
		return
	}
	defer reader.Close()

	if download {
		respond.File(c, "application/octet-stream", "attachment; filename="+filename, reader)
		return
	}

	respond.File(c, "image/jpeg", "inline; filename="+filename, reader)
}

// Delete removes an image record together with its stored files.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, imagerepo.ErrImageNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("Image not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to delete image")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete image"))
		return
	}

	c.Status(http.StatusNoContent)
}

// parseID parses the id path parameter, failing the request with 400 on a
// malformed value. Malformed ids are never reported as 404.
func parseID(c *ginext.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("Invalid UUID"))
		return uuid.Nil, false
	}

	return id, true
}

// failFileRequest maps file resolution errors onto the response taxonomy.
func failFileRequest(c *ginext.Context, size string, err error) {
	var notReady *imagesvc.NotReadyError

	switch {
	case errors.Is(err, imagerepo.ErrImageNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("Image not found"))
	case errors.As(err, &notReady):
		respond.Fail(c, http.StatusConflict, fmt.Errorf("Image is not ready. Status: %s", notReady.Status))
	case errors.Is(err, imagesvc.ErrInvalidSize):
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("Invalid size. Available: 100x100, 300x300, 1200x1200"))
	case errors.Is(err, imagesvc.ErrThumbnailNotFound):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("Thumbnail %s not found", size))
	case errors.Is(err, imagesvc.ErrFileMissing):
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("File not found on disk"))
	default:
		zlog.Logger.Err(err).Msg("failed to serve file")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to serve file"))
	}
}
