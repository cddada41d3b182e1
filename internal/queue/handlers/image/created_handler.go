package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/infra/rabbitmq"
	"github.com/resizr/resizr/internal/model"
	imagerepo "github.com/resizr/resizr/internal/repository/image"
)

// service defines the interface for processing queued resize jobs.
type service interface {
	ProcessImage(ctx context.Context, msg model.Message) error
}

// CreatedHandler handles queue messages for newly submitted images.
type CreatedHandler struct {
	service service
}

// NewCreatedHandler creates a new handler with the given service.
func NewCreatedHandler(s service) *CreatedHandler {
	return &CreatedHandler{service: s}
}

// Handle processes one job message body. Bodies that do not unmarshal, or
// jobs whose record no longer exists, are flagged as unprocessable so the
// consumer drops them instead of redelivering forever.
func (h *CreatedHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal job message: %v: %w", err, rabbitmq.ErrBadMessage)
	}

	if err := h.service.ProcessImage(ctx, msg); err != nil {
		if errors.Is(err, imagerepo.ErrImageNotFound) {
			return fmt.Errorf("process image: %v: %w", err, rabbitmq.ErrBadMessage)
		}

		return fmt.Errorf("process image: %w", err)
	}

	zlog.Logger.Info().Str("image_id", msg.ImageID.String()).Msg("image processed")

	return nil
}
