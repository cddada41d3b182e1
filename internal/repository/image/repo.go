package image

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/resizr/resizr/internal/model"
)

var (
	// ErrImageNotFound is returned when no record exists for the given ID.
	ErrImageNotFound = errors.New("image not found")

	// ErrTerminalState is returned when a status update targets a record
	// that already reached DONE or ERROR.
	ErrTerminalState = errors.New("image is in a terminal state")
)

// Repository provides CRUD operations for image records in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateImage inserts a new record in status NEW and returns it.
func (r *Repository) CreateImage(ctx context.Context, originalURL string) (model.Image, error) {
	query := `
		INSERT INTO images (status, original_url)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
   `

	img := model.Image{
		Status:      model.StatusNew,
		OriginalURL: originalURL,
		Thumbnails:  map[string]string{},
	}

	err := r.db.QueryRowContext(
		ctx, query, model.StatusNew, originalURL,
	).Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return model.Image{}, fmt.Errorf("create: failed to save image: %w", err)
	}

	return img, nil
}

// GetImage retrieves an image record by ID from the database.
func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (model.Image, error) {
	query := `
		SELECT status, original_url, thumbnails, error_message, created_at, updated_at
		FROM images
		WHERE id = $1
    `

	var img model.Image
	var thumbsBytes []byte
	var errMsg sql.NullString

	err := r.db.QueryRowContext(
		ctx, query, id,
	).Scan(&img.Status, &img.OriginalURL, &thumbsBytes, &errMsg, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Image{}, ErrImageNotFound
		}

		return model.Image{}, fmt.Errorf("get: failed to get image: %w", err)
	}

	if err := json.Unmarshal(thumbsBytes, &img.Thumbnails); err != nil {
		return model.Image{}, fmt.Errorf("get: failed to unmarshal thumbnails: %w", err)
	}

	if errMsg.Valid {
		img.ErrorMessage = &errMsg.String
	}

	img.ID = id

	return img, nil
}

// MarkProcessing moves a record into PROCESSING. Records already in
// PROCESSING stay there unchanged, so a redelivered job can re-enter safely.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE images
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3::text[])
    `

	return r.updateStatus(ctx, id, model.StatusProcessing, query)
}

// MarkDone atomically sets status DONE together with the complete thumbnails
// mapping. Only records in PROCESSING can be completed.
func (r *Repository) MarkDone(ctx context.Context, id uuid.UUID, thumbnails map[string]string) error {
	query := `
		UPDATE images
		SET status = $1, thumbnails = $4, updated_at = now()
		WHERE id = $2 AND status = ANY($3::text[])
    `

	thumbsJSON, err := json.Marshal(thumbnails)
	if err != nil {
		return fmt.Errorf("mark done: failed to marshal thumbnails: %w", err)
	}

	return r.updateStatus(ctx, id, model.StatusDone, query, thumbsJSON)
}

// MarkError sets status ERROR with the failure message.
func (r *Repository) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE images
		SET status = $1, error_message = $4, updated_at = now()
		WHERE id = $2 AND status = ANY($3::text[])
    `

	return r.updateStatus(ctx, id, model.StatusError, query, message)
}

// DeleteImage deletes an image record by ID from the database.
func (r *Repository) DeleteImage(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM images WHERE id = $1
    `

	rows, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete image: %w", err)
	}

	n, err := rows.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		return ErrImageNotFound
	}

	return nil
}

// updateStatus runs a guarded status update. The WHERE clause restricts the
// update to states that may legally transition into the target, so the status
// machine stays monotonic even under concurrent redelivery. Queries take the
// target status as $1, the id as $2, the allowed-states array as $3 and any
// extra values from $4 on.
func (r *Repository) updateStatus(ctx context.Context, id uuid.UUID, to model.Status, query string, extra ...interface{}) error {
	args := make([]interface{}, 0, len(extra)+3)
	args = append(args, to, id, statusArray(model.AllowedInto(to)))
	args = append(args, extra...)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status: failed to set %s: %w", to, err)
	}

	rows, _ := res.RowsAffected()
	if rows > 0 {
		return nil
	}

	// Nothing matched: the record is either absent or in a state the
	// transition matrix forbids.
	current, err := r.GetImage(ctx, id)
	if err != nil {
		return err
	}

	if current.Status.Terminal() {
		return fmt.Errorf("update status: %s -> %s: %w", current.Status, to, ErrTerminalState)
	}

	return fmt.Errorf("update status: transition %s -> %s is not allowed", current.Status, to)
}

// statusArray renders a status set as a Postgres text array literal.
func statusArray(statuses []model.Status) string {
	out := "{"
	for i, s := range statuses {
		if i > 0 {
			out += ","
		}
		out += string(s)
	}
	return out + "}"
}
