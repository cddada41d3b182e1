package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/resizr/resizr/internal/config"
	"github.com/resizr/resizr/internal/storage/file"
	"github.com/resizr/resizr/internal/storage/s3"
)

// Storage is the contract shared by all file storage backends. Save returns
// an opaque path that Load and Delete accept back.
type Storage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// New builds the storage backend selected by the configuration.
func New(ctx context.Context, cfg config.Storage) (Storage, error) {
	switch cfg.Backend {
	case "", "local":
		return file.NewStorage(cfg.Path), nil
	case "s3":
		return s3.NewStorage(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.BucketName, cfg.UseSSL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
