package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/storage/local"
	"github.com/feichai0017/rag-service/pkg/storage/minio"
	"github.com/feichai0017/rag-service/pkg/storage/s3"
)

// Storage holds uploaded document files by key.
type Storage interface {
	// Store writes reader under key and returns the stored key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the object stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Walk calls fn with the key and modification time of every object whose key
	// starts with prefix. An error from fn stops the walk and is returned.
	Walk(ctx context.Context, prefix string, fn func(key string, modified time.Time) error) error
}

// NewStorage creates the backend selected by cfg.Type.
func NewStorage(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch cfg.Type {
	case config.StorageTypeLocal:
		return local.NewLocalStorage(cfg.BasePath, log)
	case config.StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case config.StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
