// Package vectorindex manages one vector collection per document.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/pkg/logger"
)

const (
	TypePGVector = "pgvector"
	TypeMemory   = "memory"
)

// Index creates, opens and drops named collections. Collections are created whole:
// a Create that fails leaves no collection behind.
type Index interface {
	// Create replaces any collection called name with one holding docs and returns
	// the number of stored chunks.
	Create(ctx context.Context, name string, docs []schema.Document) (int, error)
	// Open returns a store scoped to an existing collection, or models.ErrNotFound.
	Open(ctx context.Context, name string) (vectorstores.VectorStore, error)
	// Drop removes the collection. Dropping a missing collection is not an error.
	Drop(ctx context.Context, name string) error
	// Count returns the number of chunks in the collection, or models.ErrNotFound.
	Count(ctx context.Context, name string) (int, error)
	Ping(ctx context.Context) error
	Close()
}

// New builds the index selected by cfg.Type.
func New(ctx context.Context, cfg config.VectorConfig, embedder embeddings.Embedder, log logger.Logger) (Index, error) {
	switch cfg.Type {
	case TypePGVector:
		return NewPGVectorIndex(ctx, cfg.DSN, embedder, log)
	case TypeMemory:
		return NewMemoryIndex(embedder), nil
	default:
		return nil, fmt.Errorf("unsupported vector index type: %s", cfg.Type)
	}
}
