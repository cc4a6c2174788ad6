package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/pgvector"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

const pgUndefinedTable = "42P01"

// PGVectorIndex stores collections in the langchain pgvector tables, sharing one pool.
// Opened stores are cached per collection so schema setup runs once per collection
// and process.
type PGVectorIndex struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	logger   logger.Logger

	mu     sync.Mutex
	stores map[string]pgvector.Store
}

func NewPGVectorIndex(ctx context.Context, dsn string, embedder embeddings.Embedder, log logger.Logger) (*PGVectorIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to vector database: %w", err)
	}

	return &PGVectorIndex{
		pool:     pool,
		embedder: embedder,
		logger:   log.Named("pgvector"),
		stores:   make(map[string]pgvector.Store),
	}, nil
}

// store opens the collection, creating it when absent.
func (i *PGVectorIndex) store(ctx context.Context, name string, opts ...pgvector.Option) (pgvector.Store, error) {
	opts = append([]pgvector.Option{
		pgvector.WithConn(i.pool),
		pgvector.WithEmbedder(i.embedder),
		pgvector.WithCollectionName(name),
	}, opts...)
	return pgvector.New(ctx, opts...)
}

// cached returns the store for an existing collection, opening it on first use.
func (i *PGVectorIndex) cached(ctx context.Context, name string) (pgvector.Store, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if s, ok := i.stores[name]; ok {
		return s, nil
	}
	s, err := i.store(ctx, name)
	if err != nil {
		return pgvector.Store{}, err
	}
	i.stores[name] = s
	return s, nil
}

func (i *PGVectorIndex) forget(name string) {
	i.mu.Lock()
	delete(i.stores, name)
	i.mu.Unlock()
}

func (i *PGVectorIndex) Create(ctx context.Context, name string, docs []schema.Document) (int, error) {
	i.forget(name)
	s, err := i.store(ctx, name,
		pgvector.WithPreDeleteCollection(true),
		pgvector.WithCollectionMetadata(map[string]any{"document_id": name}),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: create collection %s: %v", models.ErrUpstream, name, err)
	}

	ids, err := s.AddDocuments(ctx, docs)
	if err != nil {
		if dropErr := i.Drop(context.WithoutCancel(ctx), name); dropErr != nil {
			i.logger.Warn("Failed to drop partial collection",
				logger.String("collection", name),
				logger.Error(dropErr),
			)
		}
		return 0, fmt.Errorf("%w: add documents to %s: %v", models.ErrUpstream, name, err)
	}

	i.mu.Lock()
	i.stores[name] = s
	i.mu.Unlock()

	return len(ids), nil
}

func (i *PGVectorIndex) Open(ctx context.Context, name string) (vectorstores.VectorStore, error) {
	ok, err := i.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}

	s, err := i.cached(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection %s: %v", models.ErrUpstream, name, err)
	}
	return s, nil
}

func (i *PGVectorIndex) Drop(ctx context.Context, name string) error {
	ok, err := i.exists(ctx, name)
	if err != nil || !ok {
		return err
	}

	s, err := i.cached(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: open collection %s: %v", models.ErrUpstream, name, err)
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin drop: %v", models.ErrUpstream, err)
	}
	defer tx.Rollback(ctx)

	// embeddings are removed by the collection foreign key cascade
	if err := s.RemoveCollection(ctx, tx); err != nil {
		return fmt.Errorf("%w: drop collection %s: %v", models.ErrUpstream, name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit drop: %v", models.ErrUpstream, err)
	}
	i.forget(name)
	return nil
}

func (i *PGVectorIndex) Count(ctx context.Context, name string) (int, error) {
	ok, err := i.exists(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}

	var n int
	err = i.pool.QueryRow(ctx, `SELECT count(*) FROM `+pgvector.DefaultEmbeddingStoreTableName+` e
		JOIN `+pgvector.DefaultCollectionStoreTableName+` c ON e.collection_id = c.uuid
		WHERE c.name = $1`, name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count collection %s: %v", models.ErrUpstream, name, err)
	}
	return n, nil
}

// exists checks for the collection without creating it. The collection table itself
// may not exist before the first ingestion.
func (i *PGVectorIndex) exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := i.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+pgvector.DefaultCollectionStoreTableName+` WHERE name = $1)`,
		name,
	).Scan(&ok)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return false, nil
		}
		return false, fmt.Errorf("%w: lookup collection %s: %v", models.ErrUpstream, name, err)
	}
	return ok, nil
}

func (i *PGVectorIndex) Ping(ctx context.Context) error {
	return i.pool.Ping(ctx)
}

func (i *PGVectorIndex) Close() {
	i.pool.Close()
}
