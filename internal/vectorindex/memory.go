package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/feichai0017/rag-service/internal/models"
)

type entry struct {
	doc    schema.Document
	vector []float32
}

// MemoryIndex keeps collections in process memory. It is meant for local runs where the
// server and worker share a process, and for tests.
type MemoryIndex struct {
	embedder embeddings.Embedder

	mu          sync.RWMutex
	collections map[string][]entry
}

func NewMemoryIndex(embedder embeddings.Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder:    embedder,
		collections: make(map[string][]entry),
	}
}

func (m *MemoryIndex) Create(ctx context.Context, name string, docs []schema.Document) (int, error) {
	entries, err := m.embed(ctx, docs)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.collections[name] = entries
	m.mu.Unlock()
	return len(entries), nil
}

func (m *MemoryIndex) embed(ctx context.Context, docs []schema.Document) ([]entry, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed documents: %v", models.ErrUpstream, err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d documents", models.ErrUpstream, len(vectors), len(docs))
	}

	entries := make([]entry, len(docs))
	for i, doc := range docs {
		entries[i] = entry{doc: doc, vector: vectors[i]}
	}
	return entries, nil
}

func (m *MemoryIndex) Open(ctx context.Context, name string) (vectorstores.VectorStore, error) {
	m.mu.RLock()
	_, ok := m.collections[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}
	return &memoryStore{index: m, name: name}, nil
}

func (m *MemoryIndex) Drop(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.collections, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}
	return len(entries), nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error { return nil }

func (m *MemoryIndex) Close() {}

// memoryStore is a vectorstores.VectorStore view of one collection.
type memoryStore struct {
	index *MemoryIndex
	name  string
}

var _ vectorstores.VectorStore = (*memoryStore)(nil)

func (s *memoryStore) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	entries, err := s.index.embed(ctx, docs)
	if err != nil {
		return nil, err
	}

	s.index.mu.Lock()
	defer s.index.mu.Unlock()
	if _, ok := s.index.collections[s.name]; !ok {
		return nil, fmt.Errorf("collection %s: %w", s.name, models.ErrNotFound)
	}
	s.index.collections[s.name] = append(s.index.collections[s.name], entries...)

	ids := make([]string, len(entries))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids, nil
}

// SimilaritySearch ranks the collection by cosine similarity to the query.
func (s *memoryStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}

	q, err := s.index.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", models.ErrUpstream, err)
	}

	s.index.mu.RLock()
	entries, ok := s.index.collections[s.name]
	s.index.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", s.name, models.ErrNotFound)
	}

	docs := make([]schema.Document, 0, len(entries))
	for _, e := range entries {
		score := cosine(q, e.vector)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		doc := e.doc
		doc.Score = score
		docs = append(docs, doc)
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if numDocuments > 0 && len(docs) > numDocuments {
		docs = docs[:numDocuments]
	}
	return docs, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
