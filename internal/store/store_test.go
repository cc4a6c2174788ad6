package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { Close(db) })
	return db
}

func createDocument(t *testing.T, repo *DocumentRepository, status models.DocumentStatus) *models.Document {
	t.Helper()
	doc := &models.Document{Filename: "notes.txt", File: "documents/x/notes.txt", Status: status}
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"}, logger.NewTestLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDocumentCreateDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	ctx := context.Background()

	doc := &models.Document{Filename: "notes.txt", File: "documents/a/notes.txt"}
	require.NoError(t, repo.Create(ctx, doc))
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, models.DocumentUploaded, doc.Status)
	assert.False(t, doc.UploadedAt.IsZero())

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.Filename)
	assert.Equal(t, models.DocumentUploaded, got.Status)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, Ping(ctx, db))
}

func TestDocumentListNewestFirst(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	ctx := context.Background()

	older := &models.Document{Filename: "a.txt", File: "a", UploadedAt: time.Now().Add(-time.Hour)}
	newer := &models.Document{Filename: "b.txt", File: "b", UploadedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
	assert.Equal(t, older.ID, docs[1].ID)
}

func TestDocumentTransitions(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	ctx := context.Background()
	doc := createDocument(t, repo, "")

	require.NoError(t, repo.MarkProcessing(ctx, doc.ID, "Parsing and vectorizing document..."))
	// redelivered ingestion cannot claim the document twice
	assert.ErrorIs(t, repo.MarkProcessing(ctx, doc.ID, "again"), models.ErrInvalidTransition)

	require.NoError(t, repo.MarkCompleted(ctx, doc.ID, 3, "Document processed."))
	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCompleted, got.Status)
	assert.Equal(t, 3, got.ChunkCount)
	require.NotNil(t, got.ProcessingMessage)
	assert.Equal(t, "Document processed.", *got.ProcessingMessage)

	// terminal
	assert.ErrorIs(t, repo.MarkFailed(ctx, doc.ID, "late"), models.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Transition(ctx, doc.ID, models.DocumentCompleted, models.DocumentUploaded, nil), models.ErrInvalidTransition)

	assert.ErrorIs(t, repo.MarkProcessing(ctx, uuid.New(), "x"), models.ErrNotFound)
}

func TestDocumentMarkFailed(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	ctx := context.Background()
	doc := createDocument(t, repo, models.DocumentProcessing)

	require.NoError(t, repo.MarkFailed(ctx, doc.ID, "processing failed: boom"))
	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentFailed, got.Status)
	assert.Equal(t, "processing failed: boom", *got.ProcessingMessage)
}

func TestDocumentDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	questions := NewQuestionRepository(db)
	ctx := context.Background()

	doc := createDocument(t, docs, models.DocumentCompleted)
	other := createDocument(t, docs, models.DocumentCompleted)
	for i := 0; i < 2; i++ {
		require.NoError(t, questions.Create(ctx, &models.QuestionAnswer{DocumentID: doc.ID, Question: "q"}))
	}
	keep := &models.QuestionAnswer{DocumentID: other.ID, Question: "q"}
	require.NoError(t, questions.Create(ctx, keep))

	require.NoError(t, docs.Delete(ctx, doc.ID))

	_, err := docs.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	remaining, err := questions.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)

	assert.ErrorIs(t, docs.Delete(ctx, doc.ID), models.ErrNotFound)
}

func TestListFailedBefore(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	ctx := context.Background()

	old := &models.Document{Filename: "a.xyz", File: "a", Status: models.DocumentFailed, UploadedAt: time.Now().Add(-48 * time.Hour)}
	recent := &models.Document{Filename: "b.xyz", File: "b", Status: models.DocumentFailed, UploadedAt: time.Now()}
	done := &models.Document{Filename: "c.txt", File: "c", Status: models.DocumentCompleted, UploadedAt: time.Now().Add(-48 * time.Hour)}
	for _, d := range []*models.Document{old, recent, done} {
		require.NoError(t, repo.Create(ctx, d))
	}

	got, err := repo.ListFailedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}

func TestQuestionLifecycle(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	doc := createDocument(t, docs, models.DocumentCompleted)
	qa := &models.QuestionAnswer{DocumentID: doc.ID, Question: "what is this about?"}
	require.NoError(t, repo.Create(ctx, qa))
	assert.Equal(t, models.QuestionPending, qa.Status)

	assert.ErrorIs(t, repo.MarkCompleted(ctx, qa.ID, "early", nil), models.ErrInvalidTransition)
	require.NoError(t, repo.MarkAnswering(ctx, qa.ID))

	citations := []models.Citation{{Content: "hello world...", Metadata: map[string]interface{}{"source_filename": "notes.txt"}}}
	require.NoError(t, repo.MarkCompleted(ctx, qa.ID, "a greeting", citations))

	got, err := repo.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionCompleted, got.Status)
	require.NotNil(t, got.Answer)
	assert.Equal(t, "a greeting", *got.Answer)
	require.Len(t, got.SourceDocuments, 1)
	assert.Equal(t, "notes.txt", got.SourceDocuments[0].Metadata["source_filename"])
	assert.Equal(t, "notes.txt", got.DocumentFilename())
}

func TestQuestionMarkFailed(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	doc := createDocument(t, docs, models.DocumentCompleted)
	qa := &models.QuestionAnswer{DocumentID: doc.ID, Question: "q"}
	require.NoError(t, repo.Create(ctx, qa))
	require.NoError(t, repo.MarkAnswering(ctx, qa.ID))
	require.NoError(t, repo.MarkFailed(ctx, qa.ID, "placeholder", "error: boom"))

	got, err := repo.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionFailed, got.Status)
	assert.Equal(t, "placeholder", *got.Answer)
	assert.Equal(t, "error: boom", *got.ErrorMessage)

	assert.ErrorIs(t, repo.MarkAnswering(ctx, uuid.New()), models.ErrNotFound)
}

func TestQuestionListFilterAndDelete(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	a := createDocument(t, docs, models.DocumentCompleted)
	b := createDocument(t, docs, models.DocumentCompleted)
	qa := &models.QuestionAnswer{DocumentID: a.ID, Question: "q1"}
	require.NoError(t, repo.Create(ctx, qa))
	require.NoError(t, repo.Create(ctx, &models.QuestionAnswer{DocumentID: b.ID, Question: "q2"}))

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := repo.List(ctx, &a.ID)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "q1", filtered[0].Question)

	require.NoError(t, repo.Delete(ctx, qa.ID))
	assert.ErrorIs(t, repo.Delete(ctx, qa.ID), models.ErrNotFound)

	// the document is unaffected
	_, err = docs.Get(ctx, a.ID)
	assert.NoError(t, err)
}
