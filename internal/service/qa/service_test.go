package qa

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/agent"
	"github.com/feichai0017/rag-service/internal/agent/llm"
	"github.com/feichai0017/rag-service/internal/agent/llm/mock"
	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/internal/service/document"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/utils/validator"
	"github.com/feichai0017/rag-service/internal/vectorindex"
	"github.com/feichai0017/rag-service/pkg/converters"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
	"github.com/feichai0017/rag-service/pkg/storage/local"
)

type testEnv struct {
	db        *gorm.DB
	documents *document.Service
	ingestor  *document.Ingestor
	service   *Service
	questions *store.QuestionRepository
	docRepo   *store.DocumentRepository
	queue     *queue.MemoryQueue
	index     *vectorindex.MemoryIndex
	log       *logger.TestLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewTestLogger()

	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, log)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { store.Close(db) })

	files, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		questions: store.NewQuestionRepository(db),
		docRepo:   store.NewDocumentRepository(db),
		queue:     queue.NewMemoryQueue(),
		index:     vectorindex.NewMemoryIndex(mock.NewMockEmbedder()),
		log:       log,
	}
	env.documents = document.NewService(env.docRepo, files, env.queue, validator.NewDocumentValidator(log, nil), log)
	env.ingestor = document.NewIngestor(env.docRepo, files, agent.NewProcessorFactory(log), agent.NewChunker(1000, 200), env.index, log)
	env.service = NewService(env.questions, env.docRepo, env.queue, log)
	return env
}

func (e *testEnv) answerer(model llms.Model) *Answerer {
	return NewAnswerer(e.questions, e.docRepo, e.index, llm.NewGenerator(model, llm.DefaultTopK),
		converters.NewCitationConverter(converters.DefaultPreviewLength), e.log)
}

// ingested uploads content and runs its ingestion task.
func (e *testEnv) ingested(t *testing.T, filename, content string) *models.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := e.documents.Upload(ctx, strings.NewReader(content), filename, int64(len(content)))
	require.NoError(t, err)
	_ = e.ingestor.Ingest(ctx, doc.ID)
	e.queue.Drain()

	doc, err = e.documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func answerPayload(t *testing.T, task *queue.Task) queue.QuestionAnswerPayload {
	t.Helper()
	var p queue.QuestionAnswerPayload
	require.NoError(t, json.Unmarshal(task.Payload, &p))
	return p
}

func TestAskAndAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.ingested(t, "notes.txt", "hello world")
	require.Equal(t, models.DocumentCompleted, doc.Status)
	require.Equal(t, 1, doc.ChunkCount)

	qa, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.NoError(t, err)
	assert.Equal(t, models.QuestionPending, qa.Status)
	assert.Equal(t, "notes.txt", qa.DocumentFilename())

	tasks := env.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskTypeQuestionAnswer, tasks[0].Type)
	assert.Equal(t, queue.QueueCritical, tasks[0].Queue)
	p := answerPayload(t, tasks[0])
	assert.Equal(t, qa.ID, p.QuestionID)
	assert.Equal(t, doc.ID, p.DocumentID)

	a := env.answerer(fake.NewFakeLLM([]string{"It says hello world."}))
	require.NoError(t, a.Answer(ctx, p.QuestionID, p.DocumentID, p.Question))

	got, err := env.service.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionCompleted, got.Status)
	require.NotNil(t, got.Answer)
	assert.Equal(t, "It says hello world.", *got.Answer)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, "notes.txt", got.DocumentFilename())

	require.Len(t, got.SourceDocuments, 1)
	assert.Equal(t, "hello world...", got.SourceDocuments[0].Content)
	assert.Equal(t, "notes.txt", got.SourceDocuments[0].Metadata[document.MetadataSourceFilename])
}

func TestAnswerModelFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")

	qa, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.NoError(t, err)

	// no scripted responses: the model call fails
	a := env.answerer(fake.NewFakeLLM(nil))
	require.Error(t, a.Answer(ctx, qa.ID, doc.ID, qa.Question))

	got, err := env.service.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionFailed, got.Status)
	require.NotNil(t, got.Answer)
	assert.Equal(t, FailedAnswer, *got.Answer)
	require.NotNil(t, got.ErrorMessage)
	assert.True(t, strings.HasPrefix(*got.ErrorMessage, "error: "))
}

func TestAnswerCompletionUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")

	qa, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.NoError(t, err)

	err = env.db.Callback().Update().Before("gorm:update").Register("test:fail_completed", func(tx *gorm.DB) {
		if m, ok := tx.Statement.Dest.(map[string]interface{}); ok && m["status"] == string(models.QuestionCompleted) {
			_ = tx.AddError(errors.New("connection reset by peer"))
		}
	})
	require.NoError(t, err)

	a := env.answerer(fake.NewFakeLLM([]string{"It says hello world."}))
	require.ErrorContains(t, a.Answer(ctx, qa.ID, doc.ID, qa.Question), "connection reset by peer")

	got, err := env.service.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionFailed, got.Status)
	require.NotNil(t, got.Answer)
	assert.Equal(t, FailedAnswer, *got.Answer)
	require.NotNil(t, got.ErrorMessage)
	assert.True(t, strings.HasPrefix(*got.ErrorMessage, "error: failed to complete question: "))
}

func TestAnswerMissingCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")

	qa, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.NoError(t, err)
	require.NoError(t, env.index.Drop(ctx, doc.Collection()))

	a := env.answerer(fake.NewFakeLLM([]string{"unused"}))
	err = a.Answer(ctx, qa.ID, doc.ID, qa.Question)
	require.ErrorIs(t, err, models.ErrNotFound)

	got, err := env.service.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionFailed, got.Status)
}

func TestAnswerSkipsNonPendingQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")

	qa, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.NoError(t, err)

	a := env.answerer(fake.NewFakeLLM([]string{"first", "second"}))
	require.NoError(t, a.Answer(ctx, qa.ID, doc.ID, qa.Question))
	require.NoError(t, a.Answer(ctx, qa.ID, doc.ID, qa.Question))
	assert.True(t, env.log.HasMessage("WARN", "Question is not pending, skipping"))

	got, err := env.service.Get(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", *got.Answer)
}

func TestAnswerMissingQuestion(t *testing.T) {
	env := newTestEnv(t)

	a := env.answerer(fake.NewFakeLLM([]string{"unused"}))
	require.NoError(t, a.Answer(context.Background(), uuid.New(), uuid.New(), "anything"))
	assert.True(t, env.log.HasMessage("WARN", "Question no longer exists, skipping"))
}

func TestAskRejectsDocumentNotCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	processing := &models.Document{Filename: "slow.pdf", File: "documents/a/slow.pdf", Status: models.DocumentProcessing}
	require.NoError(t, env.docRepo.Create(ctx, processing))

	_, err := env.service.Ask(ctx, processing.ID, "Is it ready?")
	require.ErrorIs(t, err, models.ErrValidation)

	failed := env.ingested(t, "data.xyz", "a,b,c")
	require.Equal(t, models.DocumentFailed, failed.Status)
	_, err = env.service.Ask(ctx, failed.ID, "Is it ready?")
	require.ErrorIs(t, err, models.ErrValidation)

	all, err := env.service.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, env.queue.Tasks())
}

func TestAskValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")

	_, err := env.service.Ask(ctx, doc.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.service.Ask(ctx, uuid.Nil, "question")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.service.Ask(ctx, uuid.New(), "question")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAskRollsBackWhenDispatchFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.ingested(t, "notes.txt", "hello world")
	env.queue.FailWith(errors.New("redis down"))

	_, err := env.service.Ask(ctx, doc.ID, "What does it say?")
	require.ErrorIs(t, err, models.ErrDispatch)

	all, err := env.service.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListFilterAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.ingested(t, "notes.txt", "hello world")
	second := env.ingested(t, "other.txt", "other content")

	q1, err := env.service.Ask(ctx, first.ID, "one")
	require.NoError(t, err)
	_, err = env.service.Ask(ctx, second.ID, "two")
	require.NoError(t, err)

	filtered, err := env.service.List(ctx, &first.ID)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, q1.ID, filtered[0].ID)

	env.queue.Drain()
	require.NoError(t, env.service.RequestDelete(ctx, q1.ID))
	tasks := env.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskTypeQuestionDelete, tasks[0].Type)

	a := env.answerer(fake.NewFakeLLM(nil))
	require.NoError(t, a.Purge(ctx, q1.ID))
	_, err = env.service.Get(ctx, q1.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// the document and its index are untouched
	kept, err := env.documents.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCompleted, kept.Status)
	assert.Equal(t, first.ChunkCount, kept.ChunkCount)
	n, err := env.index.Count(ctx, first.Collection())
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, n)

	require.NoError(t, a.Purge(ctx, q1.ID))
	assert.True(t, env.log.HasMessage("WARN", "Question already deleted"))

	assert.ErrorIs(t, env.service.RequestDelete(ctx, uuid.New()), models.ErrNotFound)
}
