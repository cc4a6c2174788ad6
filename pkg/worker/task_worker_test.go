package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
)

type recorder struct {
	calls []string
	ids   []uuid.UUID
	err   error
}

func (r *recorder) Ingest(ctx context.Context, documentID uuid.UUID) error {
	r.calls = append(r.calls, "ingest")
	r.ids = append(r.ids, documentID)
	return r.err
}

func (r *recorder) Answer(ctx context.Context, questionID, documentID uuid.UUID, question string) error {
	r.calls = append(r.calls, "answer:"+question)
	r.ids = append(r.ids, questionID, documentID)
	return r.err
}

type documentPurger struct{ *recorder }

func (d documentPurger) Purge(ctx context.Context, documentID uuid.UUID, file string) error {
	d.calls = append(d.calls, "purge-document:"+file)
	d.ids = append(d.ids, documentID)
	return d.err
}

type questionPurger struct{ *recorder }

func (q questionPurger) Purge(ctx context.Context, questionID uuid.UUID) error {
	q.calls = append(q.calls, "purge-question")
	q.ids = append(q.ids, questionID)
	return q.err
}

func newTestWorker(rec *recorder) (*TaskWorker, *asynq.ServeMux, *logger.TestLogger) {
	log := logger.NewTestLogger()
	w := &TaskWorker{
		BaseWorker: BaseWorker{logger: log},
		documents:  documentPurger{rec},
		questions:  questionPurger{rec},
	}
	mux := asynq.NewServeMux()
	w.registerHandlers(mux)
	return w, mux, log
}

func toAsynq(t *testing.T, task *queue.Task) *asynq.Task {
	t.Helper()
	return asynq.NewTask(task.Type, task.Payload)
}

func TestHandlersDispatch(t *testing.T) {
	rec := &recorder{}
	_, mux, _ := newTestWorker(rec)
	ctx := context.Background()

	docID, qID := uuid.New(), uuid.New()

	ingest, err := queue.NewDocumentIngestTask(docID)
	require.NoError(t, err)
	answer, err := queue.NewQuestionAnswerTask(qID, docID, "what is this about?")
	require.NoError(t, err)
	delDoc, err := queue.NewDocumentDeleteTask(docID, "documents/x/notes.txt")
	require.NoError(t, err)
	delQ, err := queue.NewQuestionDeleteTask(qID)
	require.NoError(t, err)

	for _, task := range []*queue.Task{ingest, answer, delDoc, delQ} {
		require.NoError(t, mux.ProcessTask(ctx, toAsynq(t, task)))
	}

	assert.Equal(t, []string{
		"ingest",
		"answer:what is this about?",
		"purge-document:documents/x/notes.txt",
		"purge-question",
	}, rec.calls)
	assert.Equal(t, []uuid.UUID{docID, qID, docID, docID, qID}, rec.ids)
}

func TestHandlerErrorsDoNotFailTask(t *testing.T) {
	rec := &recorder{err: errors.New("vector store down")}
	_, mux, log := newTestWorker(rec)

	task, err := queue.NewDocumentIngestTask(uuid.New())
	require.NoError(t, err)

	assert.NoError(t, mux.ProcessTask(context.Background(), toAsynq(t, task)))
	assert.True(t, log.HasMessage("ERROR", "Task finished with error"))
}

func TestBadPayloadSkipsRetry(t *testing.T) {
	rec := &recorder{}
	_, mux, _ := newTestWorker(rec)

	err := mux.ProcessTask(context.Background(), asynq.NewTask(queue.TaskTypeQuestionAnswer, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, rec.calls)
}
