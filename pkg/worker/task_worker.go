package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
)

// DocumentHandler runs the document lifecycle tasks.
type DocumentHandler interface {
	Ingest(ctx context.Context, documentID uuid.UUID) error
	Purge(ctx context.Context, documentID uuid.UUID, file string) error
}

// QuestionHandler runs the question lifecycle tasks.
type QuestionHandler interface {
	Answer(ctx context.Context, questionID, documentID uuid.UUID, question string) error
	Purge(ctx context.Context, questionID uuid.UUID) error
}

// TaskWorker consumes ingestion, answering and deletion tasks. Handler errors are
// terminal for the task: they are logged and the task completes, so asynq never
// retries. Only an undecodable payload fails the task.
type TaskWorker struct {
	BaseWorker
	documents DocumentHandler
	questions QuestionHandler
}

func NewTaskWorker(cfg *Config, documents DocumentHandler, questions QuestionHandler, log logger.Logger) *TaskWorker {
	w := &TaskWorker{
		BaseWorker: newBaseWorker(cfg, log),
		documents:  documents,
		questions:  questions,
	}
	w.registerHandlers(w.mux)
	return w
}

func (w *TaskWorker) registerHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypeDocumentIngest, w.handleDocumentIngest)
	mux.HandleFunc(queue.TaskTypeDocumentDelete, w.handleDocumentDelete)
	mux.HandleFunc(queue.TaskTypeQuestionAnswer, w.handleQuestionAnswer)
	mux.HandleFunc(queue.TaskTypeQuestionDelete, w.handleQuestionDelete)
}

func (w *TaskWorker) handleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var p queue.DocumentIngestPayload
	ctx, log, err := w.begin(ctx, t, &p)
	if err != nil {
		return err
	}
	log = log.With(logger.String("documentId", p.DocumentID.String()))

	return w.finish(t, log, w.documents.Ingest(ctx, p.DocumentID))
}

func (w *TaskWorker) handleDocumentDelete(ctx context.Context, t *asynq.Task) error {
	var p queue.DocumentDeletePayload
	ctx, log, err := w.begin(ctx, t, &p)
	if err != nil {
		return err
	}
	log = log.With(logger.String("documentId", p.DocumentID.String()))

	return w.finish(t, log, w.documents.Purge(ctx, p.DocumentID, p.File))
}

func (w *TaskWorker) handleQuestionAnswer(ctx context.Context, t *asynq.Task) error {
	var p queue.QuestionAnswerPayload
	ctx, log, err := w.begin(ctx, t, &p)
	if err != nil {
		return err
	}
	log = log.With(
		logger.String("questionId", p.QuestionID.String()),
		logger.String("documentId", p.DocumentID.String()),
	)

	return w.finish(t, log, w.questions.Answer(ctx, p.QuestionID, p.DocumentID, p.Question))
}

func (w *TaskWorker) handleQuestionDelete(ctx context.Context, t *asynq.Task) error {
	var p queue.QuestionDeletePayload
	ctx, log, err := w.begin(ctx, t, &p)
	if err != nil {
		return err
	}
	log = log.With(logger.String("questionId", p.QuestionID.String()))

	return w.finish(t, log, w.questions.Purge(ctx, p.QuestionID))
}

// begin decodes the payload and tags the context with the task id.
func (w *TaskWorker) begin(ctx context.Context, t *asynq.Task, payload interface{}) (context.Context, logger.Logger, error) {
	if taskID, ok := asynq.GetTaskID(ctx); ok {
		ctx = logger.ContextWithRequestID(ctx, taskID)
	}
	log := logger.FromContext(ctx, w.logger).With(logger.String("taskType", t.Type()))

	if err := json.Unmarshal(t.Payload(), payload); err != nil {
		log.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return ctx, log, fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	log.Info("Received task")
	writeResult(t, log, `{"status":"running"}`)
	return ctx, log, nil
}

func (w *TaskWorker) finish(t *asynq.Task, log logger.Logger, err error) error {
	if err != nil {
		log.Error("Task finished with error", logger.Error(err))
		writeResult(t, log, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		return nil
	}
	log.Info("Task completed")
	writeResult(t, log, `{"status":"completed"}`)
	return nil
}

func writeResult(t *asynq.Task, log logger.Logger, result string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(result)); err != nil {
		log.Warn("Failed to write task result", logger.Error(err))
	}
}
