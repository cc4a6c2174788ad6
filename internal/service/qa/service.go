// Package qa owns the question-answer lifecycle: validating and dispatching
// questions, answering them in the worker and deleting them.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
)

type Service struct {
	questions *store.QuestionRepository
	documents *store.DocumentRepository
	queue     queue.Queue
	logger    logger.Logger
}

func NewService(
	questions *store.QuestionRepository,
	documents *store.DocumentRepository,
	queue queue.Queue,
	logger logger.Logger,
) *Service {
	return &Service{
		questions: questions,
		documents: documents,
		queue:     queue,
		logger:    logger,
	}
}

// Ask records a PENDING question against a COMPLETED document and enqueues it for
// answering. Nothing is created when validation fails; a record whose task cannot
// be enqueued is removed again.
func (s *Service) Ask(ctx context.Context, documentID uuid.UUID, question string) (*models.QuestionAnswer, error) {
	log := logger.FromContext(ctx, s.logger)

	question = strings.TrimSpace(question)
	if documentID == uuid.Nil || question == "" {
		return nil, fmt.Errorf("%w: document and question are required", models.ErrValidation)
	}

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentCompleted {
		return nil, fmt.Errorf("%w: document %s is not ready for questions (status: %s)",
			models.ErrValidation, doc.ID, doc.Status)
	}

	qa := &models.QuestionAnswer{
		DocumentID: doc.ID,
		Question:   question,
	}
	if err := s.questions.Create(ctx, qa); err != nil {
		return nil, err
	}
	qa.Document = doc

	task, err := queue.NewQuestionAnswerTask(qa.ID, doc.ID, question)
	if err == nil {
		err = s.queue.Enqueue(ctx, task)
	}
	if err != nil {
		log.Error("Failed to enqueue question, rolling back",
			logger.String("questionId", qa.ID.String()),
			logger.Error(err),
		)
		if delErr := s.questions.Delete(context.WithoutCancel(ctx), qa.ID); delErr != nil {
			log.Error("Failed to roll back question", logger.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrDispatch, err)
	}

	log.Info("Question submitted",
		logger.String("questionId", qa.ID.String()),
		logger.String("documentId", doc.ID.String()),
		logger.String("taskId", task.ID),
	)
	return qa, nil
}

// List returns questions newest first, optionally only those asked of one document.
func (s *Service) List(ctx context.Context, documentID *uuid.UUID) ([]models.QuestionAnswer, error) {
	return s.questions.List(ctx, documentID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.QuestionAnswer, error) {
	return s.questions.Get(ctx, id)
}

// RequestDelete enqueues deletion of an existing question.
func (s *Service) RequestDelete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.questions.Get(ctx, id); err != nil {
		return err
	}

	task, err := queue.NewQuestionDeleteTask(id)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDispatch, err)
	}

	logger.FromContext(ctx, s.logger).Info("Question deletion requested",
		logger.String("questionId", id.String()),
		logger.String("taskId", task.ID),
	)
	return nil
}
