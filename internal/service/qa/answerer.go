package qa

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/feichai0017/rag-service/internal/agent/llm"
	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/vectorindex"
	"github.com/feichai0017/rag-service/pkg/converters"
	"github.com/feichai0017/rag-service/pkg/logger"
)

// FailedAnswer is stored as the answer of a question that could not be answered.
const FailedAnswer = "Unable to generate an answer. Please check the server logs or try again."

// Answerer runs the worker side of the question lifecycle.
type Answerer struct {
	questions *store.QuestionRepository
	documents *store.DocumentRepository
	index     vectorindex.Index
	generator *llm.Generator
	converter *converters.CitationConverter
	logger    logger.Logger
}

func NewAnswerer(
	questions *store.QuestionRepository,
	documents *store.DocumentRepository,
	index vectorindex.Index,
	generator *llm.Generator,
	converter *converters.CitationConverter,
	logger logger.Logger,
) *Answerer {
	return &Answerer{
		questions: questions,
		documents: documents,
		index:     index,
		generator: generator,
		converter: converter,
		logger:    logger,
	}
}

// Answer moves a PENDING question to ANSWERING, runs retrieval QA against the
// document's collection and records the answer or the failure.
func (a *Answerer) Answer(ctx context.Context, questionID, documentID uuid.UUID, question string) error {
	log := logger.FromContext(ctx, a.logger).With(
		logger.String("questionId", questionID.String()),
		logger.String("documentId", documentID.String()),
	)

	if err := a.questions.MarkAnswering(ctx, questionID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			log.Warn("Question no longer exists, skipping")
			return nil
		case errors.Is(err, models.ErrInvalidTransition):
			log.Warn("Question is not pending, skipping")
			return nil
		}
		return fmt.Errorf("failed to claim question: %w", err)
	}

	answer, citations, err := a.generate(ctx, documentID, question)
	if err != nil {
		a.fail(ctx, log, questionID, err)
		return err
	}

	if err := a.questions.MarkCompleted(ctx, questionID, answer, citations); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Question deleted while answering")
			return nil
		}
		err = fmt.Errorf("failed to complete question: %w", err)
		a.fail(ctx, log, questionID, err)
		return err
	}

	log.Info("Question answered", logger.Int("citations", len(citations)))
	return nil
}

func (a *Answerer) generate(ctx context.Context, documentID uuid.UUID, question string) (string, []models.Citation, error) {
	doc, err := a.documents.Get(ctx, documentID)
	if err != nil {
		return "", nil, err
	}

	vs, err := a.index.Open(ctx, doc.Collection())
	if err != nil {
		return "", nil, err
	}

	out, err := a.generator.Answer(ctx, vs, question)
	if err != nil {
		return "", nil, err
	}
	return out.Text, a.converter.Convert(out.Sources), nil
}

func (a *Answerer) fail(ctx context.Context, log logger.Logger, questionID uuid.UUID, cause error) {
	log.Error("Answer generation failed", logger.Error(cause))

	err := a.questions.MarkFailed(context.WithoutCancel(ctx), questionID, FailedAnswer, "error: "+cause.Error())
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Error("Failed to record answer failure", logger.Error(err))
	}
}

// Purge deletes a single question.
func (a *Answerer) Purge(ctx context.Context, questionID uuid.UUID) error {
	log := logger.FromContext(ctx, a.logger).With(logger.String("questionId", questionID.String()))

	if err := a.questions.Delete(ctx, questionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Question already deleted")
			return nil
		}
		return err
	}

	log.Info("Question deleted")
	return nil
}
