package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/internal/models"
)

type QuestionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) Create(ctx context.Context, qa *models.QuestionAnswer) error {
	if qa.ID == uuid.Nil {
		qa.ID = uuid.New()
	}
	if qa.Status == "" {
		qa.Status = models.QuestionPending
	}
	if qa.CreatedAt.IsZero() {
		qa.CreatedAt = time.Now().UTC()
	}
	if qa.SourceDocuments == nil {
		qa.SourceDocuments = datatypes.JSONSlice[models.Citation]{}
	}
	if err := r.db.WithContext(ctx).Omit("Document").Create(qa).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// Get loads the question with its owning document.
func (r *QuestionRepository) Get(ctx context.Context, id uuid.UUID) (*models.QuestionAnswer, error) {
	var qa models.QuestionAnswer
	err := r.db.WithContext(ctx).Preload("Document").Where("id = ?", id).First(&qa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &qa, nil
}

// List returns questions newest first, optionally only those of one document.
func (r *QuestionRepository) List(ctx context.Context, documentID *uuid.UUID) ([]models.QuestionAnswer, error) {
	q := r.db.WithContext(ctx).Preload("Document").Order("created_at DESC")
	if documentID != nil {
		q = q.Where("document_id = ?", *documentID)
	}

	var out []models.QuestionAnswer
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return out, nil
}

func (r *QuestionRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.QuestionStatus, fields map[string]interface{}) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return transition(ctx, r.db, &models.QuestionAnswer{}, id, string(from), string(to), fields)
}

func (r *QuestionRepository) MarkAnswering(ctx context.Context, id uuid.UUID) error {
	return r.Transition(ctx, id, models.QuestionPending, models.QuestionAnswering, nil)
}

func (r *QuestionRepository) MarkCompleted(ctx context.Context, id uuid.UUID, answer string, citations []models.Citation) error {
	if citations == nil {
		citations = []models.Citation{}
	}
	return r.Transition(ctx, id, models.QuestionAnswering, models.QuestionCompleted, map[string]interface{}{
		"answer":           answer,
		"source_documents": datatypes.JSONSlice[models.Citation](citations),
		"error_message":    nil,
	})
}

func (r *QuestionRepository) MarkFailed(ctx context.Context, id uuid.UUID, answer, errorMessage string) error {
	return r.Transition(ctx, id, models.QuestionAnswering, models.QuestionFailed, map[string]interface{}{
		"answer":        answer,
		"error_message": errorMessage,
	})
}

func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.QuestionAnswer{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	return nil
}
