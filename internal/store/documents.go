package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/internal/models"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentUploaded
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// List returns all documents, newest first.
func (r *DocumentRepository) List(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.WithContext(ctx).Order("uploaded_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// ListFailedBefore returns FAILED documents uploaded before threshold.
func (r *DocumentRepository) ListFailedBefore(ctx context.Context, threshold time.Time) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("status = ? AND uploaded_at < ?", models.DocumentFailed, threshold).
		Order("uploaded_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed documents: %w", err)
	}
	return docs, nil
}

// Transition moves a document from one status to another, setting fields in the same update.
func (r *DocumentRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.DocumentStatus, fields map[string]interface{}) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return transition(ctx, r.db, &models.Document{}, id, string(from), string(to), fields)
}

// MarkProcessing claims an UPLOADED document for ingestion.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id uuid.UUID, message string) error {
	return r.Transition(ctx, id, models.DocumentUploaded, models.DocumentProcessing, map[string]interface{}{
		"processing_message": message,
	})
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, chunks int, message string) error {
	return r.Transition(ctx, id, models.DocumentProcessing, models.DocumentCompleted, map[string]interface{}{
		"processing_message": message,
		"chunk_count":        chunks,
	})
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.Transition(ctx, id, models.DocumentProcessing, models.DocumentFailed, map[string]interface{}{
		"processing_message": message,
	})
}

// Delete removes the document and its question answers in one transaction.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.QuestionAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to delete question answers: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Document{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete document: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
		}
		return nil
	})
}
