package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/utils/validator"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
	"github.com/feichai0017/rag-service/pkg/storage"
)

// filePrefix is the storage key prefix of uploaded files: documents/<id>/<filename>.
const filePrefix = "documents"

// Service handles the request side of the document lifecycle. It writes records
// and dispatches tasks; the work itself happens in Ingestor.
type Service struct {
	documents *store.DocumentRepository
	storage   storage.Storage
	queue     queue.Queue
	validator *validator.DocumentValidator
	logger    logger.Logger
}

func NewService(
	documents *store.DocumentRepository,
	storage storage.Storage,
	queue queue.Queue,
	validator *validator.DocumentValidator,
	logger logger.Logger,
) *Service {
	return &Service{
		documents: documents,
		storage:   storage,
		queue:     queue,
		validator: validator,
		logger:    logger,
	}
}

// Upload stores the file, creates an UPLOADED document and enqueues its ingestion.
// When the task cannot be enqueued the record and file are removed again and an
// error wrapping models.ErrDispatch is returned.
func (s *Service) Upload(ctx context.Context, file io.ReadSeeker, filename string, size int64) (*models.Document, error) {
	log := logger.FromContext(ctx, s.logger)
	log.Info("Starting file upload",
		logger.String("filename", filename),
		logger.Int64("size", size),
	)

	result, err := s.validator.Validate(file, filename, size)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if !result.IsValid {
		log.Warn("File validation failed",
			logger.String("filename", filename),
			logger.String("reason", result.Error()),
		)
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, result.Error())
	}

	info := result.FileInfo
	id := uuid.New()
	key, err := s.storage.Store(ctx, file, path.Join(filePrefix, id.String(), info.Filename))
	if err != nil {
		log.Error("Failed to store file",
			logger.String("filename", info.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &models.Document{
		ID:          id,
		File:        key,
		Filename:    info.Filename,
		Size:        info.Size,
		ContentType: info.MimeType,
		Checksum:    info.Hash,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.removeFile(ctx, log, key)
		return nil, err
	}

	task, err := queue.NewDocumentIngestTask(doc.ID)
	if err == nil {
		err = s.queue.Enqueue(ctx, task)
	}
	if err != nil {
		log.Error("Failed to enqueue ingestion, rolling back upload",
			logger.String("documentId", doc.ID.String()),
			logger.Error(err),
		)
		rollback := context.WithoutCancel(ctx)
		if delErr := s.documents.Delete(rollback, doc.ID); delErr != nil {
			log.Error("Failed to roll back document", logger.Error(delErr))
		}
		s.removeFile(rollback, log, key)
		return nil, fmt.Errorf("%w: %v", models.ErrDispatch, err)
	}

	log.Info("Document uploaded",
		logger.String("documentId", doc.ID.String()),
		logger.String("taskId", task.ID),
		logger.String("filename", doc.Filename),
	)
	return doc, nil
}

func (s *Service) List(ctx context.Context) ([]models.Document, error) {
	return s.documents.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.documents.Get(ctx, id)
}

// Open returns the document and a reader over its stored file. The caller closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(ctx, doc.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return doc, rc, nil
}

// RequestDelete enqueues deletion of an existing document.
func (s *Service) RequestDelete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.enqueueDelete(ctx, doc)
}

// PurgeFailed enqueues deletion of FAILED documents uploaded more than retention ago
// and returns how many were scheduled.
func (s *Service) PurgeFailed(ctx context.Context, retention time.Duration) (int, error) {
	threshold := time.Now().UTC().Add(-retention)
	docs, err := s.documents.ListFailedBefore(ctx, threshold)
	if err != nil {
		return 0, err
	}

	var scheduled int
	for i := range docs {
		if err := s.enqueueDelete(ctx, &docs[i]); err != nil {
			return scheduled, err
		}
		scheduled++
	}

	s.logger.Info("Completed failed document cleanup",
		logger.Time("threshold", threshold),
		logger.Int("scheduled", scheduled),
	)
	return scheduled, nil
}

// RemoveOrphanFiles deletes stored files older than olderThan whose document record
// no longer exists and returns how many were removed. Keys outside the
// documents/<id>/ layout are left alone.
func (s *Service) RemoveOrphanFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan)

	var orphans []string
	err := s.storage.Walk(ctx, filePrefix+"/", func(key string, modified time.Time) error {
		if !modified.Before(threshold) {
			return nil
		}
		id, ok := documentIDFromKey(key)
		if !ok {
			return nil
		}
		_, err := s.documents.Get(ctx, id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, models.ErrNotFound):
			orphans = append(orphans, key)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan stored files: %w", err)
	}

	var removed int
	for _, key := range orphans {
		if err := s.storage.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}

	s.logger.Info("Completed orphaned file cleanup",
		logger.Time("threshold", threshold),
		logger.Int("removed", removed),
	)
	return removed, nil
}

func documentIDFromKey(key string) (uuid.UUID, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != filePrefix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Service) enqueueDelete(ctx context.Context, doc *models.Document) error {
	task, err := queue.NewDocumentDeleteTask(doc.ID, doc.File)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDispatch, err)
	}
	logger.FromContext(ctx, s.logger).Info("Document deletion requested",
		logger.String("documentId", doc.ID.String()),
		logger.String("taskId", task.ID),
	)
	return nil
}

func (s *Service) removeFile(ctx context.Context, log logger.Logger, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		log.Error("Failed to remove stored file",
			logger.String("file", key),
			logger.Error(err),
		)
	}
}
