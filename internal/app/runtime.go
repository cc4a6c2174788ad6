// Package app wires the shared process dependencies for the server, worker and
// ragctl binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/service/document"
	"github.com/feichai0017/rag-service/internal/service/qa"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/utils/validator"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/queue"
	"github.com/feichai0017/rag-service/pkg/storage"
)

// NewLogger builds the process logger from cfg and names it after the binary.
func NewLogger(cfg *config.Config, name string) (logger.Logger, error) {
	log, err := logger.NewLogger(
		logger.WithConfig(cfg.Logging),
		logger.WithField("service", name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log.Named(name), nil
}

// Runtime holds the handles constructed once per process.
type Runtime struct {
	Config    *config.Config
	Logger    logger.Logger
	DB        *gorm.DB
	Documents *store.DocumentRepository
	Questions *store.QuestionRepository
	Storage   storage.Storage
	Queue     queue.Queue
}

// New opens the database, file storage and task queue.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	db, err := store.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	files, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		_ = store.Close(db)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &Runtime{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Documents: store.NewDocumentRepository(db),
		Questions: store.NewQuestionRepository(db),
		Storage:   files,
		Queue:     NewQueue(cfg),
	}, nil
}

// NewQueue creates the asynq dispatcher described by cfg.
func NewQueue(cfg *config.Config) *queue.AsynqQueue {
	return queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		ProcessTimeout: cfg.Worker.TaskTimeout,
		Retention:      cfg.Worker.TaskRetention,
	})
}

func (r *Runtime) DocumentService() *document.Service {
	v := validator.NewDocumentValidator(r.Logger, &validator.ValidatorConfig{
		MaxFileSize: r.Config.Storage.MaxUploadSizeBytes(),
	})
	return document.NewService(r.Documents, r.Storage, r.Queue, v, r.Logger)
}

func (r *Runtime) QuestionService() *qa.Service {
	return qa.NewService(r.Questions, r.Documents, r.Queue, r.Logger)
}

// Close releases the queue and database handles.
func (r *Runtime) Close() error {
	return errors.Join(r.Queue.Close(), store.Close(r.DB))
}
