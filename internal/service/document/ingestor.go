package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"

	"github.com/feichai0017/rag-service/internal/agent"
	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/internal/vectorindex"
	"github.com/feichai0017/rag-service/pkg/logger"
	"github.com/feichai0017/rag-service/pkg/storage"
)

const (
	MessageProcessing = "Parsing and vectorizing document..."
	MessageCompleted  = "Document processed."

	MetadataSourceFileID   = "source_file_id"
	MetadataSourceFilename = "source_filename"
)

// Ingestor runs the worker side of the document lifecycle: ingestion into the
// vector index and deletion.
type Ingestor struct {
	documents *store.DocumentRepository
	storage   storage.Storage
	factory   *agent.ProcessorFactory
	chunker   *agent.Chunker
	vectors   vectorindex.Index
	logger    logger.Logger
}

func NewIngestor(
	documents *store.DocumentRepository,
	storage storage.Storage,
	factory *agent.ProcessorFactory,
	chunker *agent.Chunker,
	vectors vectorindex.Index,
	logger logger.Logger,
) *Ingestor {
	return &Ingestor{
		documents: documents,
		storage:   storage,
		factory:   factory,
		chunker:   chunker,
		vectors:   vectors,
		logger:    logger,
	}
}

// Ingest moves an UPLOADED document to PROCESSING, indexes it and records the
// outcome. A missing or already claimed document ends the task without changes.
func (i *Ingestor) Ingest(ctx context.Context, documentID uuid.UUID) error {
	log := logger.FromContext(ctx, i.logger).With(logger.String("documentId", documentID.String()))

	if err := i.documents.MarkProcessing(ctx, documentID, MessageProcessing); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			log.Warn("Document no longer exists, skipping ingestion")
			return nil
		case errors.Is(err, models.ErrInvalidTransition):
			log.Warn("Document is not awaiting ingestion, skipping")
			return nil
		}
		return fmt.Errorf("failed to claim document: %w", err)
	}

	doc, err := i.documents.Get(ctx, documentID)
	if err != nil {
		i.fail(ctx, log, documentID, err)
		return err
	}

	log.Info("Processing document",
		logger.String("filename", doc.Filename),
		logger.String("file", doc.File),
	)

	count, err := i.index(ctx, doc)
	if err != nil {
		i.fail(ctx, log, documentID, err)
		return err
	}

	if err := i.documents.MarkCompleted(ctx, documentID, count, MessageCompleted); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Document deleted during ingestion, dropping its collection")
			i.dropCollection(ctx, log, doc.Collection())
			return nil
		}
		err = fmt.Errorf("failed to complete document: %w", err)
		i.dropCollection(ctx, log, doc.Collection())
		i.fail(ctx, log, documentID, err)
		return err
	}

	log.Info("Document processed", logger.Int("chunks", count))
	return nil
}

// index extracts, splits and stores the document and returns the chunk count.
func (i *Ingestor) index(ctx context.Context, doc *models.Document) (int, error) {
	processor, err := i.factory.GetProcessor(doc.Extension())
	if err != nil {
		return 0, err
	}

	rc, err := i.storage.Get(ctx, doc.File)
	if err != nil {
		return 0, fmt.Errorf("failed to get file: %w", err)
	}
	defer rc.Close()

	pages, err := processor.Process(ctx, rc)
	if err != nil {
		return 0, fmt.Errorf("failed to process document: %w", err)
	}
	stampSource(pages, doc)

	chunks, err := i.chunker.Split(pages)
	if err != nil {
		return 0, fmt.Errorf("failed to split document: %w", err)
	}
	if len(chunks) == 0 {
		return 0, models.ErrEmptyContent
	}

	return i.vectors.Create(ctx, doc.Collection(), chunks)
}

// dropCollection removes a collection whose document will never reach COMPLETED.
func (i *Ingestor) dropCollection(ctx context.Context, log logger.Logger, name string) {
	if err := i.vectors.Drop(context.WithoutCancel(ctx), name); err != nil {
		log.Error("Failed to drop orphaned collection", logger.Error(err), logger.String("collection", name))
	}
}

// fail records a FAILED outcome. The update is best effort and a document deleted
// in the meantime is ignored.
func (i *Ingestor) fail(ctx context.Context, log logger.Logger, documentID uuid.UUID, cause error) {
	log.Error("Document processing failed", logger.Error(cause))

	err := i.documents.MarkFailed(context.WithoutCancel(ctx), documentID, "processing failed: "+cause.Error())
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Error("Failed to record processing failure", logger.Error(err))
	}
}

// Purge deletes the document with its question answers, then its collection and file.
func (i *Ingestor) Purge(ctx context.Context, documentID uuid.UUID, file string) error {
	log := logger.FromContext(ctx, i.logger).With(logger.String("documentId", documentID.String()))

	if err := i.documents.Delete(ctx, documentID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Document already deleted")
			return nil
		}
		return err
	}

	if err := i.vectors.Drop(ctx, models.CollectionName(documentID)); err != nil {
		log.Error("Failed to drop document collection", logger.Error(err))
	}

	if file != "" {
		if err := i.storage.Delete(ctx, file); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}

	log.Info("Document deleted", logger.String("file", file))
	return nil
}

func stampSource(pages []schema.Document, doc *models.Document) {
	for n := range pages {
		if pages[n].Metadata == nil {
			pages[n].Metadata = make(map[string]any)
		}
		pages[n].Metadata[MetadataSourceFileID] = doc.ID.String()
		pages[n].Metadata[MetadataSourceFilename] = doc.Filename
	}
}
