package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

type DocumentHandler struct {
	service DocumentService
	logger  logger.Logger
}

type DocumentResponse struct {
	ID                string  `json:"id"`
	File              string  `json:"file"`
	Filename          string  `json:"filename"`
	Size              int64   `json:"size"`
	ContentType       string  `json:"content_type"`
	Checksum          string  `json:"checksum"`
	UploadedAt        string  `json:"uploaded_at"`
	Status            string  `json:"status"`
	ProcessingMessage *string `json:"processing_message"`
	ChunkCount        int     `json:"chunk_count"`
}

func NewDocumentHandler(service DocumentService, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

func newDocumentResponse(doc *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:                doc.ID.String(),
		File:              doc.File,
		Filename:          doc.Filename,
		Size:              doc.Size,
		ContentType:       doc.ContentType,
		Checksum:          doc.Checksum,
		UploadedAt:        doc.UploadedAt.UTC().Format(time.RFC3339Nano),
		Status:            string(doc.Status),
		ProcessingMessage: doc.ProcessingMessage,
		ChunkCount:        doc.ChunkCount,
	}
}

// List returns all documents, newest first.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.service.List(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to list documents", err)
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i := range docs {
		out[i] = newDocumentResponse(&docs[i])
	}
	c.JSON(http.StatusOK, out)
}

// Upload accepts a multipart "file" and schedules its ingestion.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		handleError(c, h.logger, "Invalid file upload", fmt.Errorf("%w: file is required", models.ErrValidation))
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(c.Request.Context(), file, header.Filename, header.Size)
	if err != nil {
		handleError(c, h.logger, "Failed to upload document", err)
		return
	}

	c.JSON(http.StatusCreated, newDocumentResponse(doc))
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		handleError(c, h.logger, "Document not found", err)
		return
	}

	doc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to get document", err)
		return
	}

	c.JSON(http.StatusOK, newDocumentResponse(doc))
}

// Download streams the original upload.
func (h *DocumentHandler) Download(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		handleError(c, h.logger, "Document not found", err)
		return
	}

	doc, rc, err := h.service.Open(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to open document", err)
		return
	}
	defer rc.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})

	c.DataFromReader(http.StatusOK, doc.Size, contentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

// Delete schedules deletion of the document, its questions, collection and file.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		handleError(c, h.logger, "Document not found", err)
		return
	}

	if err := h.service.RequestDelete(c.Request.Context(), id); err != nil {
		handleError(c, h.logger, "Failed to delete document", err)
		return
	}

	c.Status(http.StatusNoContent)
}
