package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

// DocumentService is the request side of the document lifecycle.
type DocumentService interface {
	Upload(ctx context.Context, file io.ReadSeeker, filename string, size int64) (*models.Document, error)
	List(ctx context.Context) ([]models.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Open(ctx context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error)
	RequestDelete(ctx context.Context, id uuid.UUID) error
}

// QuestionService is the request side of the question lifecycle.
type QuestionService interface {
	Ask(ctx context.Context, documentID uuid.UUID, question string) (*models.QuestionAnswer, error)
	List(ctx context.Context, documentID *uuid.UUID) ([]models.QuestionAnswer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.QuestionAnswer, error)
	RequestDelete(ctx context.Context, id uuid.UUID) error
}

type Handlers struct {
	Document *DocumentHandler
	Question *QuestionHandler
	Health   *HealthHandler
}

func NewHandlers(
	documents DocumentService,
	questions QuestionService,
	checks map[string]Check,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documents, logger),
		Question: NewQuestionHandler(questions, logger),
		Health:   NewHealthHandler(checks, logger),
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const (
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeUnavailable = "service_unavailable"
	codeInternal    = "internal_error"
)

// handleError maps err onto a status code, logs it and writes an ErrorResponse.
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status, code := http.StatusInternalServerError, codeInternal
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, models.ErrValidation):
		status, code = http.StatusBadRequest, codeValidation
	case errors.Is(err, models.ErrDispatch):
		status, code = http.StatusServiceUnavailable, codeUnavailable
	}

	reqLog := logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		reqLog.Error(message, fields...)
	} else {
		reqLog.Warn(message, fields...)
	}

	response := ErrorResponse{Error: code, Message: message}
	if status < http.StatusInternalServerError {
		response.Message = err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, response)
}

// idParam parses the :id path parameter. A malformed id cannot name a record, so
// it is reported as not found.
func idParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, models.ErrNotFound
	}
	return id, nil
}
