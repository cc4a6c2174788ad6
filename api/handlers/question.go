package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

type QuestionHandler struct {
	service QuestionService
	logger  logger.Logger
}

// AskRequest is accepted as JSON or form data. Other fields are ignored.
type AskRequest struct {
	Document string `json:"document" form:"document"`
	Question string `json:"question" form:"question"`
}

type QuestionResponse struct {
	ID               string            `json:"id"`
	Document         string            `json:"document"`
	DocumentFilename string            `json:"document_filename"`
	Question         string            `json:"question"`
	Answer           *string           `json:"answer"`
	SourceDocuments  []models.Citation `json:"source_documents"`
	CreatedAt        string            `json:"created_at"`
	Status           string            `json:"status"`
	ErrorMessage     *string           `json:"error_message"`
}

func NewQuestionHandler(service QuestionService, logger logger.Logger) *QuestionHandler {
	return &QuestionHandler{
		service: service,
		logger:  logger,
	}
}

func newQuestionResponse(qa *models.QuestionAnswer) QuestionResponse {
	sources := []models.Citation(qa.SourceDocuments)
	if sources == nil {
		sources = []models.Citation{}
	}
	return QuestionResponse{
		ID:               qa.ID.String(),
		Document:         qa.DocumentID.String(),
		DocumentFilename: qa.DocumentFilename(),
		Question:         qa.Question,
		Answer:           qa.Answer,
		SourceDocuments:  sources,
		CreatedAt:        qa.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:           string(qa.Status),
		ErrorMessage:     qa.ErrorMessage,
	}
}

// List returns questions newest first, optionally filtered by ?document=<id>.
func (h *QuestionHandler) List(c *gin.Context) {
	var filter *uuid.UUID
	if raw := c.Query("document"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handleError(c, h.logger, "Invalid document filter", fmt.Errorf("%w: invalid document id %q", models.ErrValidation, raw))
			return
		}
		filter = &id
	}

	qas, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, h.logger, "Failed to list questions", err)
		return
	}

	out := make([]QuestionResponse, len(qas))
	for i := range qas {
		out[i] = newQuestionResponse(&qas[i])
	}
	c.JSON(http.StatusOK, out)
}

// Ask records a question against a processed document and schedules its answer.
func (h *QuestionHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBind(&req); err != nil {
		handleError(c, h.logger, "Invalid request", fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}

	req.Document = strings.TrimSpace(req.Document)
	if req.Document == "" || strings.TrimSpace(req.Question) == "" {
		handleError(c, h.logger, "Invalid request", fmt.Errorf("%w: document and question are required", models.ErrValidation))
		return
	}
	documentID, err := uuid.Parse(req.Document)
	if err != nil {
		handleError(c, h.logger, "Invalid request", fmt.Errorf("%w: invalid document id %q", models.ErrValidation, req.Document))
		return
	}

	qa, err := h.service.Ask(c.Request.Context(), documentID, req.Question)
	if err != nil {
		handleError(c, h.logger, "Failed to submit question", err)
		return
	}

	c.JSON(http.StatusCreated, newQuestionResponse(qa))
}

func (h *QuestionHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		handleError(c, h.logger, "Question not found", err)
		return
	}

	qa, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to get question", err)
		return
	}

	c.JSON(http.StatusOK, newQuestionResponse(qa))
}

func (h *QuestionHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		handleError(c, h.logger, "Question not found", err)
		return
	}

	if err := h.service.RequestDelete(c.Request.Context(), id); err != nil {
		handleError(c, h.logger, "Failed to delete question", err)
		return
	}

	c.Status(http.StatusNoContent)
}
