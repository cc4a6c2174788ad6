package converters

import (
	"github.com/tmc/langchaingo/schema"

	"github.com/feichai0017/rag-service/internal/models"
)

const (
	DefaultPreviewLength = 200
	previewSuffix        = "..."
)

// CitationConverter turns retrieved chunks into stored citations.
type CitationConverter struct {
	previewLength int
}

func NewCitationConverter(previewLength int) *CitationConverter {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &CitationConverter{previewLength: previewLength}
}

// Convert keeps retrieval order. Content is cut to the preview length and always
// followed by "..."; metadata is copied unchanged.
func (c *CitationConverter) Convert(docs []schema.Document) []models.Citation {
	citations := make([]models.Citation, 0, len(docs))
	for _, doc := range docs {
		metadata := make(map[string]interface{}, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		citations = append(citations, models.Citation{
			Content:  c.preview(doc.PageContent),
			Metadata: metadata,
		})
	}
	return citations
}

func (c *CitationConverter) preview(content string) string {
	runes := []rune(content)
	if len(runes) > c.previewLength {
		runes = runes[:c.previewLength]
	}
	return string(runes) + previewSuffix
}
