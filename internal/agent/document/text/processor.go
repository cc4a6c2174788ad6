package text

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"github.com/feichai0017/rag-service/pkg/logger"
)

const MIMEType = "text/plain"

// Processor loads UTF-8 text files as a single document.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(logger logger.Logger) *Processor {
	return &Processor{logger: logger}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return strings.HasPrefix(mimeType, MIMEType)
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("text file is not valid utf-8")
	}

	docs, err := documentloaders.NewText(strings.NewReader(string(content))).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load text: %w", err)
	}

	out := docs[:0]
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]any{}
		}
		out = append(out, doc)
	}
	return out, nil
}

func (p *Processor) Close() error {
	return nil
}
