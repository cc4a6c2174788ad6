package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	godocx "github.com/fumiama/go-docx"
	"github.com/tmc/langchaingo/schema"

	"github.com/feichai0017/rag-service/pkg/logger"
)

const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const bodyPart = "word/document.xml"

// DefaultMaxBodySize bounds the uncompressed size of the document body.
const DefaultMaxBodySize = 64 << 20

// Processor extracts the paragraph and table text of a Word document body.
type Processor struct {
	logger      logger.Logger
	maxBodySize uint64
}

func NewProcessor(logger logger.Logger) *Processor {
	return &Processor{logger: logger, maxBodySize: DefaultMaxBodySize}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MIMEType
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := bytes.NewReader(content)
	if err := p.checkBody(r); err != nil {
		return nil, err
	}

	doc, err := godocx.Parse(r, r.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %w", err)
	}

	text := p.bodyText(doc)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	p.logger.Debug("Extracted docx body", logger.Int("items", len(doc.Document.Body.Items)))

	return []schema.Document{{
		PageContent: text,
		Metadata:    map[string]any{},
	}}, nil
}

// checkBody requires the body part and rejects one that inflates past maxBodySize.
func (p *Processor) checkBody(r *bytes.Reader) error {
	archive, err := zip.NewReader(r, r.Size())
	if err != nil {
		return fmt.Errorf("failed to open docx: %w", err)
	}
	for _, f := range archive.File {
		if f.Name != bodyPart {
			continue
		}
		if f.UncompressedSize64 > p.maxBodySize {
			return fmt.Errorf("failed to open docx: %s is %d bytes, limit %d", bodyPart, f.UncompressedSize64, p.maxBodySize)
		}
		return nil
	}
	return errors.New("failed to open docx: missing " + bodyPart)
}

// bodyText renders paragraphs one per line and tables as markdown rows.
func (p *Processor) bodyText(doc *godocx.Docx) string {
	lines := make([]string, 0, len(doc.Document.Body.Items))
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *godocx.Paragraph:
			lines = append(lines, it.String())
		case *godocx.Table:
			lines = append(lines, it.String())
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func (p *Processor) Close() error {
	return nil
}
