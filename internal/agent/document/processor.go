package document

import (
	"context"
	"io"

	"github.com/tmc/langchaingo/schema"
)

// Processor extracts page-level documents from an uploaded file.
type Processor interface {
	// CanProcess reports whether files of the given MIME type are handled.
	CanProcess(mimeType string) bool

	// Process reads the whole file and returns one document per page or section.
	Process(ctx context.Context, reader io.Reader) ([]schema.Document, error)

	// Close releases processor resources.
	Close() error
}
