package agent

import (
	"fmt"
	"strings"

	"github.com/feichai0017/rag-service/internal/agent/document"
	"github.com/feichai0017/rag-service/internal/agent/document/docx"
	"github.com/feichai0017/rag-service/internal/agent/document/pdf"
	"github.com/feichai0017/rag-service/internal/agent/document/text"
	"github.com/feichai0017/rag-service/internal/models"
	"github.com/feichai0017/rag-service/pkg/logger"
)

// extToMIME lists the file extensions that can be ingested.
var extToMIME = map[string]string{
	".pdf":  pdf.MIMEType,
	".txt":  text.MIMEType,
	".docx": docx.MIMEType,
}

type ProcessorFactory struct {
	processors map[string]document.Processor
	logger     logger.Logger
}

func NewProcessorFactory(logger logger.Logger) *ProcessorFactory {
	factory := &ProcessorFactory{
		processors: make(map[string]document.Processor),
		logger:     logger,
	}

	factory.register(pdf.NewProcessor(logger))
	factory.register(text.NewProcessor(logger))
	factory.register(docx.NewProcessor(logger))

	return factory
}

func (f *ProcessorFactory) register(p document.Processor) {
	for _, mimeType := range extToMIME {
		if p.CanProcess(mimeType) {
			f.processors[mimeType] = p
		}
	}
}

// SupportedExtensions returns the accepted extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extToMIME))
	for ext := range extToMIME {
		exts = append(exts, ext)
	}
	return exts
}

// GetProcessor resolves a processor by file extension, case-insensitively.
func (f *ProcessorFactory) GetProcessor(ext string) (document.Processor, error) {
	ext = strings.ToLower(ext)

	mimeType, ok := extToMIME[ext]
	if !ok {
		f.logger.Warn("Unsupported file type",
			logger.String("fileType", ext),
		)
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}

	processor, ok := f.processors[mimeType]
	if !ok {
		return nil, fmt.Errorf("no processor found for mime type: %s", mimeType)
	}

	return processor, nil
}

// Close releases every registered processor.
func (f *ProcessorFactory) Close() error {
	for _, p := range f.processors {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
