package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/rag-service/pkg/logger"
)

const MIMEType = "application/pdf"

const maxWorkers = 4

type Processor struct {
	logger logger.Logger
}

func NewProcessor(logger logger.Logger) *Processor {
	return &Processor{
		logger: logger,
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MIMEType
}

type page struct {
	number int
	text   string
}

// Process extracts the plain text of every page in parallel. Pages without text are skipped.
func (p *Processor) Process(ctx context.Context, file io.Reader) ([]schema.Document, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	pdfReader, numPages, info, err := p.open(content)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	pageChan := make(chan page, numPages)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() (err error) {
			// Malformed objects panic inside the reader; the worker only recovers its own goroutine.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("failed to read page %d: %v", pageNum, r)
				}
			}()

			if err := ctx.Err(); err != nil {
				return err
			}

			pg := pdfReader.Page(pageNum)
			if pg.V.IsNull() {
				return nil
			}

			text, err := pg.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}

			pageChan <- page{number: pageNum, text: text}
			return nil
		})
	}

	err = g.Wait()
	close(pageChan)
	if err != nil {
		return nil, err
	}

	pages := make([]page, 0, numPages)
	for pg := range pageChan {
		if strings.TrimSpace(pg.text) == "" {
			continue
		}
		pages = append(pages, pg)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })

	docs := make([]schema.Document, 0, len(pages))
	for _, pg := range pages {
		metadata := map[string]any{
			"page":        pg.number,
			"total_pages": numPages,
		}
		for k, v := range info {
			metadata[k] = v
		}
		docs = append(docs, schema.Document{
			PageContent: p.cleanText(pg.text),
			Metadata:    metadata,
		})
	}

	p.logger.Debug("Extracted pdf pages",
		logger.Int("pages", numPages),
		logger.Int("withText", len(docs)),
	)

	return docs, nil
}

// open parses the trailer, page count and info dictionary, converting reader panics to errors.
func (p *Processor) open(content []byte) (r *pdf.Reader, numPages int, info map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, numPages, info = nil, 0, nil
			err = fmt.Errorf("failed to open pdf: %v", rec)
		}
	}()

	reader := bytes.NewReader(content)
	r, err = pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	numPages = r.NumPage()
	if numPages < 0 {
		return nil, 0, nil, fmt.Errorf("failed to open pdf: invalid page count %d", numPages)
	}
	return r, numPages, p.documentInfo(r), nil
}

// documentInfo reads title and author from the trailer when present.
func (p *Processor) documentInfo(r *pdf.Reader) map[string]any {
	out := map[string]any{}
	trailer := r.Trailer()
	if trailer.IsNull() {
		return out
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return out
	}
	if title := info.Key("Title"); !title.IsNull() && title.Text() != "" {
		out["title"] = title.Text()
	}
	if author := info.Key("Author"); !author.IsNull() && author.Text() != "" {
		out["author"] = author.Text()
	}
	return out
}

func (p *Processor) cleanText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
}

func (p *Processor) Close() error {
	return nil
}
