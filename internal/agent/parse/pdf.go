package parse

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/pkg/logger"
)

// PDFParser extracts plain text from PDF files, one item per page.
type PDFParser struct {
	log logger.Logger
}

// NewPDFParser creates a PDF parser.
func NewPDFParser(log logger.Logger) *PDFParser {
	return &PDFParser{log: log}
}

// Parse implements Parser.
func (p *PDFParser) Parse(ctx context.Context, reader io.Reader) ([]Item, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var items []Item
	for pageNum := 1; pageNum <= doc.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.log.Warn("skipping unreadable pdf page",
				logger.Int("page", pageNum), logger.Error(err))
			continue
		}
		for _, block := range splitParagraphs(text) {
			items = append(items, Item{
				Type: models.ContentText,
				Text: block,
				Metadata: map[string]string{
					"page": fmt.Sprintf("%d", pageNum),
				},
			})
		}
	}
	return items, nil
}
