package parse

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/storyloom/storyloom/internal/models"
)

// TextParser splits plain text and markdown into paragraph items.
type TextParser struct{}

// NewTextParser creates a text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse implements Parser.
func (p *TextParser) Parse(ctx context.Context, reader io.Reader) ([]Item, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	var items []Item
	for _, block := range splitParagraphs(string(data)) {
		items = append(items, Item{
			Type: models.ContentText,
			Text: block,
		})
	}
	return items, nil
}

// splitParagraphs splits on blank lines, normalizing line endings.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs
}
