// Package parse extracts analyzable content items from uploaded files.
package parse

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Item is one extracted unit, positioned within its source file.
type Item struct {
	Type     models.ContentType
	Text     string
	Metadata map[string]string
}

// Parser turns raw bytes into content items.
type Parser interface {
	Parse(ctx context.Context, reader io.Reader) ([]Item, error)
}

var extToMIME = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".tiff": "image/tiff",
}

// MIMEForFilename maps a filename extension to a MIME type, or "".
func MIMEForFilename(name string) string {
	return extToMIME[strings.ToLower(filepath.Ext(name))]
}

// Factory resolves a parser by MIME type.
type Factory struct {
	parsers map[string]Parser
	log     logger.Logger
}

// NewFactory registers the built-in parsers.
func NewFactory(log logger.Logger) *Factory {
	f := &Factory{
		parsers: make(map[string]Parser),
		log:     log,
	}

	textParser := NewTextParser()
	f.parsers["text/plain"] = textParser
	f.parsers["text/markdown"] = textParser

	f.parsers["application/pdf"] = NewPDFParser(log)

	imageParser := NewImageParser()
	f.parsers["image/jpeg"] = imageParser
	f.parsers["image/png"] = imageParser
	f.parsers["image/gif"] = imageParser
	f.parsers["image/tiff"] = imageParser

	return f
}

// ForMIME returns the parser for the MIME type, or a permanent
// unsupported-content error: retrying cannot make a type parseable.
func (f *Factory) ForMIME(mimeType string) (Parser, error) {
	p, ok := f.parsers[mimeType]
	if !ok {
		return nil, fmt.Errorf("no parser for mime type %q: %w", mimeType, pipeline.ErrUnsupportedContent)
	}
	return p, nil
}
