// Package analyze enriches content items ahead of curation: summary,
// keywords, and whether the item is worth including in the story.
package analyze

import (
	"context"

	"github.com/storyloom/storyloom/internal/models"
)

// Result is the analyzer's verdict for one content item.
type Result struct {
	Summary  string
	Keywords []string
	Selected bool
}

// Analyzer is the content analysis boundary.
type Analyzer interface {
	Analyze(ctx context.Context, item models.ContentItem) (Result, error)
}
