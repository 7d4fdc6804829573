// Package narrative generates prose for content items and chapter intros,
// degrading gracefully across two providers and a deterministic placeholder.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyloom/storyloom/internal/models"
)

// Request carries everything a provider needs to write one passage.
type Request struct {
	ContentType  models.ContentType
	Text         string
	Summary      string
	Keywords     []string
	ChapterTitle string
	// Intro asks for a chapter introduction instead of an item narrative.
	Intro bool
}

// Generator is one narrative backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// prompt renders the shared instruction both providers receive.
func prompt(req Request) string {
	var b strings.Builder
	if req.Intro {
		fmt.Fprintf(&b, "Write a short, warm introduction for a story chapter titled %q.\n", req.ChapterTitle)
	} else {
		b.WriteString("Write a short narrative passage for a personal story website.\n")
		if req.ChapterTitle != "" {
			fmt.Fprintf(&b, "The passage belongs to the chapter %q.\n", req.ChapterTitle)
		}
	}
	switch req.ContentType {
	case models.ContentImage:
		b.WriteString("The passage accompanies a photograph.\n")
	case models.ContentClip:
		b.WriteString("The passage accompanies a short video clip.\n")
	}
	if req.Summary != "" {
		fmt.Fprintf(&b, "Summary of the source material: %s\n", req.Summary)
	}
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Themes: %s\n", strings.Join(req.Keywords, ", "))
	}
	if req.Text != "" {
		fmt.Fprintf(&b, "Source material:\n%s\n", req.Text)
	}
	return b.String()
}
