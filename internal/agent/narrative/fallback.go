package narrative

import (
	"context"
	"strings"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/pkg/logger"
)

// Source identifies which tier produced a passage.
type Source string

const (
	SourcePrimary     Source = "primary"
	SourceSecondary   Source = "secondary"
	SourcePlaceholder Source = "placeholder"
)

// placeholders are the deterministic last tier, keyed by content type.
var placeholders = map[models.ContentType]string{
	models.ContentText:  "This part of the story is still being written.",
	models.ContentImage: "A moment captured in a photograph; its story is still being written.",
	models.ContentClip:  "A moment captured on video; its story is still being written.",
}

// introPlaceholder covers chapter intros, which have no content type.
const introPlaceholder = "This chapter gathers a few related moments of the story."

// Chain is the three-tier degrade path: primary, then secondary, then a
// placeholder. Each tier is tried at most once per invocation; a response
// shorter than minChars (after trimming) counts as a failed attempt. The
// chain never returns an error unless the context is done, so one
// invocation never turns into a queue redelivery.
type Chain struct {
	primary   Generator
	secondary Generator
	minChars  int
	log       logger.Logger
}

// NewChain wires the fallback chain. minChars is the configurable
// too-short threshold, in runes.
func NewChain(primary, secondary Generator, minChars int, log logger.Logger) *Chain {
	return &Chain{primary: primary, secondary: secondary, minChars: minChars, log: log}
}

// Generate runs the chain and reports which tier produced the text.
func (c *Chain) Generate(ctx context.Context, req Request) (string, Source, error) {
	text, err := c.primary.Generate(ctx, req)
	if err == nil && c.acceptable(text) {
		return strings.TrimSpace(text), SourcePrimary, nil
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	c.log.Warn("primary narrative provider failed, trying secondary",
		logger.Error(err),
		logger.Int("length", len(strings.TrimSpace(text))),
	)

	text, err = c.secondary.Generate(ctx, req)
	if err == nil && c.acceptable(text) {
		return strings.TrimSpace(text), SourceSecondary, nil
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	c.log.Warn("secondary narrative provider failed, using placeholder",
		logger.Error(err),
	)

	return c.placeholder(req), SourcePlaceholder, nil
}

func (c *Chain) acceptable(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= c.minChars
}

func (c *Chain) placeholder(req Request) string {
	if req.Intro {
		return introPlaceholder
	}
	if text, ok := placeholders[req.ContentType]; ok {
		return text
	}
	return placeholders[models.ContentText]
}
