package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/pkg/logger"
)

type scriptedGenerator struct {
	text  string
	err   error
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.calls++
	return g.text, g.err
}

const goodText = "A long enough passage about a summer afternoon that easily clears the minimum length."

func TestChainUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &scriptedGenerator{text: goodText}
	secondary := &scriptedGenerator{text: goodText}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	text, source, err := chain.Generate(context.Background(), Request{ContentType: models.ContentText})
	require.NoError(t, err)
	assert.Equal(t, SourcePrimary, source)
	assert.Equal(t, goodText, text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestChainFallsBackOnPrimaryError(t *testing.T) {
	primary := &scriptedGenerator{err: errors.New("timeout")}
	secondary := &scriptedGenerator{text: goodText}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	text, source, err := chain.Generate(context.Background(), Request{ContentType: models.ContentText})
	require.NoError(t, err)
	assert.Equal(t, SourceSecondary, source)
	assert.Equal(t, goodText, text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestChainTreatsTooShortAsFailure(t *testing.T) {
	primary := &scriptedGenerator{text: "ok."}
	secondary := &scriptedGenerator{text: goodText}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	_, source, err := chain.Generate(context.Background(), Request{ContentType: models.ContentText})
	require.NoError(t, err)
	assert.Equal(t, SourceSecondary, source)
}

func TestChainPlaceholderWhenBothTiersFail(t *testing.T) {
	primary := &scriptedGenerator{err: errors.New("timeout")}
	secondary := &scriptedGenerator{err: errors.New("connection refused")}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	text, source, err := chain.Generate(context.Background(), Request{ContentType: models.ContentImage})
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, source)
	assert.Equal(t, placeholders[models.ContentImage], text)

	// Each tier was tried exactly once.
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestChainIntroPlaceholder(t *testing.T) {
	primary := &scriptedGenerator{err: errors.New("down")}
	secondary := &scriptedGenerator{err: errors.New("down")}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	text, source, err := chain.Generate(context.Background(), Request{Intro: true, ChapterTitle: "Chapter 1"})
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, source)
	assert.Equal(t, introPlaceholder, text)
}

func TestChainErrorsOnDeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &scriptedGenerator{err: ctx.Err()}
	secondary := &scriptedGenerator{text: goodText}
	chain := NewChain(primary, secondary, 40, logger.NewTestLogger())

	_, _, err := chain.Generate(ctx, Request{ContentType: models.ContentText})
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls, "a dead context must not reach the secondary")
}

func TestChainTrimsWhitespace(t *testing.T) {
	padded := "\n  " + goodText + "  \n"
	primary := &scriptedGenerator{text: padded}
	chain := NewChain(primary, &scriptedGenerator{}, 40, logger.NewTestLogger())

	text, _, err := chain.Generate(context.Background(), Request{ContentType: models.ContentText})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(padded), text)
}
