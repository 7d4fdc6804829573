package analyze

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
)

func TestAnalyzeSelectsSubstantialText(t *testing.T) {
	a := NewHeuristicAnalyzer()

	res, err := a.Analyze(context.Background(), models.ContentItem{
		Type: models.ContentText,
		Text: "We spent the whole summer by the lake. The mornings were cold and the water was perfectly still.",
	})
	require.NoError(t, err)
	assert.True(t, res.Selected)
	assert.Equal(t, "We spent the whole summer by the lake.", res.Summary)
	assert.Contains(t, res.Keywords, "summer")
	assert.NotContains(t, res.Keywords, "the")
}

func TestAnalyzeSkipsShortFragments(t *testing.T) {
	a := NewHeuristicAnalyzer()

	res, err := a.Analyze(context.Background(), models.ContentItem{
		Type: models.ContentText,
		Text: "See photo.",
	})
	require.NoError(t, err)
	assert.False(t, res.Selected)
}

func TestAnalyzeAlwaysSelectsMedia(t *testing.T) {
	a := NewHeuristicAnalyzer()

	for _, typ := range []models.ContentType{models.ContentImage, models.ContentClip} {
		res, err := a.Analyze(context.Background(), models.ContentItem{Type: typ})
		require.NoError(t, err)
		assert.True(t, res.Selected)
		assert.Empty(t, res.Summary)
	}
}

func TestAnalyzeCapsKeywords(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := strings.Repeat("mountain river forest valley meadow glacier ridge ", 3)
	res, err := a.Analyze(context.Background(), models.ContentItem{
		Type: models.ContentText,
		Text: text,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Keywords), maxKeywords)
}

func TestAnalyzeSummaryCappedWithTerminator(t *testing.T) {
	a := NewHeuristicAnalyzer()

	// The first sentence ends beyond the cap; the cap still applies.
	text := strings.Repeat("a", 250) + ". A second sentence."
	res, err := a.Analyze(context.Background(), models.ContentItem{
		Type: models.ContentText,
		Text: text,
	})
	require.NoError(t, err)
	assert.Len(t, []rune(res.Summary), 200)
}

func TestAnalyzeSummaryCappedWithoutTerminator(t *testing.T) {
	a := NewHeuristicAnalyzer()

	text := strings.Repeat("a", 300)
	res, err := a.Analyze(context.Background(), models.ContentItem{
		Type: models.ContentText,
		Text: text,
	})
	require.NoError(t, err)
	assert.Len(t, []rune(res.Summary), 200)
}
