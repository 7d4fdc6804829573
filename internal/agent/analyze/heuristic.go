package analyze

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/storyloom/storyloom/internal/models"
)

// minSelectableRunes filters out fragments too short to narrate.
const minSelectableRunes = 40

// maxKeywords caps the keyword list per item.
const maxKeywords = 5

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "was": true, "were": true,
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"has": true, "had": true, "they": true, "their": true, "there": true,
	"then": true, "than": true, "when": true, "what": true, "who": true,
	"which": true, "will": true, "would": true, "been": true, "its": true,
}

// HeuristicAnalyzer is the default deterministic analyzer: frequency-based
// keywords, first-sentence summary, length-based selection. Images are
// always selected since the parser already filtered undecodable ones.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer creates the default analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

// Analyze implements Analyzer.
func (a *HeuristicAnalyzer) Analyze(ctx context.Context, item models.ContentItem) (Result, error) {
	if item.Type == models.ContentImage || item.Type == models.ContentClip {
		return Result{Selected: true}, nil
	}

	text := strings.TrimSpace(item.Text)
	return Result{
		Summary:  firstSentence(text),
		Keywords: topKeywords(text, maxKeywords),
		Selected: len([]rune(text)) >= minSelectableRunes,
	}, nil
}

// firstSentence returns the text up to the first terminator, capped at 200
// runes either way.
func firstSentence(text string) string {
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			runes = runes[:i+1]
			break
		}
	}
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return string(runes)
}

func topKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(word) < 3 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > limit {
		words = words[:limit]
	}
	return words
}
