package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEnsureProjectIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.EnsureProject(ctx, "p1", "My Story")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, first.Status)
	assert.Equal(t, uint64(1), first.Generation)

	again, err := st.EnsureProject(ctx, "p1", "A Different Name")
	require.NoError(t, err)
	assert.Equal(t, "My Story", again.Name)
}

func TestBumpGenerationResetsStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.EnsureProject(ctx, "p1", "My Story")
	require.NoError(t, err)
	require.NoError(t, st.UpdateProjectStatus(ctx, "p1", models.StatusFailed))

	generation, err := st.BumpGeneration(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), generation)

	project, err := st.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, project.Status)
	assert.Equal(t, uint64(2), project.Generation)
}

func TestUpsertContentItemKeepsRowIdentity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.EnsureProject(ctx, "p1", "")
	require.NoError(t, err)

	id1, err := st.UpsertContentItem(ctx, &models.ContentItem{
		ID: "c1", ProjectID: "p1", FileID: "f1", Position: 0,
		Type: models.ContentText, Text: "first pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", id1)

	require.NoError(t, st.UpdateAnalysis(ctx, id1, "a summary", "kw", true))

	// A redelivered parse message proposes a fresh candidate id; the stored
	// row and its analysis must survive.
	id2, err := st.UpsertContentItem(ctx, &models.ContentItem{
		ID: "c1-redelivered", ProjectID: "p1", FileID: "f1", Position: 0,
		Type: models.ContentText, Text: "second pass",
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	item, err := st.GetContentItem(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "second pass", item.Text)
	assert.Equal(t, "a summary", item.Summary)
	assert.True(t, item.IsSelected)
}

func TestUpsertNarrativeVersioning(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n1, err := st.UpsertNarrative(ctx, "c1", "p1", "once upon a time")
	require.NoError(t, err)
	assert.Equal(t, 1, n1.Version)

	n2, err := st.UpsertNarrative(ctx, "c1", "p1", "rewritten")
	require.NoError(t, err)
	assert.Equal(t, 2, n2.Version)
	assert.Equal(t, "rewritten", n2.Text)

	all, err := st.ListNarratives(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStageUnitLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1", "f2"}))
	// Redelivered fan-out must not reset settled units.
	require.NoError(t, st.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1"}))

	found, err := st.MarkUnit(ctx, "p1", 1, models.StageParse, "f1", true, "")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = st.MarkUnit(ctx, "p1", 1, models.StageParse, "ghost", true, "")
	require.NoError(t, err)
	assert.False(t, found)

	counts, err := st.StageUnitCounts(ctx, "p1", 1, models.StageParse)
	require.NoError(t, err)
	assert.Equal(t, StageCounts{Total: 2, Succeeded: 1}, counts)
	assert.False(t, counts.Settled())

	found, err = st.MarkUnit(ctx, "p1", 1, models.StageParse, "f2", false, "boom")
	require.NoError(t, err)
	assert.True(t, found)

	counts, err = st.StageUnitCounts(ctx, "p1", 1, models.StageParse)
	require.NoError(t, err)
	assert.True(t, counts.Settled())

	firstErr, err := st.FirstFailure(ctx, "p1", 1, models.StageParse)
	require.NoError(t, err)
	assert.Equal(t, "boom", firstErr)
}

func TestTryMarkTransitionedClaimsOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.TryMarkTransitioned(ctx, "p1", 1, models.StageParse)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := st.TryMarkTransitioned(ctx, "p1", 1, models.StageParse)
	require.NoError(t, err)
	assert.False(t, second)

	// A new generation gets its own claim.
	fresh, err := st.TryMarkTransitioned(ctx, "p1", 2, models.StageParse)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestUpsertChapterKeepsIntro(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id1, err := st.UpsertChapter(ctx, &models.Chapter{
		ID: "ch1", ProjectID: "p1", Position: 0, Title: "Chapter 1",
	})
	require.NoError(t, err)
	require.NoError(t, st.SetChapterIntro(ctx, id1, "an intro"))

	id2, err := st.UpsertChapter(ctx, &models.Chapter{
		ID: "ch1-redelivered", ProjectID: "p1", Position: 0, Title: "Chapter 1: Travel",
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	chapters, err := st.ListChapters(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter 1: Travel", chapters[0].Title)
	assert.Equal(t, "an intro", chapters[0].Intro)
}

func TestGetProjectNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
