package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

type dispatchFixture struct {
	store      *store.Store
	queue      *fakeQueue
	dispatcher *Dispatcher
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logger.NewTestLogger()
	queue := &fakeQueue{}
	registry := progress.NewRegistry(8, 8, nil, log)
	launcher := NewLauncher(st, queue, log)
	return &dispatchFixture{
		store:      st,
		queue:      queue,
		dispatcher: NewDispatcher(st, launcher, registry, log),
	}
}

func TestTriggerQueuesParsePerFile(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	_, err := f.store.EnsureProject(ctx, "p1", "")
	require.NoError(t, err)
	for _, id := range []string{"f1", "f2"} {
		require.NoError(t, f.store.InsertSourceFile(ctx, &models.SourceFile{
			ID: id, ProjectID: "p1", ObjectKey: "k/" + id, Filename: id + ".txt", MimeType: "text/plain",
		}))
	}

	result, err := f.dispatcher.Trigger(ctx, "p1", []string{"parse"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Generation)
	assert.Equal(t, []string{"parse"}, result.Stages)
	assert.Equal(t, []Kind{KindParseFile, KindParseFile}, f.queue.kinds())

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatus(models.StageParse), project.Status)
}

func TestTriggerSkipsEmptyParse(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	_, err := f.store.EnsureProject(ctx, "p1", "")
	require.NoError(t, err)

	result, err := f.dispatcher.Trigger(ctx, "p1", []string{"parse"})
	require.NoError(t, err)
	assert.Empty(t, result.Stages)
	assert.Empty(t, f.queue.kinds())

	// Nothing queued, so the status stays put.
	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, project.Status)
}

func TestTriggerRejectsUnknownStage(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.dispatcher.Trigger(context.Background(), "p1", []string{"transmogrify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestTriggerRejectsEmptyRequest(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.dispatcher.Trigger(context.Background(), "p1", nil)
	require.Error(t, err)
}

func TestTriggerUnknownProject(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.dispatcher.Trigger(context.Background(), "missing", []string{"parse"})
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestResetBumpsGeneration(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	_, err := f.store.EnsureProject(ctx, "p1", "")
	require.NoError(t, err)

	generation, err := f.dispatcher.Reset(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), generation)

	generation, err = f.dispatcher.Reset(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), generation)
}
