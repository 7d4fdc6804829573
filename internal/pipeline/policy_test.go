package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []Message
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) kinds() []Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var kinds []Kind
	for _, m := range q.msgs {
		kinds = append(kinds, m.Body.Kind())
	}
	return kinds
}

type policyFixture struct {
	store    *store.Store
	queue    *fakeQueue
	registry *progress.Registry
	policy   *Policy
}

func newPolicyFixture(t *testing.T) *policyFixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logger.NewTestLogger()
	queue := &fakeQueue{}
	registry := progress.NewRegistry(8, 8, nil, log)
	launcher := NewLauncher(st, queue, log)
	return &policyFixture{
		store:    st,
		queue:    queue,
		registry: registry,
		policy:   NewPolicy(st, launcher, registry, log),
	}
}

func collectEvents(sub *progress.Subscriber, n int, timeout time.Duration) []progress.Event {
	var events []progress.Event
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
	return events
}

func (f *policyFixture) newProject(t *testing.T, id string) *models.Project {
	t.Helper()
	project, err := f.store.EnsureProject(context.Background(), id, "")
	require.NoError(t, err)
	return project
}

func TestStageAdvancesWhenAllUnitsSucceed(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1", "f2"}))

	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f1", true, ""))
	assert.Empty(t, f.queue.kinds(), "stage must not advance while units are pending")

	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f2", true, ""))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatus(models.StageAnalyze), project.Status)
	assert.Equal(t, []Kind{KindAnalyzeProject}, f.queue.kinds())
}

func TestStageAdvancesOnPartialSuccess(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1", "f2", "f3"}))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f1", false, "bad pdf"))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f2", false, "bad image"))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f3", true, ""))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatus(models.StageAnalyze), project.Status)
}

func TestProjectFailsWhenEveryUnitFails(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1", "f2"}))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f1", false, "bad pdf"))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f2", false, "bad image"))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, project.Status)
	assert.Empty(t, f.queue.kinds())
}

func TestStaleGenerationCompletionIgnored(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1"}))

	_, err := f.store.BumpGeneration(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f1", true, ""))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, project.Status)
	assert.Empty(t, f.queue.kinds())
}

func TestAdHocUnitDoesNotEvaluateStage(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	// No units registered: a single narrative regeneration outside a run.
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageWrite, "c1", true, ""))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, project.Status)
	assert.Empty(t, f.queue.kinds())
}

func TestEvaluateIsReentrant(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	project := f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageCurate, []string{ProjectUnit}))
	_, err := f.store.MarkUnit(ctx, "p1", 1, models.StageCurate, ProjectUnit, true, "")
	require.NoError(t, err)

	require.NoError(t, f.policy.Evaluate(ctx, project, 1, models.StageCurate))
	require.NoError(t, f.policy.Evaluate(ctx, project, 1, models.StageCurate))

	// Only the first evaluation started the write stage.
	assert.Equal(t, []Kind{KindWriteProject}, f.queue.kinds())
}

func TestSettledBuildStagePublishesProject(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageBuild, []string{ProjectUnit}))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageBuild, ProjectUnit, true, ""))

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, project.Status)
	assert.Empty(t, f.queue.kinds())
}

func TestSettledStageEmitsNoTrailingStageEvent(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageBuild, []string{ProjectUnit}))

	coord := f.registry.Get("p1")
	sub := coord.Subscribe()
	require.NotNil(t, sub)
	defer coord.Unsubscribe(sub)

	// The worker's feed already sits at publish@100 when the unit settles.
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageBuild, ProjectUnit, true, ""))

	events := collectEvents(sub, 2, 200*time.Millisecond)
	require.NotEmpty(t, events)
	assert.Equal(t, progress.EventComplete, events[0].Type,
		"the settle path must not re-tag the feed with the finished stage")
	require.Len(t, events, 1)
}

func TestStageHandoffResetsObservedPercent(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	f.newProject(t, "p1")

	require.NoError(t, f.store.RegisterUnits(ctx, "p1", 1, models.StageParse, []string{"f1", "f2"}))

	coord := f.registry.Get("p1")
	sub := coord.Subscribe()
	require.NotNil(t, sub)
	defer coord.Unsubscribe(sub)

	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f1", true, ""))
	require.NoError(t, f.policy.UnitFinished(ctx, "p1", 1, models.StageParse, "f2", true, ""))

	events := collectEvents(sub, 3, time.Second)
	require.Len(t, events, 3)

	assert.Equal(t, progress.EventStage, events[0].Type)
	assert.Equal(t, models.StageParse, events[0].Stage)
	assert.Equal(t, 50, events[0].Progress)

	assert.Equal(t, progress.EventComplete, events[1].Type)
	assert.Equal(t, models.StageAnalyze, events[1].NextStage)

	assert.Equal(t, progress.EventStage, events[2].Type)
	assert.Equal(t, models.StageAnalyze, events[2].Stage)
	assert.Equal(t, 0, events[2].Progress)
}

func TestEmptyStageAdvances(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()
	project := f.newProject(t, "p1")

	// Analyze with zero content items settles immediately and hands off.
	require.NoError(t, f.policy.Evaluate(ctx, project, 1, models.StageAnalyze))

	got, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatus(models.StageCurate), got.Status)
	assert.Equal(t, []Kind{KindCurateProject}, f.queue.kinds())
}
