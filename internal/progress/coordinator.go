package progress

import (
	"context"
	"time"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/pkg/logger"
)

// SnapshotStore persists coordinator state so a client can read last-known
// progress after the in-memory coordinator is gone.
type SnapshotStore interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context, projectID string) (*State, error)
}

// Coordinator is the single source of truth for one project's live progress.
// All mutations flow through a mailbox consumed by one goroutine, which
// gives total ordering per project without locks; coordinators for different
// projects are fully independent.
type Coordinator struct {
	projectID    string
	ops          chan op
	done         chan struct{}
	state        State
	subs         map[*Subscriber]struct{}
	discoveryCap int
	subBuffer    int
	snapshots    SnapshotStore
	onIdle       func(*Coordinator)
	log          logger.Logger
}

type op interface {
	apply(c *Coordinator)
}

func newCoordinator(projectID string, discoveryCap, subBuffer int, snapshots SnapshotStore, onIdle func(*Coordinator), log logger.Logger) *Coordinator {
	c := &Coordinator{
		projectID:    projectID,
		ops:          make(chan op, 128),
		done:         make(chan struct{}),
		state:        State{ProjectID: projectID},
		subs:         make(map[*Subscriber]struct{}),
		discoveryCap: discoveryCap,
		subBuffer:    subBuffer,
		snapshots:    snapshots,
		onIdle:       onIdle,
		log:          log,
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	for o := range c.ops {
		o.apply(c)
		if c.idle() {
			break
		}
	}
	c.onIdle(c)
	close(c.done)
	for sub := range c.subs {
		sub.close()
	}
}

// idle: the run reached its final completion and nobody is listening.
func (c *Coordinator) idle() bool {
	return c.state.Terminal != nil && c.state.Terminal.Final && len(c.subs) == 0
}

// post is the fire-and-forget path used by workers; it never blocks. A full
// mailbox or a finished coordinator drops the update with a warning.
func (c *Coordinator) post(o op) {
	select {
	case <-c.done:
		c.log.Warn("progress update after coordinator finished",
			logger.String("projectId", c.projectID))
		return
	default:
	}
	select {
	case c.ops <- o:
	default:
		c.log.Warn("progress mailbox full, dropping update",
			logger.String("projectId", c.projectID))
	}
}

// Update overwrites stage/percent/message. Percent must not decrease within
// a stage; violations are clamped and logged, never propagated. A stage
// change resets percent.
func (c *Coordinator) Update(stage models.Stage, percent int, message string) {
	c.post(updateOp{stage: stage, percent: percent, message: message})
}

// Discovery appends to the bounded discovery buffer and fans out an event.
func (c *Coordinator) Discovery(kind, preview string) {
	c.post(discoveryOp{kind: kind, preview: preview})
}

// Complete marks the end of a pipeline run. final distinguishes the
// project-terminal completion (published or failed) from a stage boundary
// that hands off to nextStage.
func (c *Coordinator) Complete(status string, nextStage models.Stage, errMsg string, final bool) {
	c.post(completeOp{status: status, nextStage: nextStage, errMsg: errMsg, final: final})
}

// Subscribe registers a live feed consumer. No history is replayed: a new
// subscriber only sees future events and should read GetState for current
// state. Returns nil when the coordinator already finished.
func (c *Coordinator) Subscribe() *Subscriber {
	reply := make(chan *Subscriber, 1)
	select {
	case c.ops <- subscribeOp{reply: reply}:
	case <-c.done:
		return nil
	}
	select {
	case sub := <-reply:
		return sub
	case <-c.done:
		return nil
	}
}

// Unsubscribe removes a consumer; idempotent.
func (c *Coordinator) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	select {
	case c.ops <- unsubscribeOp{sub: sub}:
	case <-c.done:
	}
}

// GetState returns a copy of the current state.
func (c *Coordinator) GetState() State {
	reply := make(chan State, 1)
	select {
	case c.ops <- stateOp{reply: reply}:
	case <-c.done:
		return c.state
	}
	select {
	case st := <-reply:
		return st
	case <-c.done:
		return c.state
	}
}

func (c *Coordinator) fanout(ev Event) {
	for sub := range c.subs {
		sub.offer(ev)
	}
}

func (c *Coordinator) saveSnapshot() {
	if c.snapshots == nil {
		return
	}
	st := c.state.clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.snapshots.Save(ctx, st); err != nil {
			c.log.Warn("failed to save progress snapshot",
				logger.String("projectId", c.projectID), logger.Error(err))
		}
	}()
}

func (s State) clone() State {
	out := s
	out.Discoveries = append([]Discovery(nil), s.Discoveries...)
	if s.Terminal != nil {
		t := *s.Terminal
		out.Terminal = &t
	}
	return out
}

type updateOp struct {
	stage   models.Stage
	percent int
	message string
}

func (o updateOp) apply(c *Coordinator) {
	now := time.Now().UTC()
	percent := o.percent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	stageChanged := o.stage != c.state.Stage
	if !stageChanged && percent < c.state.Percent {
		// Out-of-order update from a stage worker: a caller defect, not a
		// pipeline failure. Clamp and log.
		c.log.Warn("non-monotonic progress clamped",
			logger.String("projectId", c.projectID),
			logger.String("stage", string(o.stage)),
			logger.Int("got", percent),
			logger.Int("have", c.state.Percent))
		percent = c.state.Percent
	}

	c.state.Stage = o.stage
	c.state.Percent = percent
	c.state.LastMessage = o.message
	c.state.Terminal = nil
	c.state.UpdatedAt = now

	c.fanout(Event{
		Type:     EventStage,
		Stage:    o.stage,
		Progress: percent,
		Message:  o.message,
		SentAt:   now,
	})
	if stageChanged {
		c.saveSnapshot()
	}
}

type discoveryOp struct {
	kind    string
	preview string
}

func (o discoveryOp) apply(c *Coordinator) {
	now := time.Now().UTC()
	d := Discovery{Type: o.kind, Preview: o.preview, At: now}
	c.state.Discoveries = append(c.state.Discoveries, d)
	if len(c.state.Discoveries) > c.discoveryCap {
		// Oldest evicted first; the buffer caps memory for long projects.
		c.state.Discoveries = c.state.Discoveries[len(c.state.Discoveries)-c.discoveryCap:]
	}
	c.state.UpdatedAt = now

	c.fanout(Event{
		Type:      EventDiscovery,
		Stage:     c.state.Stage,
		Progress:  c.state.Percent,
		Discovery: o.kind,
		Preview:   o.preview,
		SentAt:    now,
	})
}

type completeOp struct {
	status    string
	nextStage models.Stage
	errMsg    string
	final     bool
}

func (o completeOp) apply(c *Coordinator) {
	now := time.Now().UTC()
	if c.state.Terminal != nil && c.state.Terminal.Final {
		// Duplicate completion from a redelivered message; ignore locally.
		c.log.Warn("duplicate completion ignored",
			logger.String("projectId", c.projectID))
		return
	}
	c.state.Terminal = &Completion{
		Status:    o.status,
		NextStage: o.nextStage,
		Error:     o.errMsg,
		Final:     o.final,
	}
	c.state.UpdatedAt = now

	c.fanout(Event{
		Type:      EventComplete,
		Stage:     c.state.Stage,
		Progress:  c.state.Percent,
		Status:    o.status,
		NextStage: o.nextStage,
		Error:     o.errMsg,
		SentAt:    now,
	})
	c.saveSnapshot()
}

type subscribeOp struct {
	reply chan *Subscriber
}

func (o subscribeOp) apply(c *Coordinator) {
	sub := newSubscriber(c.subBuffer)
	c.subs[sub] = struct{}{}
	o.reply <- sub
}

type unsubscribeOp struct {
	sub *Subscriber
}

func (o unsubscribeOp) apply(c *Coordinator) {
	if _, ok := c.subs[o.sub]; ok {
		delete(c.subs, o.sub)
		o.sub.close()
	}
}

type stateOp struct {
	reply chan State
}

func (o stateOp) apply(c *Coordinator) {
	o.reply <- c.state.clone()
}
