package progress

import (
	"context"
	"sync"

	"github.com/storyloom/storyloom/pkg/logger"
)

// Registry resolves a project id to its coordinator. The same id always
// resolves to the same live instance, which is what serializes all progress
// mutations for a project. Finished coordinators remove themselves.
type Registry struct {
	mu           sync.Mutex
	coords       map[string]*Coordinator
	discoveryCap int
	subBuffer    int
	snapshots    SnapshotStore
	log          logger.Logger
}

// NewRegistry creates an empty registry. snapshots may be nil.
func NewRegistry(discoveryCap, subBuffer int, snapshots SnapshotStore, log logger.Logger) *Registry {
	return &Registry{
		coords:       make(map[string]*Coordinator),
		discoveryCap: discoveryCap,
		subBuffer:    subBuffer,
		snapshots:    snapshots,
		log:          log,
	}
}

// Get returns the live coordinator for the project, creating it lazily.
func (r *Registry) Get(projectID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coords[projectID]; ok {
		select {
		case <-c.done:
			// finished but not yet removed; replace
		default:
			return c
		}
	}
	c := newCoordinator(projectID, r.discoveryCap, r.subBuffer, r.snapshots, r.remove, r.log)
	r.coords[projectID] = c
	return c
}

// Peek returns the live coordinator without creating one.
func (r *Registry) Peek(projectID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coords[projectID]
	return c, ok
}

// State returns the current progress for a project: live coordinator state
// when one exists, otherwise the durable snapshot.
func (r *Registry) State(ctx context.Context, projectID string) (State, bool) {
	if c, ok := r.Peek(projectID); ok {
		return c.GetState(), true
	}
	if r.snapshots != nil {
		if st, err := r.snapshots.Load(ctx, projectID); err == nil && st != nil {
			return *st, true
		}
	}
	return State{ProjectID: projectID}, false
}

func (r *Registry) remove(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.coords[c.projectID]; ok && cur == c {
		delete(r.coords, c.projectID)
	}
}
