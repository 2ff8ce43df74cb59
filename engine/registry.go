package engine

import (
	"context"
	"sync"
)

// registryEntry is one graphId's live compiled form plus its registry-level
// status, distinct from the persisted GraphStatus.
type registryEntry struct {
	compiled *CompiledGraph
	status   EngineStatus
}

// GraphRegistry is the process-wide mapping graphId -> live CompiledGraph,
// enforcing at-most-one live instance per graphId. All mutations are
// serialized by a single mutex; long operations (Destroy) release it around
// the actual teardown call so suspension points never run inside the lock.
type GraphRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewGraphRegistry creates an empty registry.
func NewGraphRegistry() *GraphRegistry {
	return &GraphRegistry{entries: make(map[string]*registryEntry)}
}

// SetStatus sets id's registry-level status. It is a no-op if id is absent.
func (r *GraphRegistry) SetStatus(id string, status EngineStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.status = status
	}
}

// GetStatus returns id's current registry-level status and whether an entry
// exists at all.
func (r *GraphRegistry) GetStatus(id string) (EngineStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return EngineStatusStopped, false
	}
	return e.status, true
}

// IsStop reports true if id is Stopped or has no entry at all.
func (r *GraphRegistry) IsStop(id string) bool {
	status, ok := r.GetStatus(id)
	return !ok || status == EngineStatusStopped
}

// Register stores compiled under id with status Running. It fails if an
// entry already exists under status Running.
func (r *GraphRegistry) Register(id string, compiled *CompiledGraph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.status == EngineStatusRunning {
		return NewEngineError(ErrGraphAlreadyRunning, "graph %q is already running", id)
	}
	r.entries[id] = &registryEntry{compiled: compiled, status: EngineStatusRunning}
	return nil
}

// Get returns the CompiledGraph registered under id, if any.
func (r *GraphRegistry) Get(id string) (*CompiledGraph, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.compiled, true
}

// GetNode returns the CompiledNode nodeId within graph id.
func (r *GraphRegistry) GetNode(id, nodeID string) (*CompiledNode, error) {
	compiled, ok := r.Get(id)
	if !ok {
		return nil, NewEngineError(ErrGraphNotFound, "graph %q is not running", id)
	}
	cn, ok := compiled.Nodes[nodeID]
	if !ok {
		return nil, NewEngineError(ErrNodeNotFound, "node %q not found in graph %q", nodeID, id)
	}
	return cn, nil
}

// GetNodeInstance returns nodeId's instance within graph id, type-asserted
// to T. It fails with NODE_NOT_FOUND if the node is missing or not a T.
func GetNodeInstance[T any](r *GraphRegistry, id, nodeID string) (T, error) {
	var zero T
	cn, err := r.GetNode(id, nodeID)
	if err != nil {
		return zero, err
	}
	instance, ok := cn.Instance.(T)
	if !ok {
		return zero, NewEngineError(ErrNodeNotFound, "node %q is not of the requested type", nodeID)
	}
	return instance, nil
}

// Destroy transitions id to Stopping, tears the compiled graph down, then
// removes the entry. It is idempotent: destroying an absent or already
// Stopped id succeeds with no work. On teardown failure the entry is
// restored to Stopped rather than left Stopping.
func (r *GraphRegistry) Destroy(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.status = EngineStatusStopping
	compiled := e.compiled
	r.mu.Unlock()

	err := compiled.Destroy(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if cur, ok := r.entries[id]; ok {
			cur.status = EngineStatusStopped
		}
		return err
	}
	delete(r.entries, id)
	return nil
}
