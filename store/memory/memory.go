// Package memory provides an in-process, non-persistent store.CheckpointStore.
//
// It is the default backend for tests and for single-process deployments
// that don't need checkpoints to survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/agentgraph/store"
)

// MemoryCheckpointStore keeps checkpoints in a map guarded by a mutex. List
// matches checkpoints whose Metadata["session_id"], Metadata["thread_id"] or
// Metadata["workflow_id"] equals executionID, mirroring how callers key checkpoints by whichever
// grouping makes sense for them.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
	}
}

// Save stores (or overwrites) a checkpoint by ID.
func (s *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("memory: checkpoint must have an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *checkpoint
	s.checkpoints[checkpoint.ID] = &cp
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("memory: checkpoint %q not found", checkpointID)
	}
	out := *cp
	return &out, nil
}

// List returns every checkpoint whose metadata ties it to executionID,
// ordered by Version ascending.
func (s *MemoryCheckpointStore) List(_ context.Context, executionID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Checkpoint
	for _, cp := range s.checkpoints {
		if matchesExecution(cp, executionID) {
			c := *cp
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Delete removes a single checkpoint. Deleting a missing ID is a no-op.
func (s *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, checkpointID)
	return nil
}

// Clear removes every checkpoint tied to executionID.
func (s *MemoryCheckpointStore) Clear(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cp := range s.checkpoints {
		if matchesExecution(cp, executionID) {
			delete(s.checkpoints, id)
		}
	}
	return nil
}

func matchesExecution(cp *store.Checkpoint, executionID string) bool {
	if cp.Metadata == nil {
		return false
	}
	if v, ok := cp.Metadata["session_id"].(string); ok && v == executionID {
		return true
	}
	if v, ok := cp.Metadata["thread_id"].(string); ok && v == executionID {
		return true
	}
	if v, ok := cp.Metadata["workflow_id"].(string); ok && v == executionID {
		return true
	}
	return false
}
