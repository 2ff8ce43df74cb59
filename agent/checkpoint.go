package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/store"
)

// CheckpointState is the durable snapshot of one thread's running message
// history and token counters, registered with store's global type registry
// so store/file (and any future typed backend) round-trips it as its
// concrete type on Load instead of a generic map.
type CheckpointState struct {
	Messages         []engine.Message
	Summary          string
	Usage            engine.TokenSnapshot
	ReasoningID      string
	ReasoningContent string
}

func init() {
	_ = store.RegisterTypeWithValue(CheckpointState{}, "agent.CheckpointState")
}

// CheckpointAdapter keys a store.CheckpointStore's flat (id, executionId)
// contract by (threadId, checkpointNs), matching AgentCore.run's resume
// semantics.
type CheckpointAdapter struct {
	backend store.CheckpointStore
}

// NewCheckpointAdapter wraps backend.
func NewCheckpointAdapter(backend store.CheckpointStore) *CheckpointAdapter {
	return &CheckpointAdapter{backend: backend}
}

func checkpointID(threadID, checkpointNs string, version int) string {
	return fmt.Sprintf("%s::%s::%d", threadID, checkpointNs, version)
}

// Save persists state as checkpointNs's snapshot at version.
func (a *CheckpointAdapter) Save(ctx context.Context, threadID, checkpointNs string, version int, state CheckpointState) error {
	return a.backend.Save(ctx, &store.Checkpoint{
		ID:       checkpointID(threadID, checkpointNs, version),
		NodeName: checkpointNs,
		State:    state,
		Metadata: map[string]any{
			"thread_id":     threadID,
			"checkpoint_ns": checkpointNs,
		},
		Timestamp: time.Now(),
		Version:   version,
	})
}

// Latest returns the highest-version checkpoint recorded for
// (threadID, checkpointNs), or a zero-value CheckpointState at version 0 if
// none exists yet - AgentCore.run falls back to zeroed counters in that
// case rather than failing.
func (a *CheckpointAdapter) Latest(ctx context.Context, threadID, checkpointNs string) (CheckpointState, int, error) {
	checkpoints, err := a.backend.List(ctx, threadID)
	if err != nil {
		return CheckpointState{}, 0, fmt.Errorf("checkpoint: list thread %q: %w", threadID, err)
	}

	var best *store.Checkpoint
	for _, cp := range checkpoints {
		if cp.Metadata["checkpoint_ns"] != checkpointNs {
			continue
		}
		if best == nil || cp.Version > best.Version {
			best = cp
		}
	}
	if best == nil {
		return CheckpointState{}, 0, nil
	}

	state, ok := best.State.(CheckpointState)
	if !ok {
		return CheckpointState{}, 0, fmt.Errorf("checkpoint %q: unexpected state type %T", best.ID, best.State)
	}
	return state, best.Version, nil
}
