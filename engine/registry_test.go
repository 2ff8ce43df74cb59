package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompiledGraph(id string, destroyErr error) *CompiledGraph {
	handle := &fakeHandle{onDestroy: func(_ context.Context, _ any) error { return destroyErr }}
	node := &CompiledNode{ID: "n1", Kind: NodeKindTool, Template: "t", Handle: handle, Instance: "n1"}
	return &CompiledGraph{
		GraphID: id,
		Nodes:   map[string]*CompiledNode{"n1": node},
		State:   NewGraphState(),
		order:   []string{"n1"},
	}
}

func TestGraphRegistry_RegisterDuplicateRunningFails(t *testing.T) {
	r := NewGraphRegistry()
	require.NoError(t, r.Register("g1", newCompiledGraph("g1", nil)))
	err := r.Register("g1", newCompiledGraph("g1", nil))
	assert.True(t, IsKind(err, ErrGraphAlreadyRunning))
}

func TestGraphRegistry_DestroyIsIdempotent(t *testing.T) {
	r := NewGraphRegistry()
	require.NoError(t, r.Register("g1", newCompiledGraph("g1", nil)))
	require.NoError(t, r.Destroy(context.Background(), "g1"))
	// Destroying again (now absent) must still succeed with no error.
	require.NoError(t, r.Destroy(context.Background(), "g1"))
	assert.True(t, r.IsStop("g1"))
}

func TestGraphRegistry_DestroyFailureRestoresStopped(t *testing.T) {
	r := NewGraphRegistry()
	require.NoError(t, r.Register("g1", newCompiledGraph("g1", assert.AnError)))
	err := r.Destroy(context.Background(), "g1")
	require.Error(t, err)
	status, ok := r.GetStatus("g1")
	require.True(t, ok)
	assert.Equal(t, EngineStatusStopped, status)
}

func TestGetNodeInstance_WrongTypeFails(t *testing.T) {
	r := NewGraphRegistry()
	require.NoError(t, r.Register("g1", newCompiledGraph("g1", nil)))
	_, err := GetNodeInstance[int](r, "g1", "n1")
	assert.True(t, IsKind(err, ErrNodeNotFound))

	s, err := GetNodeInstance[string](r, "g1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", s)
}

func TestGraphRegistry_IsStop(t *testing.T) {
	r := NewGraphRegistry()
	assert.True(t, r.IsStop("missing"))
	require.NoError(t, r.Register("g1", newCompiledGraph("g1", nil)))
	assert.False(t, r.IsStop("g1"))
}
