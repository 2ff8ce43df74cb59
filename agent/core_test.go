package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/store/memory"
)

// scriptedBackend replies with one fixed InvocationChunk sequence per call,
// looping the last turn forever if invoked more times than scripted - tests
// control termination via the finish tool call in the final turn instead.
type scriptedBackend struct {
	mu    sync.Mutex
	turns [][]engine.InvocationChunk
	calls int
}

func (b *scriptedBackend) Invoke(ctx context.Context, req engine.InvocationRequest) (<-chan engine.InvocationChunk, error) {
	b.mu.Lock()
	turn := b.calls
	if turn >= len(b.turns) {
		turn = len(b.turns) - 1
	}
	chunks := b.turns[turn]
	b.calls++
	b.mu.Unlock()

	out := make(chan engine.InvocationChunk, len(chunks))
	for _, c := range chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (b *scriptedBackend) SupportsResponsesAPI(model string) bool     { return false }
func (b *scriptedBackend) SupportsReasoning(model string) bool        { return false }
func (b *scriptedBackend) SupportsParallelToolCall(model string) bool { return true }
func (b *scriptedBackend) SupportsStreaming(model string) bool        { return true }

func finishTurn(content string) []engine.InvocationChunk {
	return []engine.InvocationChunk{
		{ContentDelta: content},
		{ToolCallDelta: &engine.ToolCall{ID: "f1", Name: FinishToolName, Arguments: map[string]any{}}},
		{Done: true},
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []engine.Message
	runs     []engine.ThreadStatus
}

func (n *recordingNotifier) OnAgentInvoke(nodeID, threadID, runID string) {}
func (n *recordingNotifier) OnAgentMessage(nodeID, threadID, runID string, msg engine.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}
func (n *recordingNotifier) OnAgentStateUpdate(nodeID, threadID, runID string, tokens engine.TokenSnapshot) {
}
func (n *recordingNotifier) OnAgentRun(nodeID, threadID, runID string, status engine.ThreadStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, status)
}
func (n *recordingNotifier) OnAgentStop(nodeID string) {}

func newTestCore(t *testing.T, backend engine.InvocationBackend) *Core {
	t.Helper()
	core, err := NewCore(Config{
		NodeID:          "agent-1",
		GraphID:         "g-1",
		Backend:         backend,
		Model:           "test-model",
		MaxIterations:   10,
		MaxGuardRetries: 2,
		Checkpoints:     NewCheckpointAdapter(memory.NewMemoryCheckpointStore()),
	})
	require.NoError(t, err)
	return core
}

func TestCore_RunHappyPathFinishes(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	result, err := core.Run(context.Background(), RunInput{
		ThreadID: "th-1",
		Messages: []engine.Message{{ID: "u1", Role: engine.RoleHuman, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Stopped)
	assert.False(t, result.NeedsMoreInfo)
	assert.NotEmpty(t, result.Messages)
}

func TestCore_RunReturnsErrThreadBusy(t *testing.T) {
	blocked := make(chan struct{})
	backend := &blockingBackend{release: blocked}
	core := newTestCore(t, backend)

	go func() {
		_, _ = core.Run(context.Background(), RunInput{ThreadID: "th-1"})
	}()

	require.Eventually(t, func() bool {
		_, err := core.Run(context.Background(), RunInput{ThreadID: "th-1"})
		return err == ErrThreadBusy
	}, time.Second, time.Millisecond)

	close(blocked)
}

// blockingBackend never sends Done until release is closed, letting tests
// observe a thread mid-run.
type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Invoke(ctx context.Context, req engine.InvocationRequest) (<-chan engine.InvocationChunk, error) {
	out := make(chan engine.InvocationChunk)
	go func() {
		defer close(out)
		select {
		case <-b.release:
		case <-ctx.Done():
			return
		}
		out <- engine.InvocationChunk{ToolCallDelta: &engine.ToolCall{ID: "f1", Name: FinishToolName, Arguments: map[string]any{}}}
		out <- engine.InvocationChunk{Done: true}
	}()
	return out, nil
}
func (b *blockingBackend) SupportsResponsesAPI(model string) bool     { return false }
func (b *blockingBackend) SupportsReasoning(model string) bool        { return false }
func (b *blockingBackend) SupportsParallelToolCall(model string) bool { return true }
func (b *blockingBackend) SupportsStreaming(model string) bool        { return true }

func TestCore_RunOrAppendEnqueuesOntoBusyRun(t *testing.T) {
	blocked := make(chan struct{})
	backend := &blockingBackend{release: blocked}
	core := newTestCore(t, backend)

	done := make(chan RunResult, 1)
	go func() {
		r, _ := core.Run(context.Background(), RunInput{ThreadID: "th-1", Messages: []engine.Message{{ID: "u1", Content: "first"}}})
		done <- r
	}()

	require.Eventually(t, func() bool {
		core.mu.Lock()
		_, busy := core.byThread["th-1"]
		core.mu.Unlock()
		return busy
	}, time.Second, time.Millisecond)

	result, err := core.RunOrAppend(context.Background(), RunInput{
		ThreadID: "th-1",
		Messages: []engine.Message{{ID: "u2", Role: engine.RoleHuman, Content: "queued while busy"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "th-1", result.ThreadID)

	close(blocked)
	<-done
}

func TestCore_StopThreadMarksResultStopped(t *testing.T) {
	blocked := make(chan struct{})
	backend := &blockingBackend{release: blocked}
	notifier := &recordingNotifier{}
	core, err := NewCore(Config{
		NodeID:          "agent-1",
		Backend:         backend,
		MaxIterations:   10,
		MaxGuardRetries: 2,
		Checkpoints:     NewCheckpointAdapter(memory.NewMemoryCheckpointStore()),
		Notifier:        notifier,
	})
	require.NoError(t, err)

	done := make(chan RunResult, 1)
	go func() {
		r, _ := core.Run(context.Background(), RunInput{ThreadID: "th-1"})
		done <- r
	}()

	require.Eventually(t, func() bool {
		core.mu.Lock()
		_, busy := core.byThread["th-1"]
		core.mu.Unlock()
		return busy
	}, time.Second, time.Millisecond)

	require.NoError(t, core.StopThread(context.Background(), "th-1", "test stop"))
	close(blocked)

	result := <-done
	assert.True(t, result.Stopped)
	assert.Equal(t, "test stop", result.StopReason)
}

func TestCore_GuardExhaustionReportsNeedsMoreInfo(t *testing.T) {
	noToolTurn := []engine.InvocationChunk{{ContentDelta: "thinking"}, {Done: true}}
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{noToolTurn, noToolTurn, noToolTurn, noToolTurn}}
	core := newTestCore(t, backend)

	result, err := core.Run(context.Background(), RunInput{
		ThreadID: "th-1",
		Messages: []engine.Message{{ID: "u1", Role: engine.RoleHuman, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.True(t, result.NeedsMoreInfo)
}

func TestCore_SetToolsReplacesToolsetForFutureRuns(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	core.SetTools([]ToolBinding{toolBinding("extra", func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	})})

	core.mu.Lock()
	tools := core.cfg.Tools
	core.mu.Unlock()
	require.Len(t, tools, 1)
	assert.Equal(t, "extra", tools[0].Spec.Name)
}

func TestCore_GetThreadTokenUsageDefaultsToZero(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)
	assert.Equal(t, engine.TokenSnapshot{}, core.GetThreadTokenUsage("missing-thread"))
}

func TestCore_SetMcpServicesAddsToStaticallyWiredTools(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	core.SetTools([]ToolBinding{toolBinding("wired", nil)})
	core.SetMcpServices([]ToolBinding{toolBinding("remote-search", nil)})

	core.mu.Lock()
	wired := core.cfg.Tools
	mcp := core.mcpTools
	core.mu.Unlock()
	require.Len(t, wired, 1)
	require.Len(t, mcp, 1)
	assert.Equal(t, "wired", wired[0].Spec.Name)
	assert.Equal(t, "remote-search", mcp[0].Spec.Name)
}

func TestCore_SetMcpServicesNilDetaches(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	core.SetMcpServices([]ToolBinding{toolBinding("remote-search", nil)})
	core.SetMcpServices(nil)

	core.mu.Lock()
	mcp := core.mcpTools
	core.mu.Unlock()
	assert.Empty(t, mcp)
}

func TestCore_SetConfigUpdatesOnlyProvidedFields(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	newModel := "gpt-5"
	newPrompt := "be terse"
	core.SetConfig(ConfigUpdate{Model: &newModel, SystemPrompt: &newPrompt})

	core.mu.Lock()
	cfg := core.cfg
	core.mu.Unlock()
	assert.Equal(t, "gpt-5", cfg.Model)
	assert.Equal(t, "be terse", cfg.SystemPrompt)
	assert.Equal(t, 2, cfg.MaxGuardRetries)
}

func TestCore_SetConfigAppliesOnNextRun(t *testing.T) {
	backend := &scriptedBackend{turns: [][]engine.InvocationChunk{finishTurn("done")}}
	core := newTestCore(t, backend)

	newPrompt := "updated prompt"
	core.SetConfig(ConfigUpdate{SystemPrompt: &newPrompt})

	_, err := core.Run(context.Background(), RunInput{
		ThreadID: "th-1",
		Messages: []engine.Message{{ID: "u1", Role: engine.RoleHuman, Content: "hi"}},
	})
	require.NoError(t, err)
}
