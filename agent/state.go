package agent

import (
	"context"
	"sync"

	"github.com/smallnest/agentgraph/engine"
)

// PendingInjectMode controls when runOrAppend's queued messages are spliced
// into a still-running turn.
type PendingInjectMode string

const (
	// InjectAfterFinish splices pending messages only once the finish tool
	// has been called.
	InjectAfterFinish PendingInjectMode = "AfterFinish"
	// InjectAfterToolCall splices pending messages as soon as any tool call
	// round completes, finish or not.
	InjectAfterToolCall PendingInjectMode = "AfterToolCall"
)

// ToolExecutor runs one tool call and returns its result content.
type ToolExecutor func(ctx context.Context, args map[string]any) (string, error)

// ToolBinding pairs a tool's InvocationBackend-facing spec with the function
// that actually runs it.
type ToolBinding struct {
	Spec    engine.ToolSpec
	Execute ToolExecutor
}

// FinishToolName is the reserved tool name tool_usage_guard and the tools
// node use to detect a deliberate end-of-turn.
const FinishToolName = "finish"

// PendingBox is a goroutine-safe mailbox for messages enqueued mid-run by
// runOrAppend. AgentState carries a pointer to one so the inject_pending
// node can drain it regardless of how many times the state value itself has
// been copied across node boundaries.
type PendingBox struct {
	mu   sync.Mutex
	msgs []engine.Message
}

// Add enqueues msgs for the next safe injection point.
func (b *PendingBox) Add(msgs ...engine.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msgs...)
}

// Len reports how many messages are currently queued.
func (b *PendingBox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// Drain removes and returns every queued message.
func (b *PendingBox) Drain() []engine.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.msgs
	b.msgs = nil
	return out
}

// AgentState is threaded through one agent's inner reasoning graph.
type AgentState struct {
	ThreadID string

	Messages []engine.Message
	Summary  string

	SystemPrompt string
	Model        string
	Tools        []ToolBinding
	Reasoning    bool

	Pending    *PendingBox
	InjectMode PendingInjectMode

	LastToolCalls []engine.ToolCall
	FinishCalled  bool

	GuardActive     bool
	GuardExhausted  bool
	GuardCount      int
	MaxGuardRetries int

	Usage engine.TokenSnapshot

	ReasoningID      string
	ReasoningContent string

	SummarizeMaxTokens  int
	SummarizeKeepTokens int

	// Iteration counts how many times invoke_llm has run this turn, purely
	// for observability; recursion depth itself is bounded by
	// graph.StateRunnable's maxIterations.
	Iteration int
}

// cloneMessages returns a shallow copy of msgs so node functions never
// mutate a state slice another goroutine might still be reading.
func cloneMessages(msgs []engine.Message) []engine.Message {
	out := make([]engine.Message, len(msgs))
	copy(out, msgs)
	return out
}

// messageDelta returns the messages present in next but absent from prev,
// compared by Message.ID rather than slice position, so summarization (which
// may shrink or reorder the list) still surfaces newly-inserted messages
// such as a summary marker exactly once.
func messageDelta(prev, next []engine.Message) []engine.Message {
	seen := make(map[string]bool, len(prev))
	for _, m := range prev {
		seen[m.ID] = true
	}
	var delta []engine.Message
	for _, m := range next {
		if !seen[m.ID] {
			delta = append(delta, m)
		}
	}
	return delta
}

func hasFinishCall(calls []engine.ToolCall) bool {
	for _, c := range calls {
		if c.Name == FinishToolName {
			return true
		}
	}
	return false
}
