package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/graph"
)

// Notifier is the subset of *engine.GraphStateManager Core needs to report
// its activity; *engine.GraphStateManager satisfies this directly, which
// keeps the dependency one-directional (engine never imports package agent).
type Notifier interface {
	OnAgentInvoke(nodeID, threadID, runID string)
	OnAgentMessage(nodeID, threadID, runID string, msg engine.Message)
	OnAgentStateUpdate(nodeID, threadID, runID string, tokens engine.TokenSnapshot)
	OnAgentRun(nodeID, threadID, runID string, threadStatus engine.ThreadStatus)
	OnAgentStop(nodeID string)
}

// ErrThreadBusy is returned by Run when threadID already has a run in
// flight; callers wanting to enqueue onto that run should use RunOrAppend
// instead.
var ErrThreadBusy = fmt.Errorf("agent: thread already has a run in flight")

// Config is everything one AgentCore instance needs, supplied once by the
// SimpleAgent template's Provide/Configure.
type Config struct {
	NodeID  string
	GraphID string

	Backend      engine.InvocationBackend
	Model        string
	SystemPrompt string
	Tools        []ToolBinding
	Reasoning    bool

	MaxIterations       int
	MaxGuardRetries     int
	SummarizeMaxTokens  int
	SummarizeKeepTokens int
	InjectMode          PendingInjectMode

	Checkpoints *CheckpointAdapter
	Notifier    Notifier
}

// RunInput starts or resumes one agent turn.
type RunInput struct {
	ThreadID       string
	ParentThreadID string
	CheckpointNs   string
	RunID          string
	Messages       []engine.Message
}

// RunResult is what a completed or stopped run reports back to its caller.
type RunResult struct {
	ThreadID      string
	Messages      []engine.Message
	NeedsMoreInfo bool
	Stopped       bool
	StopReason    string
}

// ConfigUpdate carries the subset of Config that setConfig may change on a
// live Core; nil/zero fields leave the current value untouched.
type ConfigUpdate struct {
	Model               *string
	SystemPrompt        *string
	Reasoning           *bool
	MaxGuardRetries     *int
	SummarizeMaxTokens  *int
	SummarizeKeepTokens *int
	InjectMode          *PendingInjectMode
}

type activeRun struct {
	cancel     context.CancelFunc
	threadID   string
	runID      string
	pending    *PendingBox
	last       AgentState
	stopped    bool
	stopReason string
}

// Core drives one agent's reasoning loop across however many threads are
// concurrently active against it. One Core is created per SimpleAgent node
// instance; its inner graph.StateRunnable is built once at construction and
// reused (immutably) across every run.
type Core struct {
	cfg      Config
	runnable *graph.StateRunnable[AgentState]

	mu       sync.Mutex
	byThread map[string]*activeRun
	byRun    map[string]*activeRun

	// mcpTools holds the separately-configurable set of MCP-backed tool
	// bindings set via SetMcpServices, kept apart from cfg.Tools (the
	// statically wired toolset) so attaching/detaching an MCP server does
	// not require a graph recompile.
	mcpTools []ToolBinding
}

// NewCore builds the inner reasoning graph and returns a ready Core.
func NewCore(cfg Config) (*Core, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = graph.MaxIterationsDefault
	}
	runnable, err := buildInnerGraph(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("agent: build inner graph: %w", err)
	}
	core := &Core{
		cfg:      cfg,
		runnable: runnable,
		byThread: make(map[string]*activeRun),
		byRun:    make(map[string]*activeRun),
	}

	// One listener, shared across every run this Core ever executes: it looks
	// the active run up by the state's ThreadID rather than closing over a
	// single run, so runnable (built once and reused) never accumulates
	// per-run listeners.
	runnable.AddListener(graph.NodeListenerFunc[AgentState](core.onNodeComplete))
	return core, nil
}

func (c *Core) onNodeComplete(ctx context.Context, event graph.NodeEvent, nodeName string, state AgentState, nodeErr error) {
	if event != graph.EventNodeComplete {
		return
	}

	c.mu.Lock()
	run, ok := c.byThread[state.ThreadID]
	var prev AgentState
	if ok {
		prev = run.last
		run.last = state
	}
	notifier := c.cfg.Notifier
	c.mu.Unlock()
	if !ok || notifier == nil {
		return
	}

	for _, m := range messageDelta(prev.Messages, state.Messages) {
		notifier.OnAgentMessage(c.cfg.NodeID, run.threadID, run.runID, m)
	}
	notifier.OnAgentStateUpdate(c.cfg.NodeID, run.threadID, run.runID, state.Usage)
}

func (c *Core) notifier() Notifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Notifier
}

// Run starts a fresh turn for in.ThreadID, failing with ErrThreadBusy if
// that thread already has one running.
func (c *Core) Run(ctx context.Context, in RunInput) (RunResult, error) {
	c.mu.Lock()
	if _, busy := c.byThread[in.ThreadID]; busy {
		c.mu.Unlock()
		return RunResult{}, ErrThreadBusy
	}

	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		cancel:   cancel,
		threadID: in.ThreadID,
		runID:    in.RunID,
		pending:  &PendingBox{},
	}
	c.byThread[in.ThreadID] = run
	c.byRun[in.RunID] = run
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.byThread, in.ThreadID)
		delete(c.byRun, in.RunID)
		c.mu.Unlock()
	}()

	return c.execute(runCtx, run, in)
}

// RunOrAppend starts a new turn for in.ThreadID, or - if one is already
// running - enqueues in.Messages onto it and returns immediately without
// waiting for the run to finish.
func (c *Core) RunOrAppend(ctx context.Context, in RunInput) (RunResult, error) {
	c.mu.Lock()
	if run, busy := c.byThread[in.ThreadID]; busy {
		run.pending.Add(in.Messages...)
		c.mu.Unlock()
		return RunResult{ThreadID: in.ThreadID}, nil
	}
	c.mu.Unlock()
	return c.Run(ctx, in)
}

func (c *Core) execute(ctx context.Context, run *activeRun, in RunInput) (RunResult, error) {
	checkpointed, checkpointVersion, err := c.cfg.Checkpoints.Latest(ctx, in.ThreadID, in.CheckpointNs)
	if err != nil {
		return RunResult{}, fmt.Errorf("agent: load checkpoint: %w", err)
	}

	c.mu.Lock()
	cfg := c.cfg
	tools := make([]ToolBinding, 0, len(c.cfg.Tools)+len(c.mcpTools))
	tools = append(tools, c.cfg.Tools...)
	tools = append(tools, c.mcpTools...)
	c.mu.Unlock()

	state := AgentState{
		ThreadID:            in.ThreadID,
		Messages:            append(cloneMessages(checkpointed.Messages), in.Messages...),
		Summary:             checkpointed.Summary,
		SystemPrompt:        cfg.SystemPrompt,
		Model:               cfg.Model,
		Tools:               tools,
		Reasoning:           cfg.Reasoning,
		Pending:             run.pending,
		InjectMode:          cfg.InjectMode,
		MaxGuardRetries:     cfg.MaxGuardRetries,
		Usage:               checkpointed.Usage,
		ReasoningID:         checkpointed.ReasoningID,
		ReasoningContent:    checkpointed.ReasoningContent,
		SummarizeMaxTokens:  cfg.SummarizeMaxTokens,
		SummarizeKeepTokens: cfg.SummarizeKeepTokens,
	}

	if notifier := c.notifier(); notifier != nil {
		notifier.OnAgentInvoke(c.cfg.NodeID, in.ThreadID, in.RunID)
	}

	runCtx := engine.WithRunContext(ctx, engine.RunContext{ThreadID: in.ThreadID, RunID: in.RunID})
	final, runErr := c.runnable.Invoke(runCtx, state, c.cfg.MaxIterations)

	c.mu.Lock()
	stopped := run.stopped
	stopReason := run.stopReason
	c.mu.Unlock()

	if runErr != nil && !stopped {
		return RunResult{}, fmt.Errorf("agent: run thread %q: %w", in.ThreadID, runErr)
	}

	threadStatus := engine.ThreadStatusDone
	switch {
	case stopped:
		threadStatus = engine.ThreadStatusStopped
	case final.GuardExhausted:
		threadStatus = engine.ThreadStatusNeedMoreInfo
	}

	if !stopped {
		saveErr := c.cfg.Checkpoints.Save(ctx, in.ThreadID, in.CheckpointNs, checkpointVersion+1, CheckpointState{
			Messages:         final.Messages,
			Summary:          final.Summary,
			Usage:            final.Usage,
			ReasoningID:      final.ReasoningID,
			ReasoningContent: final.ReasoningContent,
		})
		if saveErr != nil {
			return RunResult{}, fmt.Errorf("agent: save checkpoint: %w", saveErr)
		}
	}

	if notifier := c.notifier(); notifier != nil {
		notifier.OnAgentRun(c.cfg.NodeID, in.ThreadID, in.RunID, threadStatus)
	}

	return RunResult{
		ThreadID:      in.ThreadID,
		Messages:      final.Messages,
		NeedsMoreInfo: final.GuardExhausted,
		Stopped:       stopped,
		StopReason:    stopReason,
	}, nil
}

// Stop cancels every run currently active against this Core, synthesizing a
// system message for each stopped thread, and satisfies engine.Agent so the
// compiler can call it during graph teardown.
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	runs := make([]*activeRun, 0, len(c.byRun))
	for _, run := range c.byRun {
		runs = append(runs, run)
	}
	c.mu.Unlock()

	for _, run := range runs {
		c.stopRun(run, "agent stopped")
	}

	if notifier := c.notifier(); notifier != nil {
		notifier.OnAgentStop(c.cfg.NodeID)
	}
	return nil
}

// StopThread cancels the single run active against threadID, if any.
func (c *Core) StopThread(ctx context.Context, threadID, reason string) error {
	c.mu.Lock()
	run, ok := c.byThread[threadID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.stopRun(run, reason)
	if notifier := c.notifier(); notifier != nil {
		notifier.OnAgentRun(c.cfg.NodeID, threadID, run.runID, engine.ThreadStatusStopped)
	}
	return nil
}

func (c *Core) stopRun(run *activeRun, reason string) {
	c.mu.Lock()
	run.stopped = true
	run.stopReason = reason
	c.mu.Unlock()

	run.cancel()

	if notifier := c.notifier(); notifier != nil {
		notifier.OnAgentMessage(c.cfg.NodeID, run.threadID, run.runID, engine.Message{
			ID:        uuid.NewString(),
			ThreadID:  run.threadID,
			Role:      engine.RoleSystem,
			Content:   fmt.Sprintf("Graph execution was stopped for agent %s", c.cfg.NodeID),
			CreatedAt: time.Now(),
		})
	}
}

// SetTools replaces the toolset every subsequent run sees. Engine wires this
// in during Configure, once the agent node's wired-to tool instances exist.
func (c *Core) SetTools(tools []ToolBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Tools = tools
}

// SetMcpServices replaces the dynamically-attached MCP tool bindings every
// subsequent run sees, independent of the statically wired toolset SetTools
// manages. Detaching a server is a SetMcpServices(nil) call.
func (c *Core) SetMcpServices(tools []ToolBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mcpTools = tools
}

// SetConfig applies a partial update to the live Config every subsequent
// run sees; fields left nil in update keep their current value.
func (c *Core) SetConfig(update ConfigUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if update.Model != nil {
		c.cfg.Model = *update.Model
	}
	if update.SystemPrompt != nil {
		c.cfg.SystemPrompt = *update.SystemPrompt
	}
	if update.Reasoning != nil {
		c.cfg.Reasoning = *update.Reasoning
	}
	if update.MaxGuardRetries != nil {
		c.cfg.MaxGuardRetries = *update.MaxGuardRetries
	}
	if update.SummarizeMaxTokens != nil {
		c.cfg.SummarizeMaxTokens = *update.SummarizeMaxTokens
	}
	if update.SummarizeKeepTokens != nil {
		c.cfg.SummarizeKeepTokens = *update.SummarizeKeepTokens
	}
	if update.InjectMode != nil {
		c.cfg.InjectMode = *update.InjectMode
	}
}

// SetNotifier swaps in n as the Notifier used for every subsequent run.
// Engine wires this in once a graph's GraphStateManager exists, which is
// after Core itself is constructed during Configure.
func (c *Core) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Notifier = n
}

// GetThreadTokenUsage returns the token/cost snapshot last observed by the
// run currently active on threadID. It returns the zero value when no run
// is active on threadID, including after an earlier run on it has ended;
// counters of finished runs are not kept here.
func (c *Core) GetThreadTokenUsage(threadID string) engine.TokenSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run, ok := c.byThread[threadID]; ok {
		return run.last.Usage
	}
	return engine.TokenSnapshot{}
}
