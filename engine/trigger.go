package engine

import "context"

// RunConfig is the subset of per-invocation configuration the engine itself
// threads through a trigger into whatever agent it is wired to. Package
// agent has no matching type; its RunInput carries only the thread id,
// checkpoint namespace and messages.
type RunConfig struct {
	ThreadID       string
	ParentThreadID string
	GraphID        string
	NodeID         string
	CheckpointNs   string
	RunID          string
	Async          bool
}

// TriggerInvokeRequest is the input to Trigger.InvokeAgent.
type TriggerInvokeRequest struct {
	Messages    []Message
	ThreadSubID string
	Async       bool
}

// TriggerInvokeResult is GraphService.ExecuteTrigger's return value: for an
// async invocation only ExternalThreadID/CheckpointNs are populated; for a
// synchronous one Messages/NeedsMoreInfo carry the full run output.
type TriggerInvokeResult struct {
	ExternalThreadID string
	CheckpointNs     string
	Messages         []Message
	NeedsMoreInfo    bool
}

// Trigger is the instance-level contract a Trigger-kind template's
// NodeHandle.Provide must return, satisfying GraphService.ExecuteTrigger.
type Trigger interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	InvokeAgent(ctx context.Context, req TriggerInvokeRequest) (TriggerInvokeResult, error)
	Started() bool
}

// Runtime is the instance-level contract a Runtime-kind template's
// NodeHandle.Provide must return.
type Runtime interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RuntimeNotifier is the subset of *GraphStateManager a Runtime instance
// needs to report exec lifecycle; *GraphStateManager satisfies it directly.
type RuntimeNotifier interface {
	OnRuntimeStart(nodeID string)
	OnRuntimeStop(nodeID string)
	OnRuntimeExecStart(nodeID, execID string, exec ActiveExec)
	OnRuntimeExecEnd(nodeID, execID string, execErr string)
}

// Agent is the instance-level contract a SimpleAgent-kind template's
// NodeHandle.Provide must return; it mirrors package agent's Core so the
// engine can call Stop/StopThread during graph destruction without
// importing package agent.
type Agent interface {
	Stop(ctx context.Context) error
	StopThread(ctx context.Context, threadID, reason string) error
}

// AgentRunInput is what a trigger node passes into the SimpleAgent node it
// is wired to.
type AgentRunInput struct {
	ThreadID     string
	CheckpointNs string
	Messages     []Message
}

// AgentRunResult is the outcome of one AgentRunner.Run call.
type AgentRunResult struct {
	Messages      []Message
	NeedsMoreInfo bool
}

// AgentRunner is the run-side contract a SimpleAgent node's instance must
// satisfy for a trigger to invoke it synchronously, alongside Agent's
// stop-side contract.
type AgentRunner interface {
	Run(ctx context.Context, in AgentRunInput) (AgentRunResult, error)
}

// NotifierSetter is implemented by SimpleAgent and Runtime node instances
// that want to stream through a GraphStateManager. A graph's manager is allocated by
// GraphService right before Compile, so it cannot reach a node through
// CompileFrame during Configure; GraphService wires it in separately, right
// after the compiled graph is registered.
type NotifierSetter interface {
	SetNotifier(sm *GraphStateManager)
}
