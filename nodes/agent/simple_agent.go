// Package agentnode implements the SimpleAgent template: the node kind a
// trigger invokes synchronously and whose instance wraps one package
// agent.Core.
package agentnode

import (
	"context"
	"fmt"

	"github.com/smallnest/agentgraph/agent"
	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/store"
	"github.com/smallnest/agentgraph/store/memory"
)

// TemplateID is the template id graphs reference for a SimpleAgent node.
const TemplateID = "agent.simple"

// BackendFactory resolves a backend id (as named in a node's config) to a
// concrete engine.InvocationBackend. The caller of NewTemplate supplies it,
// since llmbackend adapters need process-wide credentials the graph schema
// itself never carries.
type BackendFactory func(backendID string) (engine.InvocationBackend, error)

// runner adapts *agent.Core to engine.AgentRunner.
type runner struct {
	core *agent.Core
}

func (r *runner) Run(ctx context.Context, in engine.AgentRunInput) (engine.AgentRunResult, error) {
	out, err := r.core.Run(ctx, agent.RunInput{
		ThreadID:     in.ThreadID,
		CheckpointNs: in.CheckpointNs,
		Messages:     in.Messages,
	})
	if err != nil {
		return engine.AgentRunResult{}, err
	}
	return engine.AgentRunResult{Messages: out.Messages, NeedsMoreInfo: out.NeedsMoreInfo}, nil
}

func (r *runner) Stop(ctx context.Context) error {
	return r.core.Stop(ctx)
}

func (r *runner) StopThread(ctx context.Context, threadID, reason string) error {
	return r.core.StopThread(ctx, threadID, reason)
}

type handle struct {
	backends    BackendFactory
	checkpoints store.CheckpointStore
}

func (h *handle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	backendID, _ := init.Config["backend"].(string)
	if backendID == "" {
		backendID = "default"
	}
	if h.backends == nil {
		return nil, fmt.Errorf("agent %q: no backend factory configured", init.NodeID)
	}
	backend, err := h.backends(backendID)
	if err != nil {
		return nil, fmt.Errorf("agent %q: resolve backend %q: %w", init.NodeID, backendID, err)
	}

	model, _ := init.Config["model"].(string)
	systemPrompt, _ := init.Config["systemPrompt"].(string)
	reasoning, _ := init.Config["reasoning"].(bool)
	maxIterations, _ := init.Config["maxIterations"].(int)
	maxGuardRetries, _ := init.Config["maxGuardRetries"].(int)
	if maxGuardRetries == 0 {
		maxGuardRetries = 2
	}
	summarizeMaxTokens, _ := init.Config["summarizeMaxTokens"].(int)
	summarizeKeepTokens, _ := init.Config["summarizeKeepTokens"].(int)
	injectMode := agent.InjectAfterFinish
	if raw, ok := init.Config["injectMode"].(string); ok && raw == string(agent.InjectAfterToolCall) {
		injectMode = agent.InjectAfterToolCall
	}

	checkpoints := h.checkpoints
	if checkpoints == nil {
		checkpoints = memory.NewMemoryCheckpointStore()
	}

	core, err := agent.NewCore(agent.Config{
		NodeID:              init.NodeID,
		GraphID:             init.GraphID,
		Backend:             backend,
		Model:               model,
		SystemPrompt:        systemPrompt,
		Reasoning:           reasoning,
		MaxIterations:       maxIterations,
		MaxGuardRetries:     maxGuardRetries,
		SummarizeMaxTokens:  summarizeMaxTokens,
		SummarizeKeepTokens: summarizeKeepTokens,
		InjectMode:          injectMode,
		Checkpoints:         agent.NewCheckpointAdapter(checkpoints),
	})
	if err != nil {
		return nil, err
	}
	return &runner{core: core}, nil
}

func (h *handle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	r := instance.(*runner)

	var tools []agent.ToolBinding
	for _, outID := range init.OutputNodeIDs {
		raw, ok := frame.Instance(outID)
		if !ok {
			continue
		}
		provider, ok := raw.(engine.ToolProvider)
		if !ok {
			continue
		}
		spec := provider.ToolSpec()
		tools = append(tools, agent.ToolBinding{
			Spec:    spec,
			Execute: provider.Execute,
		})
	}
	r.core.SetTools(tools)

	// Notifier wiring happens after Configure: GraphService allocates a
	// graph's GraphStateManager right before compiling it, but attaches it to
	// SimpleAgent instances (via engine.NotifierSetter) only once the
	// compiled graph is registered. See runner.SetNotifier.
	return nil
}

// SetNotifier satisfies engine.NotifierSetter so GraphService can stream
// this node's activity once its graph's GraphStateManager exists.
func (r *runner) SetNotifier(sm *engine.GraphStateManager) {
	r.core.SetNotifier(sm)
}

func (h *handle) Destroy(ctx context.Context, instance any) error {
	r := instance.(*runner)
	return r.Stop(context.Background())
}

// NewTemplate registers the SimpleAgent template, resolving backends
// through backends and persisting checkpoints through checkpoints (a nil
// checkpoints falls back to an in-process memory store, which is fine for
// tests and single-process deployments but loses state across restarts).
func NewTemplate(backends BackendFactory, checkpoints store.CheckpointStore) *engine.Template {
	return &engine.Template{
		ID:      TemplateID,
		Kind:    engine.NodeKindSimpleAgent,
		Inputs:  []engine.KindConstraint{{Kind: engine.NodeKindTrigger}},
		Outputs: []engine.KindConstraint{{Kind: engine.NodeKindTool, Multiple: true}, {Kind: engine.NodeKindKnowledge, Multiple: true}, {Kind: engine.NodeKindMcp, Multiple: true}},
		Create: func() engine.NodeHandle {
			return &handle{backends: backends, checkpoints: checkpoints}
		},
	}
}
