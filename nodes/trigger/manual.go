// Package trigger implements Trigger-kind node templates: manual, the
// direct request/response entry point GraphService.ExecuteTrigger calls
// into synchronously.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/agentgraph/engine"
)

// ManualTemplateID is the template id graphs reference for a manual trigger
// node.
const ManualTemplateID = "trigger.manual"

// manualTrigger is the instance a manual trigger node's Provide returns. It
// forwards invocations directly to the SimpleAgent node it is wired to,
// applying no transformation of its own.
type manualTrigger struct {
	mu      sync.Mutex
	started bool

	nodeID       string
	agentNodeID  string
	checkpointNs string
	agent        engine.Agent
	runFunc      func(ctx context.Context, req engine.TriggerInvokeRequest) (engine.TriggerInvokeResult, error)
}

func (t *manualTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

func (t *manualTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	return nil
}

func (t *manualTrigger) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *manualTrigger) InvokeAgent(ctx context.Context, req engine.TriggerInvokeRequest) (engine.TriggerInvokeResult, error) {
	t.mu.Lock()
	started := t.started
	runFunc := t.runFunc
	t.mu.Unlock()

	if !started {
		return engine.TriggerInvokeResult{}, engine.NewEngineError(engine.ErrTriggerNotStarted, "trigger %q is stopped", t.nodeID)
	}
	if runFunc == nil {
		return engine.TriggerInvokeResult{}, fmt.Errorf("trigger %q: no agent wired", t.nodeID)
	}
	return runFunc(ctx, req)
}

// handle is the NodeHandle a manual trigger template's Create returns.
type handle struct{}

func (h *handle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	return &manualTrigger{nodeID: init.NodeID}, nil
}

func (h *handle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	trig := instance.(*manualTrigger)
	if len(init.OutputNodeIDs) != 1 {
		return fmt.Errorf("trigger %q: expected exactly one wired agent, got %d", init.NodeID, len(init.OutputNodeIDs))
	}
	agentNodeID := init.OutputNodeIDs[0]

	raw, ok := frame.Instance(agentNodeID)
	if !ok {
		return fmt.Errorf("trigger %q: agent node %q not yet provided", init.NodeID, agentNodeID)
	}
	runner, ok := raw.(engine.AgentRunner)
	if !ok {
		return fmt.Errorf("trigger %q: wired node %q does not implement the agent runner contract", init.NodeID, agentNodeID)
	}
	agentInstance, _ := raw.(engine.Agent)

	checkpointNs, _ := init.Config["checkpointNs"].(string)
	if checkpointNs == "" {
		checkpointNs = agentNodeID
	}

	trig.mu.Lock()
	trig.agentNodeID = agentNodeID
	trig.checkpointNs = checkpointNs
	trig.agent = agentInstance
	trig.runFunc = func(ctx context.Context, req engine.TriggerInvokeRequest) (engine.TriggerInvokeResult, error) {
		threadID := req.ThreadSubID
		if threadID == "" {
			threadID = uuid.NewString()
		}
		result, err := runner.Run(ctx, engine.AgentRunInput{
			ThreadID:     threadID,
			CheckpointNs: checkpointNs,
			Messages:     req.Messages,
		})
		if err != nil {
			return engine.TriggerInvokeResult{}, err
		}
		return engine.TriggerInvokeResult{
			ExternalThreadID: threadID,
			CheckpointNs:     checkpointNs,
			Messages:         result.Messages,
			NeedsMoreInfo:    result.NeedsMoreInfo,
		}, nil
	}
	trig.mu.Unlock()

	return nil
}

func (h *handle) Destroy(ctx context.Context, instance any) error {
	trig := instance.(*manualTrigger)
	return trig.Stop(context.Background())
}

// NewTemplate registers the manual trigger template.
func NewTemplate() *engine.Template {
	return &engine.Template{
		ID:      ManualTemplateID,
		Kind:    engine.NodeKindTrigger,
		Inputs:  nil,
		Outputs: []engine.KindConstraint{{Kind: engine.NodeKindSimpleAgent}},
		Create:  func() engine.NodeHandle { return &handle{} },
	}
}
