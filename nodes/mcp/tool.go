package mcp

import (
	"context"
	"fmt"

	"github.com/smallnest/agentgraph/engine"
)

// ToolTemplateID is the template id graphs reference for a node that exposes
// one tool advertised by a wired MCP session.
const ToolTemplateID = "mcp.tool"

type remoteTool struct {
	nodeID     string
	toolName   string
	spec       engine.ToolSpec
	session    Session
}

func (t *remoteTool) ToolSpec() engine.ToolSpec {
	return t.spec
}

func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.session.CallTool(ctx, t.toolName, args)
}

type toolHandle struct{}

func (h *toolHandle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	toolName, _ := init.Config["toolName"].(string)
	if toolName == "" {
		return nil, fmt.Errorf("mcp tool %q: missing required config %q", init.NodeID, "toolName")
	}
	return &remoteTool{nodeID: init.NodeID, toolName: toolName}, nil
}

func (h *toolHandle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	t := instance.(*remoteTool)
	if len(init.InputNodeIDs) != 1 {
		return fmt.Errorf("mcp tool %q: expected exactly one wired session, got %d", init.NodeID, len(init.InputNodeIDs))
	}
	raw, ok := frame.Instance(init.InputNodeIDs[0])
	if !ok {
		return fmt.Errorf("mcp tool %q: session node %q not yet provided", init.NodeID, init.InputNodeIDs[0])
	}
	sess, ok := raw.(Session)
	if !ok {
		return fmt.Errorf("mcp tool %q: wired node %q is not an mcp session", init.NodeID, init.InputNodeIDs[0])
	}
	t.session = sess

	tools, err := sess.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("mcp tool %q: list tools: %w", init.NodeID, err)
	}
	for _, remote := range tools {
		if remote.Name != t.toolName {
			continue
		}
		params := map[string]any{"type": "object"}
		if remote.InputSchema != nil {
			params = schemaToMap(remote.InputSchema)
		}
		t.spec = engine.ToolSpec{
			Name:        remote.Name,
			Description: remote.Description,
			Parameters:  params,
		}
		return nil
	}
	return fmt.Errorf("mcp tool %q: server does not advertise tool %q", init.NodeID, t.toolName)
}

func (h *toolHandle) Destroy(ctx context.Context, instance any) error {
	return nil
}

// schemaToMap returns a tool's input schema in the map[string]any shape
// engine.ToolSpec.Parameters expects when handed to an LLM backend's
// function-calling payload. A schema that is already a map[string]any is
// passed through unchanged; any other type, *jsonschema.Schema included,
// becomes a bare {"type": "object"} schema.
func schemaToMap(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	return map[string]any{"type": "object"}
}

// NewToolTemplate registers the MCP remote-tool template.
func NewToolTemplate() *engine.Template {
	return &engine.Template{
		ID:      ToolTemplateID,
		Kind:    engine.NodeKindTool,
		Inputs:  []engine.KindConstraint{{Kind: engine.NodeKindMcp}},
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &toolHandle{} },
	}
}
