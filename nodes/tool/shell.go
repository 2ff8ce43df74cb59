// Package tool implements Tool-kind node templates: shell, which execs a
// command against a wired Runtime node, and websearch, which wraps Brave
// Search. Both satisfy engine.ToolProvider so a SimpleAgent node can bind
// them during Configure.
package tool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smallnest/agentgraph/engine"
	"github.com/smallnest/agentgraph/nodes/runtime"
)

// ShellTemplateID is the template id graphs reference for a shell exec tool
// node.
const ShellTemplateID = "tool.shell"

type shellTool struct {
	nodeID  string
	spec    engine.ToolSpec
	runtime runtime.Execer
}

func (t *shellTool) ToolSpec() engine.ToolSpec {
	return t.spec
}

func (t *shellTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	cmd, _ := args["cmd"].(string)
	if cmd == "" {
		return "", fmt.Errorf("shell tool %q: missing required argument %q", t.nodeID, "cmd")
	}

	var argv []string
	if raw, ok := args["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				argv = append(argv, s)
			}
		}
	}
	cwd, _ := args["cwd"].(string)

	result, err := t.runtime.Exec(ctx, t.nodeID+"-"+uuid.NewString(), runtime.ExecSpec{
		Cmd:  cmd,
		Args: argv,
		Cwd:  cwd,
	})
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "exitCode=124 stdout= stderr=Aborted", nil
	}
	return fmt.Sprintf("exitCode=%d\nstdout:\n%s\nstderr:\n%s", result.ExitCode, result.Stdout, result.Stderr), nil
}

type shellHandle struct{}

func (h *shellHandle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	description, _ := init.Config["description"].(string)
	if description == "" {
		description = "Run a shell command inside the graph's sandboxed runtime and return its output."
	}
	return &shellTool{
		nodeID: init.NodeID,
		spec: engine.ToolSpec{
			Name:        "shell",
			Description: description,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cmd":  map[string]any{"type": "string", "description": "the command to run"},
					"args": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"cwd":  map[string]any{"type": "string", "description": "working directory relative to the workspace root"},
				},
				"required": []string{"cmd"},
			},
		},
	}, nil
}

func (h *shellHandle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	t := instance.(*shellTool)
	if len(init.InputNodeIDs) != 1 {
		return fmt.Errorf("shell tool %q: expected exactly one wired runtime, got %d", init.NodeID, len(init.InputNodeIDs))
	}
	raw, ok := frame.Instance(init.InputNodeIDs[0])
	if !ok {
		return fmt.Errorf("shell tool %q: runtime node %q not yet provided", init.NodeID, init.InputNodeIDs[0])
	}
	execer, ok := raw.(runtime.Execer)
	if !ok {
		return fmt.Errorf("shell tool %q: wired node %q does not implement exec", init.NodeID, init.InputNodeIDs[0])
	}
	t.runtime = execer
	return nil
}

func (h *shellHandle) Destroy(ctx context.Context, instance any) error {
	return nil
}

// NewShellTemplate registers the shell exec tool template.
func NewShellTemplate() *engine.Template {
	return &engine.Template{
		ID:      ShellTemplateID,
		Kind:    engine.NodeKindTool,
		Inputs:  []engine.KindConstraint{{Kind: engine.NodeKindRuntime}},
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &shellHandle{} },
	}
}
