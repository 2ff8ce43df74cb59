// Package mcp implements Mcp-kind and Tool-kind node templates bridging a
// graph to a Model Context Protocol server: session connects to one server
// over stdio, and tool exposes one of the server's advertised tools to a
// wired SimpleAgent.
package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/smallnest/agentgraph/engine"
)

// SessionTemplateID is the template id graphs reference for an MCP server
// connection node.
const SessionTemplateID = "mcp.session"

// Session is implemented by the instance a session node's Provide returns;
// a wired mcp.tool node type-asserts to this during Configure.
type Session interface {
	ListTools(ctx context.Context) ([]*sdk.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

type session struct {
	nodeID  string
	command string
	args    []string

	mu      sync.Mutex
	client  *sdk.Client
	conn    *sdk.ClientSession
	started bool
}

func (s *session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.client = sdk.NewClient(&sdk.Implementation{Name: "agentgraph", Version: "0.1.0"}, nil)
	transport := &sdk.CommandTransport{Command: exec.Command(s.command, s.args...)}
	conn, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp session %q: connect: %w", s.nodeID, err)
	}
	s.conn = conn
	s.started = true
	return nil
}

func (s *session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *session) ListTools(ctx context.Context) ([]*sdk.Tool, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("mcp session %q: not started", s.nodeID)
	}
	result, err := conn.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return "", fmt.Errorf("mcp session %q: not started", s.nodeID)
	}

	result, err := conn.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool %q returned an error result", name)
	}

	var out string
	for _, c := range result.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			out += tc.Text
		}
	}
	return out, nil
}

type handle struct{}

func (h *handle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	command, _ := init.Config["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("mcp session %q: missing required config %q", init.NodeID, "command")
	}
	var args []string
	if raw, ok := init.Config["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}
	return &session{nodeID: init.NodeID, command: command, args: args}, nil
}

func (h *handle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	s := instance.(*session)
	return s.Start(ctx)
}

func (h *handle) Destroy(ctx context.Context, instance any) error {
	s := instance.(*session)
	return s.Stop(context.Background())
}

// NewSessionTemplate registers the MCP server connection template.
func NewSessionTemplate() *engine.Template {
	return &engine.Template{
		ID:      SessionTemplateID,
		Kind:    engine.NodeKindMcp,
		Inputs:  nil,
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &handle{} },
	}
}
