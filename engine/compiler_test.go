package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	onProvide   func(ctx context.Context, init NodeInit) (any, error)
	onConfigure func(ctx context.Context, init NodeInit, instance any, frame *CompileFrame) error
	onDestroy   func(ctx context.Context, instance any) error
	destroyed   *bool
}

func (h *fakeHandle) Provide(ctx context.Context, init NodeInit) (any, error) {
	if h.onProvide != nil {
		return h.onProvide(ctx, init)
	}
	return init.NodeID, nil
}

func (h *fakeHandle) Configure(ctx context.Context, init NodeInit, instance any, frame *CompileFrame) error {
	if h.onConfigure != nil {
		return h.onConfigure(ctx, init, instance, frame)
	}
	return nil
}

func (h *fakeHandle) Destroy(ctx context.Context, instance any) error {
	if h.destroyed != nil {
		*h.destroyed = true
	}
	if h.onDestroy != nil {
		return h.onDestroy(ctx, instance)
	}
	return nil
}

func simpleTemplate(id string, kind NodeKind, inputs, outputs []KindConstraint, handle func() NodeHandle) *Template {
	return &Template{ID: id, Kind: kind, Inputs: inputs, Outputs: outputs, Create: handle}
}

func newTestRegistry() *TemplateRegistry {
	r := NewTemplateRegistry()
	r.Register(simpleTemplate("manual-trigger", NodeKindTrigger,
		[]KindConstraint{{Kind: NodeKindSimpleAgent}}, nil,
		func() NodeHandle { return &fakeHandle{} }))
	r.Register(simpleTemplate("simple-agent", NodeKindSimpleAgent,
		nil, []KindConstraint{{Kind: NodeKindTrigger}},
		func() NodeHandle { return &fakeHandle{} }))
	return r
}

func TestGraphCompiler_ValidateSchema_DuplicateNode(t *testing.T) {
	c := NewGraphCompiler(newTestRegistry(), nil)
	schema := GraphSchema{Nodes: []Node{
		{ID: "dup", Template: "manual-trigger"},
		{ID: "dup", Template: "simple-agent"},
	}}
	err := c.ValidateSchema(schema)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrGraphDuplicateNode, ee.Kind)
}

func TestGraphCompiler_ValidateSchema_EdgeNotFound(t *testing.T) {
	c := NewGraphCompiler(newTestRegistry(), nil)
	schema := GraphSchema{
		Nodes: []Node{{ID: "x", Template: "manual-trigger"}},
		Edges: []Edge{{From: "x", To: "y"}},
	}
	err := c.ValidateSchema(schema)
	assert.True(t, IsKind(err, ErrGraphEdgeNotFound))
}

func TestGraphCompiler_ValidateSchema_TemplateNotRegistered(t *testing.T) {
	c := NewGraphCompiler(newTestRegistry(), nil)
	schema := GraphSchema{Nodes: []Node{{ID: "a", Template: "unknown"}}}
	err := c.ValidateSchema(schema)
	assert.True(t, IsKind(err, ErrTemplateNotRegistered))
}

func TestGraphCompiler_ValidateSchema_InvalidConfig(t *testing.T) {
	registry := NewTemplateRegistry()
	registry.Register(&Template{
		ID:   "agent",
		Kind: NodeKindSimpleAgent,
		Validate: func(config map[string]any) error {
			if _, ok := config["instructions"]; !ok {
				return assert.AnError
			}
			return nil
		},
		Create: func() NodeHandle { return &fakeHandle{} },
	})
	c := NewGraphCompiler(registry, nil)
	schema := GraphSchema{Nodes: []Node{{ID: "a", Template: "agent", Config: map[string]any{"invalid": "x"}}}}
	err := c.ValidateSchema(schema)
	assert.True(t, IsKind(err, ErrInvalidTemplateConfig))
}

func TestGraphCompiler_ValidateSchema_KindMismatch(t *testing.T) {
	registry := NewTemplateRegistry()
	registry.Register(simpleTemplate("a", NodeKindTool, []KindConstraint{{Kind: NodeKindRuntime}}, nil, func() NodeHandle { return &fakeHandle{} }))
	registry.Register(simpleTemplate("b", NodeKindSimpleAgent, nil, []KindConstraint{{Kind: NodeKindRuntime}}, func() NodeHandle { return &fakeHandle{} }))
	c := NewGraphCompiler(registry, nil)
	schema := GraphSchema{
		Nodes: []Node{{ID: "a", Template: "a"}, {ID: "b", Template: "b"}},
		Edges: []Edge{{From: "b", To: "a"}},
	}
	err := c.ValidateSchema(schema)
	assert.True(t, IsKind(err, ErrGraphKindMismatch))
}

func TestGraphCompiler_Compile_ProvideThenConfigureInOrder(t *testing.T) {
	var order []string
	makeHandle := func(name string) func() NodeHandle {
		return func() NodeHandle {
			return &fakeHandle{
				onProvide: func(_ context.Context, init NodeInit) (any, error) {
					order = append(order, "provide:"+name)
					return name, nil
				},
				onConfigure: func(_ context.Context, init NodeInit, instance any, frame *CompileFrame) error {
					order = append(order, "configure:"+name)
					return nil
				},
			}
		}
	}

	registry := NewTemplateRegistry()
	registry.Register(simpleTemplate("manual-trigger", NodeKindTrigger, []KindConstraint{{Kind: NodeKindSimpleAgent}}, nil, makeHandle("trigger")))
	registry.Register(simpleTemplate("simple-agent", NodeKindSimpleAgent, nil, []KindConstraint{{Kind: NodeKindTrigger}}, makeHandle("agent")))

	c := NewGraphCompiler(registry, nil)
	g := &Graph{ID: "g1", Version: "1.0.0", Schema: GraphSchema{
		Nodes: []Node{
			{ID: "trigger-1", Template: "manual-trigger"},
			{ID: "agent-1", Template: "simple-agent"},
		},
		Edges: []Edge{{From: "trigger-1", To: "agent-1"}},
	}}

	compiled, err := c.Compile(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, compiled.Nodes, 2)
	// Agent (kind layer 3) must be provided+configured before Trigger (layer 4).
	assert.Equal(t, []string{"provide:agent", "provide:trigger", "configure:agent", "configure:trigger"}, order)
}

func TestGraphCompiler_Compile_UnwindsOnFailure(t *testing.T) {
	destroyedA := false
	registry := NewTemplateRegistry()
	registry.Register(simpleTemplate("a", NodeKindRuntime, nil, nil, func() NodeHandle {
		return &fakeHandle{destroyed: &destroyedA}
	}))
	registry.Register(simpleTemplate("b", NodeKindTool, nil, nil, func() NodeHandle {
		return &fakeHandle{onProvide: func(_ context.Context, _ NodeInit) (any, error) {
			return nil, assert.AnError
		}}
	}))

	c := NewGraphCompiler(registry, nil)
	g := &Graph{ID: "g1", Version: "1.0.0", Schema: GraphSchema{
		Nodes: []Node{{ID: "a", Template: "a"}, {ID: "b", Template: "b"}},
	}}

	_, err := c.Compile(context.Background(), g)
	require.Error(t, err)
	assert.True(t, destroyedA, "node a should have been destroyed during unwind")
}
