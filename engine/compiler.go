package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/smallnest/agentgraph/log"
)

// CompileFrame holds every node instance provided so far during a single
// compile pass, so a node's Configure phase can look up its neighbours.
type CompileFrame struct {
	instances map[string]any
	nodes     map[string]Node
}

// NewCompileFrame builds a CompileFrame directly, for tests that exercise a
// single template's Configure phase without running a full compile pass.
func NewCompileFrame(instances map[string]any, nodes map[string]Node) *CompileFrame {
	if instances == nil {
		instances = make(map[string]any)
	}
	if nodes == nil {
		nodes = make(map[string]Node)
	}
	return &CompileFrame{instances: instances, nodes: nodes}
}

// Instance returns the already-provided instance for nodeID, if any.
func (f *CompileFrame) Instance(nodeID string) (any, bool) {
	v, ok := f.instances[nodeID]
	return v, ok
}

// Node returns the schema node for nodeID, if any.
func (f *CompileFrame) Node(nodeID string) (Node, bool) {
	n, ok := f.nodes[nodeID]
	return n, ok
}

// CompiledNode is one live node instance inside a CompiledGraph.
type CompiledNode struct {
	ID       string
	Kind     NodeKind
	Template string
	Config   map[string]any
	Handle   NodeHandle
	Instance any
}

// CompiledGraph is the in-memory, live form of a Graph produced by
// GraphCompiler.Compile. It is owned exclusively by the GraphRegistry.
type CompiledGraph struct {
	GraphID string
	Nodes   map[string]*CompiledNode
	Edges   []Edge
	State   *GraphState
	order   []string // compile order, reused so Destroy can reverse it
}

// Destroy tears down every node in reverse dependency order. It is
// idempotent: nodes already destroyed (Instance == nil) are skipped.
func (g *CompiledGraph) Destroy(ctx context.Context) error {
	var firstErr error
	for i := len(g.order) - 1; i >= 0; i-- {
		cn := g.Nodes[g.order[i]]
		if cn == nil || cn.Instance == nil {
			continue
		}
		if err := cn.Handle.Destroy(ctx, cn.Instance); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destroy node %q: %w", cn.ID, err)
		}
		cn.Instance = nil
	}
	return firstErr
}

// GraphCompiler validates a GraphSchema and turns it into a CompiledGraph.
type GraphCompiler struct {
	templates *TemplateRegistry
	logger    log.Logger
}

// NewGraphCompiler creates a compiler backed by templates.
func NewGraphCompiler(templates *TemplateRegistry, logger log.Logger) *GraphCompiler {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &GraphCompiler{templates: templates, logger: logger}
}

// kindLayer orders node kinds for compilation: Runtimes, then
// Knowledge/Mcp, then Tools, then Agents, then Triggers.
func kindLayer(k NodeKind) int {
	switch k {
	case NodeKindRuntime:
		return 0
	case NodeKindKnowledge, NodeKindMcp:
		return 1
	case NodeKindTool:
		return 2
	case NodeKindSimpleAgent:
		return 3
	case NodeKindTrigger:
		return 4
	default:
		return 5
	}
}

// ValidateSchema is pure: it never touches the template registry's Create
// factories, only its declared kinds/constraints/validators.
func (c *GraphCompiler) ValidateSchema(schema GraphSchema) error {
	seen := make(map[string]Node, len(schema.Nodes))
	templatesByNode := make(map[string]*Template, len(schema.Nodes))

	for _, n := range schema.Nodes {
		if _, dup := seen[n.ID]; dup {
			return NewEngineError(ErrGraphDuplicateNode, "duplicate node id %q", n.ID)
		}
		seen[n.ID] = n

		t, err := c.templates.Get(n.Template)
		if err != nil {
			return err
		}
		templatesByNode[n.ID] = t

		if err := validateConfig(t, n.ID, n.Config); err != nil {
			return err
		}
	}

	for _, e := range schema.Edges {
		from, ok := seen[e.From]
		if !ok {
			return NewEngineError(ErrGraphEdgeNotFound, "edge references unknown node %q", e.From)
		}
		to, ok := seen[e.To]
		if !ok {
			return NewEngineError(ErrGraphEdgeNotFound, "edge references unknown node %q", e.To)
		}

		fromTemplate := templatesByNode[from.ID]
		toTemplate := templatesByNode[to.ID]
		if !kindAllowed(fromTemplate.Outputs, toTemplate.Kind) || !kindAllowed(toTemplate.Inputs, fromTemplate.Kind) {
			return NewEngineError(ErrGraphKindMismatch, "edge %s->%s is not kind-compatible", e.From, e.To)
		}
	}

	return nil
}

func kindAllowed(constraints []KindConstraint, kind NodeKind) bool {
	if len(constraints) == 0 {
		// A template that declares no port constraints accepts any kind.
		return true
	}
	for _, c := range constraints {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// compileOrder computes a deterministic ordering consistent with edges:
// kind-layered, ties within a layer broken by edge-implied dependency and
// finally by schema position.
func compileOrder(schema GraphSchema, templatesByNode map[string]*Template) []string {
	indexInSchema := make(map[string]int, len(schema.Nodes))
	for i, n := range schema.Nodes {
		indexInSchema[n.ID] = i
	}

	// dependsOn[a] = nodes that must precede a, from edges a<-b (b->a).
	dependsOn := make(map[string][]string)
	for _, e := range schema.Edges {
		dependsOn[e.To] = append(dependsOn[e.To], e.From)
	}

	order := make([]string, 0, len(schema.Nodes))
	placed := make(map[string]bool, len(schema.Nodes))

	ids := make([]string, 0, len(schema.Nodes))
	for _, n := range schema.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		li, lj := kindLayer(templatesByNode[ids[i]].Kind), kindLayer(templatesByNode[ids[j]].Kind)
		if li != lj {
			return li < lj
		}
		return indexInSchema[ids[i]] < indexInSchema[ids[j]]
	})

	var visit func(id string)
	visit = func(id string) {
		if placed[id] {
			return
		}
		for _, dep := range dependsOn[id] {
			if kindLayer(templatesByNode[dep].Kind) <= kindLayer(templatesByNode[id].Kind) {
				visit(dep)
			}
		}
		placed[id] = true
		order = append(order, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}

// Compile validates schema then runs the two-phase provide/configure
// construction in dependency order, fully unwinding on any failure.
func (c *GraphCompiler) Compile(ctx context.Context, graph *Graph) (*CompiledGraph, error) {
	schema := graph.Schema
	if err := c.ValidateSchema(schema); err != nil {
		return nil, err
	}

	templatesByNode := make(map[string]*Template, len(schema.Nodes))
	nodesByID := make(map[string]Node, len(schema.Nodes))
	inputsOf := make(map[string][]string)
	outputsOf := make(map[string][]string)
	for _, n := range schema.Nodes {
		t, err := c.templates.Get(n.Template)
		if err != nil {
			return nil, err
		}
		templatesByNode[n.ID] = t
		nodesByID[n.ID] = n
	}
	for _, e := range schema.Edges {
		outputsOf[e.From] = append(outputsOf[e.From], e.To)
		inputsOf[e.To] = append(inputsOf[e.To], e.From)
	}

	order := compileOrder(schema, templatesByNode)

	frame := &CompileFrame{instances: make(map[string]any), nodes: nodesByID}
	compiled := &CompiledGraph{
		GraphID: graph.ID,
		Nodes:   make(map[string]*CompiledNode, len(order)),
		Edges:   schema.Edges,
		State:   NewGraphState(),
		order:   order,
	}

	unwind := func(cause error) (*CompiledGraph, error) {
		for i := len(compiled.order) - 1; i >= 0; i-- {
			cn := compiled.Nodes[compiled.order[i]]
			if cn == nil || cn.Instance == nil {
				continue
			}
			if derr := cn.Handle.Destroy(ctx, cn.Instance); derr != nil {
				c.logger.Error("compile unwind: destroy %q failed: %v", cn.ID, derr)
			}
		}
		return nil, cause
	}

	// Phase 1: provide, in dependency order.
	for _, id := range order {
		n := nodesByID[id]
		t := templatesByNode[id]
		handle := t.Create()
		init := NodeInit{
			GraphID:       graph.ID,
			NodeID:        id,
			Version:       graph.Version,
			Config:        n.Config,
			InputNodeIDs:  inputsOf[id],
			OutputNodeIDs: outputsOf[id],
		}
		instance, err := handle.Provide(ctx, init)
		if err != nil {
			compiled.Nodes[id] = &CompiledNode{ID: id, Kind: t.Kind, Template: t.ID, Config: n.Config, Handle: handle}
			return unwind(fmt.Errorf("provide node %q: %w", id, err))
		}
		compiled.Nodes[id] = &CompiledNode{ID: id, Kind: t.Kind, Template: t.ID, Config: n.Config, Handle: handle, Instance: instance}
		frame.instances[id] = instance
	}

	// Phase 2: configure, same order, may read neighbours via frame.
	for _, id := range order {
		cn := compiled.Nodes[id]
		n := nodesByID[id]
		init := NodeInit{
			GraphID:       graph.ID,
			NodeID:        id,
			Version:       graph.Version,
			Config:        n.Config,
			InputNodeIDs:  inputsOf[id],
			OutputNodeIDs: outputsOf[id],
		}
		if err := cn.Handle.Configure(ctx, init, cn.Instance, frame); err != nil {
			return unwind(fmt.Errorf("configure node %q: %w", id, err))
		}
	}

	return compiled, nil
}
