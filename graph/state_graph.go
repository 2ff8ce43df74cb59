package graph

import (
	"context"
	"fmt"
	"sync"
)

// TypedNode is a single named step in a StateGraph[S].
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// StateGraph is a directed graph of named TypedNode[S] steps over a shared
// state type S, with unconditional and conditional edges between them.
//
// Example:
//
//	g := graph.NewStateGraph[AgentState]()
//	g.AddNode("summarize", "fold old turns into a summary", summarizeFn)
//	g.AddNode("invoke_llm", "call the model", invokeFn)
//	g.AddEdge("summarize", "invoke_llm")
//	g.SetEntryPoint("summarize")
//	runnable, err := g.Compile()
type StateGraph[S any] struct {
	nodes            map[string]TypedNode[S]
	order            []string // insertion order, used for deterministic iteration
	edges            []Edge
	conditionalEdges map[string]func(ctx context.Context, state S) string
	entryPoint       string
	retryConfig      *RetryConfig
}

// NewStateGraph creates an empty StateGraph for state type S.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode registers a node function under name.
func (g *StateGraph[S]) AddNode(name, description string, fn func(ctx context.Context, state S) (S, error)) {
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
	}
	g.nodes[name] = TypedNode[S]{Name: name, Description: description, Function: fn}
}

// AddEdge adds an unconditional transition from one node to another.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge installs a routing function for from: after from runs,
// condition picks the next node name (or END) based on the resulting state.
// A from node may have at most one conditional edge; it replaces any prior
// unconditional edges registered for the same source.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint names the first node to run.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy configures automatic retry of failing node functions. A nil
// policy (the default) disables retries.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryConfig) {
	g.retryConfig = policy
}

// Compile validates the graph's wiring and produces an executable
// StateRunnable[S].
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %q", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %q", ErrNodeNotFound, e.From)
		}
		if e.To != END {
			if _, ok := g.nodes[e.To]; !ok {
				return nil, fmt.Errorf("%w: edge target %q", ErrNodeNotFound, e.To)
			}
		}
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge source %q", ErrNodeNotFound, from)
		}
	}

	next := make(map[string]string, len(g.edges))
	for _, e := range g.edges {
		next[e.From] = e.To
	}

	return &StateRunnable[S]{
		nodes:            g.nodes,
		next:             next,
		conditionalEdges: g.conditionalEdges,
		entryPoint:       g.entryPoint,
		retryConfig:      g.retryConfig,
	}, nil
}

// StateRunnable is a compiled, executable StateGraph[S].
type StateRunnable[S any] struct {
	nodes            map[string]TypedNode[S]
	next             map[string]string
	conditionalEdges map[string]func(ctx context.Context, state S) string
	entryPoint       string
	retryConfig      *RetryConfig
	tracer           *Tracer

	mu        sync.RWMutex
	listeners []NodeListener[S]
}

// SetTracer attaches a Tracer that records a span per node execution.
func (r *StateRunnable[S]) SetTracer(t *Tracer) { r.tracer = t }

// AddListener registers a listener notified of every node-level event.
func (r *StateRunnable[S]) AddListener(l NodeListener[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *StateRunnable[S]) notify(ctx context.Context, event NodeEvent, nodeName string, state S, err error) {
	r.mu.RLock()
	ls := make([]NodeListener[S], len(r.listeners))
	copy(ls, r.listeners)
	r.mu.RUnlock()
	for _, l := range ls {
		l.OnNodeEvent(ctx, event, nodeName, state, err)
	}
}

// MaxIterationsDefault bounds Invoke when the caller passes maxIterations<=0.
const MaxIterationsDefault = 50

// Invoke runs the graph to completion (END) or until maxIterations node
// executions have happened, returning ErrMaxIterations in the latter case.
// A maxIterations of 0 uses MaxIterationsDefault.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S, maxIterations int) (S, error) {
	if maxIterations <= 0 {
		maxIterations = MaxIterationsDefault
	}

	state := initialState
	current := r.entryPoint

	for i := 0; i < maxIterations; i++ {
		node, ok := r.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %q", ErrNodeNotFound, current)
		}

		var span *TraceSpan
		if r.tracer != nil {
			span = r.tracer.StartSpan(TraceEventNodeStart, current)
		}
		r.notify(ctx, EventNodeStart, current, state, nil)

		newState, err := r.execute(ctx, node, state)

		if err != nil {
			r.notify(ctx, EventNodeError, current, state, err)
			if r.tracer != nil {
				r.tracer.EndSpan(span, state, err)
			}
			return state, fmt.Errorf("node %q: %w", current, err)
		}
		state = newState
		r.notify(ctx, EventNodeComplete, current, state, nil)
		if r.tracer != nil {
			r.tracer.EndSpan(span, state, nil)
		}

		nextNode, err := r.route(ctx, current, state)
		if err != nil {
			return state, err
		}
		if nextNode == END {
			return state, nil
		}
		current = nextNode
	}

	return state, ErrMaxIterations
}

// route determines the next node name after current has run.
func (r *StateRunnable[S]) route(ctx context.Context, current string, state S) (string, error) {
	if cond, ok := r.conditionalEdges[current]; ok {
		dest := cond(ctx, state)
		if dest != END {
			if _, ok := r.nodes[dest]; !ok {
				return "", fmt.Errorf("%w: conditional target %q", ErrNodeNotFound, dest)
			}
		}
		return dest, nil
	}
	if dest, ok := r.next[current]; ok {
		return dest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoOutgoingEdge, current)
}

// execute runs node.Function, applying the retry policy if one is set.
func (r *StateRunnable[S]) execute(ctx context.Context, node TypedNode[S], state S) (S, error) {
	if r.retryConfig == nil {
		return node.Function(ctx, state)
	}
	return runWithRetry(ctx, r.retryConfig, func(ctx context.Context) (S, error) {
		return node.Function(ctx, state)
	}, func(attempt int, err error) {
		r.notify(ctx, EventNodeRetry, node.Name, state, err)
	})
}
