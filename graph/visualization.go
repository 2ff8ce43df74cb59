package graph

import (
	"fmt"
	"strings"
)

// Exporter renders a StateGraph[S]'s wiring for humans. cmd/graphctl does
// not use it; it renders graph schemas with its own code.
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates an Exporter for graph.
func NewExporter[S any](g *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: g}
}

// MermaidOptions configures DrawMermaidWithOptions.
type MermaidOptions struct {
	// Direction is the flowchart direction, e.g. "TD" or "LR". Defaults to "TD".
	Direction string
}

// DrawMermaid renders the graph as a top-down Mermaid flowchart.
func (e *Exporter[S]) DrawMermaid() string {
	return e.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions renders the graph as a Mermaid flowchart.
func (e *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	if e.graph.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString("    style START fill:#90EE90\n")
		fmt.Fprintf(&sb, "    START --> %s\n", e.graph.entryPoint)
	}

	for _, name := range e.graph.order {
		node := e.graph.nodes[name]
		label := node.Name
		if node.Description != "" {
			label = fmt.Sprintf("%s: %s", node.Name, node.Description)
		}
		fmt.Fprintf(&sb, "    %s[%q]\n", name, label)
	}

	for _, edge := range e.graph.edges {
		to := edge.To
		if to == END {
			to = "END_"
			sb.WriteString("    END_((\"END\"))\n")
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", edge.From, to)
	}

	for from := range e.graph.conditionalEdges {
		fmt.Fprintf(&sb, "    %s -.->|condition| %s\n", from, "...")
	}

	return sb.String()
}
