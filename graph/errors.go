package graph

import "fmt"

// NodeInterrupt is returned by a node function when it needs to suspend the
// run and wait for external input (e.g. human-in-the-loop approval) before
// continuing. The caller is expected to resume later by re-invoking with a
// resume value attached to the context via WithResumeValue.
type NodeInterrupt struct {
	// Node is the name of the node that triggered the interrupt.
	Node string
	// Value is the data/query provided by the interrupt.
	Value any
}

func (e *NodeInterrupt) Error() string {
	return fmt.Sprintf("graph: interrupt at node %s: %v", e.Node, e.Value)
}
