package graph

import "errors"

// END is the sentinel destination name meaning "terminate the run".
const END = "END"

var (
	// ErrEntryPointNotSet is returned by Compile when no entry point was set.
	ErrEntryPointNotSet = errors.New("graph: entry point not set")

	// ErrNodeNotFound is returned when an edge references an unknown node.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrNoOutgoingEdge is returned when a node has no way to continue and is
	// not END.
	ErrNoOutgoingEdge = errors.New("graph: no outgoing edge found for node")

	// ErrMaxIterations is returned by StateRunnable.Invoke when the step
	// budget is exhausted without reaching END.
	ErrMaxIterations = errors.New("graph: max iterations exceeded")
)

// Edge connects two nodes unconditionally.
type Edge struct {
	From string
	To   string
}
