package engine

import "fmt"

// ErrorKind is a stable, wire-safe identifier for an engine error condition.
type ErrorKind string

const (
	ErrGraphNotFound        ErrorKind = "GRAPH_NOT_FOUND"
	ErrNodeNotFound         ErrorKind = "NODE_NOT_FOUND"
	ErrAgentNotFound        ErrorKind = "AGENT_NOT_FOUND"
	ErrTriggerNotFound      ErrorKind = "TRIGGER_NOT_FOUND"
	ErrThreadNotFound       ErrorKind = "THREAD_NOT_FOUND"
	ErrGraphAlreadyRunning  ErrorKind = "GRAPH_ALREADY_RUNNING"
	ErrGraphNotRunning      ErrorKind = "GRAPH_NOT_RUNNING"
	ErrGraphDuplicateNode   ErrorKind = "GRAPH_DUPLICATE_NODE"
	ErrGraphEdgeNotFound    ErrorKind = "GRAPH_EDGE_NOT_FOUND"
	ErrTemplateNotRegistered ErrorKind = "TEMPLATE_NOT_REGISTERED"
	ErrInvalidTemplateConfig ErrorKind = "INVALID_TEMPLATE_CONFIG"
	ErrGraphKindMismatch    ErrorKind = "GRAPH_KIND_MISMATCH"
	ErrVersionConflict      ErrorKind = "VERSION_CONFLICT"
	ErrMergeConflict        ErrorKind = "MERGE_CONFLICT"
	ErrNodeNotTrigger       ErrorKind = "NODE_NOT_TRIGGER"
	ErrTriggerNotStarted    ErrorKind = "TRIGGER_NOT_STARTED"
	ErrThreadBusy           ErrorKind = "THREAD_BUSY"
)

// httpStatus maps each ErrorKind to its HTTP-style status code, per the
// error taxonomy carried across the engine's boundaries.
var httpStatus = map[ErrorKind]int{
	ErrGraphNotFound:   404,
	ErrNodeNotFound:    404,
	ErrAgentNotFound:   404,
	ErrTriggerNotFound: 404,
	ErrThreadNotFound:  404,

	ErrGraphAlreadyRunning:   400,
	ErrGraphNotRunning:       400,
	ErrGraphDuplicateNode:    400,
	ErrGraphEdgeNotFound:     400,
	ErrTemplateNotRegistered: 400,
	ErrInvalidTemplateConfig: 400,
	ErrGraphKindMismatch:     400,
	ErrVersionConflict:       400,
	ErrMergeConflict:         400,
	ErrNodeNotTrigger:        400,
	ErrTriggerNotStarted:     400,
	ErrThreadBusy:            400,
}

// EngineError is the error type returned by every public engine operation
// that fails for a reason a caller should branch on. It carries enough to
// render an HTTP-style response without the engine knowing about HTTP.
type EngineError struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
	Cause      error
}

// NewEngineError builds an EngineError for kind, looking up its HTTP status.
func NewEngineError(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{
		Kind:       kind,
		HTTPStatus: httpStatus[kind],
		Message:    fmt.Sprintf(format, args...),
	}
}

// WrapEngineError is like NewEngineError but preserves cause for errors.Is/As.
func WrapEngineError(kind ErrorKind, cause error, format string, args ...any) *EngineError {
	e := NewEngineError(kind, format, args...)
	e.Cause = cause
	return e
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err, or any error it wraps, is an *EngineError of
// the given kind. ErrGraphNotFound and the other kinds are ErrorKind
// constants, not error values, so errors.Is cannot be used to match them.
func IsKind(err error, kind ErrorKind) bool {
	var ee *EngineError
	for err != nil {
		if e, ok := err.(*EngineError); ok {
			ee = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ee != nil && ee.Kind == kind
}
