package engine

import "context"

type runContextKey struct{}

// RunContext identifies the thread/run a context flows from, so a Runtime
// exec can tag its ActiveExec entry without threading extra parameters
// through every ToolProvider.Execute call.
type RunContext struct {
	ThreadID string
	RunID    string
}

// WithRunContext attaches rc to ctx.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom retrieves the RunContext attached by WithRunContext, if any.
func RunContextFrom(ctx context.Context) (RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(RunContext)
	return rc, ok
}
