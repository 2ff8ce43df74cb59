package graph

import "context"

type resumeValueKey struct{}

// WithResumeValue attaches a resume value to ctx. A node that returned a
// *NodeInterrupt on a previous run can read it back via GetResumeValue when
// the run is re-invoked, instead of interrupting again.
func WithResumeValue(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeValueKey{}, value)
}

// GetResumeValue retrieves the resume value set by WithResumeValue, or nil.
func GetResumeValue(ctx context.Context) any {
	return ctx.Value(resumeValueKey{})
}
