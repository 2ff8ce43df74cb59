package graph

import (
	"fmt"
	"sync"
	"time"
)

// TraceEvent identifies the kind of span a Tracer records.
type TraceEvent string

const (
	TraceEventNodeStart TraceEvent = "node_start"
	TraceEventNodeEnd    TraceEvent = "node_end"
	TraceEventNodeError  TraceEvent = "node_error"
)

// TraceSpan is one recorded node execution.
type TraceSpan struct {
	ID        string
	Event     TraceEvent
	NodeName  string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// Tracer accumulates TraceSpans for a single StateRunnable invocation. It is
// intentionally dependency-free so callers can render spans however they
// like (the engine's log.Logger, an OTEL span exporter, a test assertion).
type Tracer struct {
	mu    sync.Mutex
	spans []*TraceSpan
	next  int64
}

// NewTracer creates an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// StartSpan opens a span for a node that is about to run.
func (t *Tracer) StartSpan(event TraceEvent, nodeName string) *TraceSpan {
	t.mu.Lock()
	t.next++
	id := fmt.Sprintf("span-%d", t.next)
	t.mu.Unlock()

	return &TraceSpan{
		ID:        id,
		Event:     event,
		NodeName:  nodeName,
		StartTime: time.Now(),
	}
}

// EndSpan closes span, records its duration/error and appends it to the
// tracer's history. state is accepted for signature symmetry with callers
// that may want to snapshot it in a future revision; it is not retained.
func (t *Tracer) EndSpan(span *TraceSpan, _ any, err error) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Error = err
	if err != nil {
		span.Event = TraceEventNodeError
	} else {
		span.Event = TraceEventNodeEnd
	}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
}

// Spans returns a copy of every span recorded so far.
func (t *Tracer) Spans() []*TraceSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*TraceSpan, len(t.spans))
	copy(out, t.spans)
	return out
}
