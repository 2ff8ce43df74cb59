package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/agentgraph/log"
)

// RevisionEngine serializes concurrent schema edits on running graphs by
// queueing Revisions and applying them, one per graph, via a background
// worker. Only one Pending/Applying revision may exist per graph at a time:
// a second QueueRevision call fails MERGE_CONFLICT while the first is still
// Pending or Applying, or when its base version is not the graph's current
// targetVersion.
type RevisionEngine struct {
	revisions RevisionStore
	graphs    GraphStore
	compiler  *GraphCompiler
	registry  *GraphRegistry
	logger    log.Logger

	// stateManagerFor looks up the GraphStateManager for a graphId so the
	// worker can emit Graph() notifications on status transitions. It is
	// supplied by GraphService, which owns state manager lifecycles.
	stateManagerFor func(graphID string) *GraphStateManager

	mu      sync.Mutex
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// NewRevisionEngine creates a RevisionEngine. Call Start to launch its
// background worker.
func NewRevisionEngine(revisions RevisionStore, graphs GraphStore, compiler *GraphCompiler, registry *GraphRegistry, logger log.Logger, stateManagerFor func(string) *GraphStateManager) *RevisionEngine {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &RevisionEngine{
		revisions:       revisions,
		graphs:          graphs,
		compiler:        compiler,
		registry:        registry,
		logger:          logger,
		stateManagerFor: stateManagerFor,
		wake:            make(chan struct{}, 1),
	}
}

// QueueRevisionInput is the input to QueueRevision.
type QueueRevisionInput struct {
	Graph               *Graph
	BaseVersion         string
	NewConfig           NewConfig
	CreatedBy           string
	EnqueueImmediately  bool
}

// QueueRevision computes a diff, checks baseVersion against the graph's
// current targetVersion, validates the new schema, persists a Pending
// Revision and bumps graph.targetVersion atomically.
func (e *RevisionEngine) QueueRevision(ctx context.Context, in QueueRevisionInput) (*Revision, error) {
	if in.BaseVersion != in.Graph.TargetVersion {
		return nil, NewEngineError(ErrMergeConflict, "base version %q does not match graph target version %q", in.BaseVersion, in.Graph.TargetVersion)
	}
	pending, err := e.revisions.GetPending(ctx, in.Graph.ID)
	if err != nil {
		return nil, fmt.Errorf("check pending revision: %w", err)
	}
	if pending != nil {
		return nil, NewEngineError(ErrMergeConflict, "graph %q already has revision %q in progress", in.Graph.ID, pending.ID)
	}

	if err := e.compiler.ValidateSchema(in.NewConfig.Schema); err != nil {
		return nil, err
	}

	toVersion := GenerateNextVersion(in.Graph.TargetVersion)
	diff, _ := json.Marshal(in.NewConfig.Schema)

	rev := &Revision{
		ID:          fmt.Sprintf("rev-%s-%s", in.Graph.ID, toVersion),
		GraphID:     in.Graph.ID,
		BaseVersion: in.BaseVersion,
		ToVersion:   toVersion,
		Status:      RevisionStatusPending,
		NewConfig:   in.NewConfig,
		ConfigDiff:  string(diff),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		CreatedBy:   in.CreatedBy,
	}
	if err := e.revisions.Create(ctx, rev); err != nil {
		return nil, fmt.Errorf("persist revision: %w", err)
	}

	if _, err := e.graphs.UpdateByID(ctx, in.Graph.ID, func(g *Graph) {
		g.TargetVersion = toVersion
	}); err != nil {
		return nil, fmt.Errorf("bump target version: %w", err)
	}

	if in.EnqueueImmediately {
		e.Wake()
	}
	return rev, nil
}

// Wake nudges the background worker to poll immediately instead of waiting
// for its next tick.
func (e *RevisionEngine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start launches the background worker, polling every interval (or sooner,
// whenever Wake is called) until ctx is cancelled or Stop is called.
func (e *RevisionEngine) Start(ctx context.Context, interval time.Duration) {
	e.mu.Lock()
	if e.stop != nil {
		e.mu.Unlock()
		return
	}
	e.stop = make(chan struct{})
	e.stopped = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx, interval)
}

// Stop signals the worker to exit and waits for it to do so.
func (e *RevisionEngine) Stop() {
	e.mu.Lock()
	stop, stopped := e.stop, e.stopped
	e.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (e *RevisionEngine) run(ctx context.Context, interval time.Duration) {
	defer close(e.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.applyOnePending(ctx)
		case <-e.wake:
			e.applyOnePending(ctx)
		}
	}
}

// applyOnePending claims and applies a single pending revision, if any.
func (e *RevisionEngine) applyOnePending(ctx context.Context) {
	rev, err := e.revisions.ClaimNext(ctx)
	if err != nil {
		e.logger.Error("revision worker: claim failed: %v", err)
		return
	}
	if rev == nil {
		return
	}
	if err := e.apply(ctx, rev); err != nil {
		e.logger.Error("revision worker: apply %q failed: %v", rev.ID, err)
	}
}

func (e *RevisionEngine) apply(ctx context.Context, rev *Revision) error {
	graph, err := e.graphs.GetOne(ctx, GraphStoreFilter{ID: rev.GraphID})
	if err != nil {
		_ = e.revisions.UpdateByID(ctx, rev.ID, func(r *Revision) { r.Status = RevisionStatusFailed })
		return err
	}

	if graph.Status != GraphStatusRunning {
		// Not running: apply the new schema and bump version directly.
		if _, err := e.graphs.UpdateByID(ctx, graph.ID, func(g *Graph) {
			g.Schema = rev.NewConfig.Schema
			g.Name = rev.NewConfig.Name
			if rev.NewConfig.Description != "" {
				g.Description = rev.NewConfig.Description
			}
			g.Version = rev.ToVersion
		}); err != nil {
			_ = e.revisions.UpdateByID(ctx, rev.ID, func(r *Revision) { r.Status = RevisionStatusFailed })
			return err
		}
		return e.revisions.UpdateByID(ctx, rev.ID, func(r *Revision) { r.Status = RevisionStatusApplied })
	}

	// Running: restart with the new schema. destroy -> swap -> compile -> register -> run.
	sm := e.stateManagerFor(graph.ID)

	if err := e.registry.Destroy(ctx, graph.ID); err != nil {
		return e.failRevision(ctx, rev, graph, err)
	}

	updated, err := e.graphs.UpdateByID(ctx, graph.ID, func(g *Graph) {
		g.Schema = rev.NewConfig.Schema
		g.Name = rev.NewConfig.Name
		if rev.NewConfig.Description != "" {
			g.Description = rev.NewConfig.Description
		}
		g.Status = GraphStatusCompiling
	})
	if err != nil {
		return e.failRevision(ctx, rev, graph, err)
	}
	if sm != nil {
		sm.EmitGraph(GraphStatusCompiling, "")
	}

	compiled, err := e.compiler.Compile(ctx, updated)
	if err != nil {
		return e.failRevision(ctx, rev, graph, err)
	}
	if err := e.registry.Register(graph.ID, compiled); err != nil {
		return e.failRevision(ctx, rev, graph, err)
	}
	if sm != nil {
		for _, cn := range compiled.Nodes {
			if cn.Kind != NodeKindSimpleAgent && cn.Kind != NodeKindRuntime {
				continue
			}
			if setter, ok := cn.Instance.(NotifierSetter); ok {
				setter.SetNotifier(sm)
			}
		}
	}

	if _, err := e.graphs.UpdateByID(ctx, graph.ID, func(g *Graph) {
		g.Status = GraphStatusRunning
		g.Version = rev.ToVersion
	}); err != nil {
		return e.failRevision(ctx, rev, graph, err)
	}
	if sm != nil {
		sm.EmitGraph(GraphStatusRunning, "")
	}

	return e.revisions.UpdateByID(ctx, rev.ID, func(r *Revision) { r.Status = RevisionStatusApplied })
}

// failRevision marks rev Failed and rewinds the graph back to the state it
// held in graph (captured before apply started mutating it), so a failed
// restart never leaves targetVersion, schema, name, description or status
// pointing at the config that failed to compile. graph.Status is restored
// too: a failed mid-restart compile must not leave the graph stuck
// Compiling when registry.Destroy already tore down the running instance
// and nothing is registered.
func (e *RevisionEngine) failRevision(ctx context.Context, rev *Revision, graph *Graph, cause error) error {
	_, _ = e.graphs.UpdateByID(ctx, graph.ID, func(g *Graph) {
		g.TargetVersion = graph.Version
		g.Schema = graph.Schema
		g.Name = graph.Name
		g.Description = graph.Description
		g.Status = graph.Status
	})
	_ = e.revisions.UpdateByID(ctx, rev.ID, func(r *Revision) { r.Status = RevisionStatusFailed })
	if sm := e.stateManagerFor(graph.ID); sm != nil {
		sm.EmitGraph(graph.Status, "")
	}
	return fmt.Errorf("apply revision %q: %w", rev.ID, cause)
}
