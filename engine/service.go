package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/agentgraph/log"
)

// GraphServiceConfig wires a GraphService to its collaborators.
type GraphServiceConfig struct {
	Templates   *TemplateRegistry
	Graphs      GraphStore
	Threads     ThreadStore
	Revisions   RevisionStore
	Logger      log.Logger
}

// GraphService is the engine facade: create, findById, update, delete, run,
// destroy, executeTrigger, getCompiledNodes, getThreadMessages. It
// coordinates GraphStore, GraphCompiler, GraphRegistry, GraphStateManager
// and RevisionEngine.
type GraphService struct {
	graphs    GraphStore
	threads   ThreadStore
	revisions RevisionStore
	templates *TemplateRegistry
	compiler  *GraphCompiler
	registry  *GraphRegistry
	revEngine *RevisionEngine
	logger    log.Logger

	mu            sync.Mutex
	stateManagers map[string]*GraphStateManager
}

// NewGraphService constructs a GraphService and its internal compiler,
// registry and revision engine.
func NewGraphService(cfg GraphServiceConfig) *GraphService {
	logger := cfg.Logger
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	if cfg.Threads == nil {
		cfg.Threads = NewInMemoryThreadStore()
	}
	if cfg.Revisions == nil {
		cfg.Revisions = NewInMemoryRevisionStore()
	}

	compiler := NewGraphCompiler(cfg.Templates, logger)
	registry := NewGraphRegistry()

	svc := &GraphService{
		graphs:        cfg.Graphs,
		threads:       cfg.Threads,
		revisions:     cfg.Revisions,
		templates:     cfg.Templates,
		compiler:      compiler,
		registry:      registry,
		logger:        logger,
		stateManagers: make(map[string]*GraphStateManager),
	}
	svc.revEngine = NewRevisionEngine(cfg.Revisions, cfg.Graphs, compiler, registry, logger, svc.stateManagerFor)
	return svc
}

// StartRevisionWorker launches the background revision worker with the
// given poll interval. The worker runs until ctx is cancelled; GraphService
// has no method of its own that stops it or tears down live graphs.
func (s *GraphService) StartRevisionWorker(ctx context.Context, interval time.Duration) {
	s.revEngine.Start(ctx, interval)
}

func (s *GraphService) stateManagerFor(graphID string) *GraphStateManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateManagers[graphID]
}

func (s *GraphService) stateManagerForGraph(graphID string, state *GraphState) *GraphStateManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm, ok := s.stateManagers[graphID]; ok {
		return sm
	}
	sm := NewGraphStateManager(graphID, state)
	s.stateManagers[graphID] = sm
	return sm
}

// CreateGraphInput is the input to Create.
type CreateGraphInput struct {
	CreatedBy   string
	Name        string
	Description string
	Schema      GraphSchema
	Temporary   bool
}

// Create validates schema and stores a new Graph at version 1.0.0.
func (s *GraphService) Create(ctx context.Context, in CreateGraphInput) (*Graph, error) {
	if err := s.compiler.ValidateSchema(in.Schema); err != nil {
		return nil, err
	}

	now := time.Now()
	g := &Graph{
		ID:            uuid.NewString(),
		CreatedBy:     in.CreatedBy,
		Name:          in.Name,
		Description:   in.Description,
		Version:       "1.0.0",
		TargetVersion: "1.0.0",
		Status:        GraphStatusCreated,
		Schema:        in.Schema,
		Temporary:     in.Temporary,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.graphs.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("persist graph: %w", err)
	}
	return g, nil
}

// FindByID returns the graph identified by id, scoped to createdBy when set.
func (s *GraphService) FindByID(ctx context.Context, id, createdBy string) (*Graph, error) {
	return s.graphs.GetOne(ctx, GraphStoreFilter{ID: id, CreatedBy: createdBy})
}

// GetAll returns every graph owned by createdBy.
func (s *GraphService) GetAll(ctx context.Context, createdBy string) ([]*Graph, error) {
	return s.graphs.GetAll(ctx, createdBy)
}

// UpdateGraphInput is the input to Update.
type UpdateGraphInput struct {
	CurrentVersion string
	Name           *string
	Description    *string
	Schema         *GraphSchema
	UpdatedBy      string
}

// Update applies name/description-only changes synchronously (no version
// bump); any schema change enqueues a Revision instead. CurrentVersion must
// match the graph's targetVersion or the call fails VERSION_CONFLICT.
func (s *GraphService) Update(ctx context.Context, id string, in UpdateGraphInput) (*Graph, *Revision, error) {
	g, err := s.graphs.GetOne(ctx, GraphStoreFilter{ID: id})
	if err != nil {
		return nil, nil, err
	}
	if in.CurrentVersion != g.TargetVersion {
		return nil, nil, NewEngineError(ErrVersionConflict, "current version %q does not match graph target version %q", in.CurrentVersion, g.TargetVersion)
	}

	if in.Schema == nil {
		updated, err := s.graphs.UpdateByID(ctx, id, func(graph *Graph) {
			if in.Name != nil {
				graph.Name = *in.Name
			}
			if in.Description != nil {
				graph.Description = *in.Description
			}
		})
		return updated, nil, err
	}

	newConfig := NewConfig{Name: g.Name, Description: g.Description, Schema: *in.Schema}
	if in.Name != nil {
		newConfig.Name = *in.Name
	}
	if in.Description != nil {
		newConfig.Description = *in.Description
	}

	rev, err := s.revEngine.QueueRevision(ctx, QueueRevisionInput{
		Graph:              g,
		BaseVersion:        in.CurrentVersion,
		NewConfig:          newConfig,
		CreatedBy:          in.UpdatedBy,
		EnqueueImmediately: true,
	})
	if err != nil {
		return nil, nil, err
	}
	updated, err := s.graphs.GetOne(ctx, GraphStoreFilter{ID: id})
	return updated, rev, err
}

// Delete destroys a running graph if needed, cascades a soft-delete of its
// threads and messages, and is idempotent except for GRAPH_NOT_FOUND.
func (s *GraphService) Delete(ctx context.Context, id string) error {
	if _, err := s.graphs.GetOne(ctx, GraphStoreFilter{ID: id}); err != nil {
		return err
	}
	if !s.registry.IsStop(id) {
		if _, err := s.Destroy(ctx, id); err != nil {
			return err
		}
	}
	if err := s.threads.Delete(ctx, id); err != nil {
		return fmt.Errorf("cascade delete threads: %w", err)
	}
	return s.graphs.DeleteByID(ctx, id)
}

// Run compiles and registers graph id, transitioning
// Created/Stopped/Error -> Compiling -> Running. It fails
// GRAPH_ALREADY_RUNNING if the registry already reports a live instance.
func (s *GraphService) Run(ctx context.Context, id string) (*Graph, error) {
	if status, ok := s.registry.GetStatus(id); ok && status == EngineStatusRunning {
		return nil, NewEngineError(ErrGraphAlreadyRunning, "graph %q is already running", id)
	}

	g, err := s.graphs.GetOne(ctx, GraphStoreFilter{ID: id})
	if err != nil {
		return nil, err
	}

	g, err = s.graphs.UpdateByID(ctx, id, func(graph *Graph) {
		graph.Status = GraphStatusCompiling
		graph.Error = ""
	})
	if err != nil {
		return nil, err
	}
	state := NewGraphState()
	sm := s.stateManagerForGraph(id, state)
	sm.EmitGraph(GraphStatusCompiling, "")

	compiled, err := s.compiler.Compile(ctx, g)
	if err != nil {
		_ = s.registry.Destroy(ctx, id)
		threads, _ := s.threads.GetAll(ctx, ThreadStoreFilter{GraphID: id, Status: ThreadStatusRunning})
		for _, t := range threads {
			_, _ = s.threads.UpdateByID(ctx, t.InternalID, func(th *Thread) { th.Status = ThreadStatusStopped })
		}
		g, _ = s.graphs.UpdateByID(ctx, id, func(graph *Graph) {
			graph.Status = GraphStatusError
			graph.Error = err.Error()
		})
		sm.EmitGraph(GraphStatusError, err.Error())
		return g, err
	}
	compiled.State = state

	if err := s.registry.Register(id, compiled); err != nil {
		return nil, err
	}

	for _, cn := range compiled.Nodes {
		if cn.Kind != NodeKindSimpleAgent && cn.Kind != NodeKindRuntime {
			continue
		}
		if setter, ok := cn.Instance.(NotifierSetter); ok {
			setter.SetNotifier(sm)
		}
	}

	g, err = s.graphs.UpdateByID(ctx, id, func(graph *Graph) {
		graph.Status = GraphStatusRunning
	})
	if err != nil {
		return nil, err
	}
	sm.EmitGraph(GraphStatusRunning, "")
	return g, nil
}

// Destroy tears down graph id's live instance (safe if absent) and
// transitions it to Stopped, clearing any prior error.
func (s *GraphService) Destroy(ctx context.Context, id string) (*Graph, error) {
	if err := s.registry.Destroy(ctx, id); err != nil {
		return nil, fmt.Errorf("destroy graph %q: %w", id, err)
	}
	if sm := s.stateManagerFor(id); sm != nil {
		sm.EmitGraph(GraphStatusStopped, "")
	}
	return s.graphs.UpdateByID(ctx, id, func(g *Graph) {
		g.Status = GraphStatusStopped
		g.Error = ""
	})
}

// ExecuteTriggerInput is the input to ExecuteTrigger.
type ExecuteTriggerInput struct {
	GraphID       string
	TriggerNodeID string
	Messages      []Message
	ThreadSubID   string
	Async         bool
}

// ExecuteTrigger invokes trigger triggerNodeId within graphId.
func (s *GraphService) ExecuteTrigger(ctx context.Context, in ExecuteTriggerInput) (*TriggerInvokeResult, error) {
	status, ok := s.registry.GetStatus(in.GraphID)
	if !ok {
		if _, err := s.graphs.GetOne(ctx, GraphStoreFilter{ID: in.GraphID}); err != nil {
			return nil, err
		}
		return nil, NewEngineError(ErrGraphNotRunning, "graph %q is not running", in.GraphID)
	}
	if status != EngineStatusRunning {
		return nil, NewEngineError(ErrGraphNotRunning, "graph %q is not running", in.GraphID)
	}

	cn, err := s.registry.GetNode(in.GraphID, in.TriggerNodeID)
	if err != nil {
		return nil, err
	}
	if cn.Kind != NodeKindTrigger {
		return nil, NewEngineError(ErrNodeNotTrigger, "node %q is not a trigger", in.TriggerNodeID)
	}
	trigger, ok := cn.Instance.(Trigger)
	if !ok {
		return nil, NewEngineError(ErrNodeNotTrigger, "node %q does not implement Trigger", in.TriggerNodeID)
	}
	if !trigger.Started() {
		return nil, NewEngineError(ErrTriggerNotStarted, "trigger %q has not been started", in.TriggerNodeID)
	}

	threadSubID := in.ThreadSubID
	if threadSubID == "" {
		threadSubID = uuid.NewString()
	}
	result, err := trigger.InvokeAgent(ctx, TriggerInvokeRequest{
		Messages:    in.Messages,
		ThreadSubID: threadSubID,
		Async:       in.Async,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCompiledNodesInput scopes GetCompiledNodes.
type GetCompiledNodesInput struct {
	GraphID  string
	ThreadID string
	RunID    string
}

// GetCompiledNodes returns a NodeSnapshot per node of graphId's live
// CompiledGraph, filtered by the optional thread/run scope.
func (s *GraphService) GetCompiledNodes(ctx context.Context, in GetCompiledNodesInput) ([]NodeSnapshot, error) {
	compiled, ok := s.registry.Get(in.GraphID)
	if !ok {
		return nil, NewEngineError(ErrGraphNotFound, "graph %q is not running", in.GraphID)
	}
	out := make([]NodeSnapshot, 0, len(compiled.Nodes))
	for nodeID := range compiled.Nodes {
		out = append(out, compiled.State.Snapshot(nodeID, in.ThreadID, in.RunID))
	}
	return out, nil
}

// GetThreadMessages returns a page of messages for threadID.
func (s *GraphService) GetThreadMessages(ctx context.Context, threadID string, page MessagePage) ([]Message, error) {
	return s.threads.GetMessages(ctx, threadID, page)
}
