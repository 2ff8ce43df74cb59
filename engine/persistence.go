package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// GraphStoreFilter scopes a GraphStore read.
type GraphStoreFilter struct {
	ID        string
	CreatedBy string
}

// GraphStore is the abstract persistence contract for Graph records. The
// engine never assumes a particular backend; InMemoryGraphStore below is
// the only implementation in this module.
type GraphStore interface {
	Create(ctx context.Context, graph *Graph) error
	GetOne(ctx context.Context, filter GraphStoreFilter) (*Graph, error)
	GetAll(ctx context.Context, createdBy string) ([]*Graph, error)
	UpdateByID(ctx context.Context, id string, patch func(*Graph)) (*Graph, error)
	DeleteByID(ctx context.Context, id string) error
}

// ThreadStoreFilter scopes a ThreadStore.GetAll read.
type ThreadStoreFilter struct {
	GraphID string
	Status  ThreadStatus
}

// MessagePage scopes ThreadStore.GetMessages.
type MessagePage struct {
	Limit  int
	Offset int
}

// ThreadStore is the abstract persistence contract for Thread and Message
// records.
type ThreadStore interface {
	Create(ctx context.Context, thread *Thread) error
	GetAll(ctx context.Context, filter ThreadStoreFilter) ([]*Thread, error)
	UpdateByID(ctx context.Context, id string, patch func(*Thread)) (*Thread, error)
	Delete(ctx context.Context, graphID string) error
	GetByExternalID(ctx context.Context, externalID string) (*Thread, error)
	AppendMessage(ctx context.Context, threadID string, msg Message) error
	GetMessages(ctx context.Context, threadID string, page MessagePage) ([]Message, error)
}

// RevisionStore is the abstract persistence contract for Revision records,
// used by RevisionEngine.
type RevisionStore interface {
	Create(ctx context.Context, rev *Revision) error
	GetPending(ctx context.Context, graphID string) (*Revision, error)
	UpdateByID(ctx context.Context, id string, patch func(*Revision)) error
	// ClaimNext atomically claims one Pending revision across all graphs for
	// the background worker to apply, transitioning it to Applying. It
	// returns nil, nil if none are pending.
	ClaimNext(ctx context.Context) (*Revision, error)
}

// InvocationChunk is one incremental unit streamed back by an
// InvocationBackend: either a fragment of the AI message under
// construction, or a final usage summary.
type InvocationChunk struct {
	ContentDelta   string
	ToolCallDelta  *ToolCall
	ReasoningDelta string
	ReasoningID    string
	Done           bool
	Usage          TokenSnapshot
}

// InvocationRequest is everything an InvocationBackend needs to produce one
// model turn.
type InvocationRequest struct {
	Model              string
	Messages           []Message
	Tools              []ToolSpec
	SystemPrompt       string
	ToolChoice         string
	ParallelToolCalls  bool
	Reasoning          bool
	Streaming          bool
}

// ToolSpec describes one tool available to the model for a given call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// InvocationBackend is the abstraction over a concrete LLM provider.
type InvocationBackend interface {
	Invoke(ctx context.Context, req InvocationRequest) (<-chan InvocationChunk, error)

	SupportsResponsesAPI(model string) bool
	SupportsReasoning(model string) bool
	SupportsParallelToolCall(model string) bool
	SupportsStreaming(model string) bool
}

// ToolProvider is the instance-level contract a Tool-kind template's
// NodeHandle.Provide must return, wired into a SimpleAgent node's toolset
// during Configure by way of its output edges.
type ToolProvider interface {
	ToolSpec() ToolSpec
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// --- in-memory reference implementations, used by tests and as a starting
// --- point for single-process deployments without an external database.

// InMemoryGraphStore is a GraphStore backed by a mutex-guarded map.
type InMemoryGraphStore struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

// NewInMemoryGraphStore creates an empty store.
func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{graphs: make(map[string]*Graph)}
}

func (s *InMemoryGraphStore) Create(_ context.Context, graph *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[graph.ID]; exists {
		return fmt.Errorf("graph %q already exists", graph.ID)
	}
	g := *graph
	s.graphs[graph.ID] = &g
	return nil
}

func (s *InMemoryGraphStore) GetOne(_ context.Context, filter GraphStoreFilter) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[filter.ID]
	if !ok || g.DeletedAt != nil {
		return nil, NewEngineError(ErrGraphNotFound, "graph %q not found", filter.ID)
	}
	if filter.CreatedBy != "" && g.CreatedBy != filter.CreatedBy {
		return nil, NewEngineError(ErrGraphNotFound, "graph %q not found", filter.ID)
	}
	out := *g
	return &out, nil
}

func (s *InMemoryGraphStore) GetAll(_ context.Context, createdBy string) ([]*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Graph
	for _, g := range s.graphs {
		if g.DeletedAt != nil {
			continue
		}
		if createdBy != "" && g.CreatedBy != createdBy {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryGraphStore) UpdateByID(_ context.Context, id string, patch func(*Graph)) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[id]
	if !ok || g.DeletedAt != nil {
		return nil, NewEngineError(ErrGraphNotFound, "graph %q not found", id)
	}
	patch(g)
	g.UpdatedAt = time.Now()
	out := *g
	return &out, nil
}

func (s *InMemoryGraphStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[id]
	if !ok {
		return NewEngineError(ErrGraphNotFound, "graph %q not found", id)
	}
	now := time.Now()
	g.DeletedAt = &now
	return nil
}

// InMemoryThreadStore is a ThreadStore backed by mutex-guarded maps.
type InMemoryThreadStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread
	messages map[string][]Message
}

// NewInMemoryThreadStore creates an empty store.
func NewInMemoryThreadStore() *InMemoryThreadStore {
	return &InMemoryThreadStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]Message),
	}
}

func (s *InMemoryThreadStore) Create(_ context.Context, thread *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *thread
	s.threads[thread.InternalID] = &t
	return nil
}

func (s *InMemoryThreadStore) GetAll(_ context.Context, filter ThreadStoreFilter) ([]*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Thread
	for _, t := range s.threads {
		if filter.GraphID != "" && t.GraphID != filter.GraphID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryThreadStore) UpdateByID(_ context.Context, id string, patch func(*Thread)) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, NewEngineError(ErrThreadNotFound, "thread %q not found", id)
	}
	patch(t)
	t.UpdatedAt = time.Now()
	out := *t
	return &out, nil
}

func (s *InMemoryThreadStore) Delete(_ context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.threads {
		if t.GraphID == graphID {
			delete(s.threads, id)
			delete(s.messages, id)
		}
	}
	return nil
}

func (s *InMemoryThreadStore) GetByExternalID(_ context.Context, externalID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		if t.ExternalThreadID == externalID {
			out := *t
			return &out, nil
		}
	}
	return nil, NewEngineError(ErrThreadNotFound, "thread %q not found", externalID)
}

func (s *InMemoryThreadStore) AppendMessage(_ context.Context, threadID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[threadID] = append(s.messages[threadID], msg)
	return nil
}

func (s *InMemoryThreadStore) GetMessages(_ context.Context, threadID string, page MessagePage) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[threadID]
	start := page.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	out := make([]Message, end-start)
	copy(out, all[start:end])
	return out, nil
}

// InMemoryRevisionStore is a RevisionStore backed by a mutex-guarded map,
// suitable for a single-process RevisionEngine worker.
type InMemoryRevisionStore struct {
	mu        sync.Mutex
	revisions map[string]*Revision
}

// NewInMemoryRevisionStore creates an empty store.
func NewInMemoryRevisionStore() *InMemoryRevisionStore {
	return &InMemoryRevisionStore{revisions: make(map[string]*Revision)}
}

func (s *InMemoryRevisionStore) Create(_ context.Context, rev *Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rev
	s.revisions[rev.ID] = &r
	return nil
}

func (s *InMemoryRevisionStore) GetPending(_ context.Context, graphID string) (*Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.revisions {
		if r.GraphID == graphID && (r.Status == RevisionStatusPending || r.Status == RevisionStatusApplying) {
			out := *r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryRevisionStore) UpdateByID(_ context.Context, id string, patch func(*Revision)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.revisions[id]
	if !ok {
		return fmt.Errorf("revision %q not found", id)
	}
	patch(r)
	r.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryRevisionStore) ClaimNext(_ context.Context) (*Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *Revision
	for _, r := range s.revisions {
		if r.Status != RevisionStatusPending {
			continue
		}
		if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = RevisionStatusApplying
	oldest.UpdatedAt = time.Now()
	out := *oldest
	return &out, nil
}
