package engine

import (
	"sync"
	"time"
)

// NodeStatus is the per-node lifecycle status tracked by GraphState.
type NodeStatus string

const (
	NodeStatusStarting NodeStatus = "Starting"
	NodeStatusIdle      NodeStatus = "Idle"
	NodeStatusRunning   NodeStatus = "Running"
	NodeStatusStopped   NodeStatus = "Stopped"
	NodeStatusError     NodeStatus = "Error"
)

// ActiveExec is an in-flight runtime execution, keyed by execId.
type ActiveExec struct {
	ThreadID  string
	RunID     string
	StartedAt time.Time
}

// nodeRecord is the per-node bookkeeping GraphState maintains.
type nodeRecord struct {
	baseStatus     NodeStatus
	threadStatuses map[string]NodeStatus
	runStatuses    map[string]NodeStatus
	activeExecs    map[string]ActiveExec
	err            string
}

func newNodeRecord() *nodeRecord {
	return &nodeRecord{
		baseStatus:     NodeStatusStarting,
		threadStatuses: make(map[string]NodeStatus),
		runStatuses:    make(map[string]NodeStatus),
		activeExecs:    make(map[string]ActiveExec),
	}
}

// NodeSnapshot is a point-in-time, read-only view of one node's status,
// returned by GraphService.GetCompiledNodes.
type NodeSnapshot struct {
	NodeID         string
	BaseStatus     NodeStatus
	ThreadStatuses map[string]NodeStatus
	RunStatuses    map[string]NodeStatus
	ActiveExecs    map[string]ActiveExec
	Error          string
}

// GraphState tracks per-node base/thread/run status for one CompiledGraph.
// It is the subject GraphStateManager observes and mutates.
type GraphState struct {
	mu    sync.RWMutex
	nodes map[string]*nodeRecord
}

// NewGraphState creates an empty state tracker.
func NewGraphState() *GraphState {
	return &GraphState{nodes: make(map[string]*nodeRecord)}
}

func (s *GraphState) record(nodeID string) *nodeRecord {
	r, ok := s.nodes[nodeID]
	if !ok {
		r = newNodeRecord()
		s.nodes[nodeID] = r
	}
	return r
}

// SetBaseStatus sets nodeID's base status, clearing err on any non-Error
// transition.
func (s *GraphState) SetBaseStatus(nodeID string, status NodeStatus, err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(nodeID)
	r.baseStatus = status
	r.err = err
}

// SetThreadStatus records an ephemeral per-thread status for nodeID.
func (s *GraphState) SetThreadStatus(nodeID, threadID string, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(nodeID).threadStatuses[threadID] = status
}

// ClearThreadStatus removes the ephemeral per-thread status for nodeID.
func (s *GraphState) ClearThreadStatus(nodeID, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.record(nodeID).threadStatuses, threadID)
}

// SetRunStatus records an ephemeral per-run status for nodeID.
func (s *GraphState) SetRunStatus(nodeID, runID string, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(nodeID).runStatuses[runID] = status
}

// ClearRunStatus removes the ephemeral per-run status for nodeID.
func (s *GraphState) ClearRunStatus(nodeID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.record(nodeID).runStatuses, runID)
}

// RegisterExec adds an active execution under nodeID/execID.
func (s *GraphState) RegisterExec(nodeID, execID string, exec ActiveExec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(nodeID).activeExecs[execID] = exec
}

// RemoveExec removes an active execution, returning how many remain.
func (s *GraphState) RemoveExec(nodeID, execID string) (remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(nodeID)
	delete(r.activeExecs, execID)
	return len(r.activeExecs)
}

// FlushEphemerals clears every thread/run/exec entry for nodeID, used when a
// runtime or agent stops.
func (s *GraphState) FlushEphemerals(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(nodeID)
	r.threadStatuses = make(map[string]NodeStatus)
	r.runStatuses = make(map[string]NodeStatus)
	r.activeExecs = make(map[string]ActiveExec)
}

// Snapshot returns a NodeSnapshot for nodeID, optionally filtered to a
// single threadID/runID scope (empty means "all").
func (s *GraphState) Snapshot(nodeID, threadID, runID string) NodeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.nodes[nodeID]
	if !ok {
		return NodeSnapshot{NodeID: nodeID, BaseStatus: NodeStatusStarting}
	}

	out := NodeSnapshot{
		NodeID:         nodeID,
		BaseStatus:     r.baseStatus,
		ThreadStatuses: make(map[string]NodeStatus),
		RunStatuses:    make(map[string]NodeStatus),
		ActiveExecs:    make(map[string]ActiveExec),
		Error:          r.err,
	}
	for t, st := range r.threadStatuses {
		if threadID == "" || threadID == t {
			out.ThreadStatuses[t] = st
		}
	}
	for rn, st := range r.runStatuses {
		if runID == "" || runID == rn {
			out.RunStatuses[rn] = st
		}
	}
	for e, ex := range r.activeExecs {
		if (threadID == "" || threadID == ex.ThreadID) && (runID == "" || runID == ex.RunID) {
			out.ActiveExecs[e] = ex
		}
	}
	return out
}

// AllNodeIDs returns every node id GraphState has a record for.
func (s *GraphState) AllNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Notification is the tagged-union event GraphStateManager publishes.
// Exactly one of the pointer fields (GraphNodeUpdate, AgentInvoke,
// AgentMessage, AgentStateUpdate, ThreadUpdate, GraphUpdate) is populated
// per event, following the kind named by Type.
type Notification struct {
	Type NotificationType

	GraphNodeUpdate *GraphNodeUpdateEvent
	AgentInvoke     *AgentInvokeEvent
	AgentMessage    *AgentMessageEvent
	AgentStateUpdate *AgentStateUpdateEvent
	ThreadUpdate    *ThreadUpdateEvent
	GraphUpdate     *GraphUpdateEvent
}

// NotificationType names which field of Notification is populated.
type NotificationType string

const (
	NotifyGraphNodeUpdate  NotificationType = "GraphNodeUpdate"
	NotifyAgentInvoke      NotificationType = "AgentInvoke"
	NotifyAgentMessage     NotificationType = "AgentMessage"
	NotifyAgentStateUpdate NotificationType = "AgentStateUpdate"
	NotifyThreadUpdate     NotificationType = "ThreadUpdate"
	NotifyGraph            NotificationType = "Graph"
)

type GraphNodeUpdateEvent struct {
	GraphID string
	NodeID  string
	Status  NodeStatus
	Error   string
}

type AgentInvokeEvent struct {
	GraphID  string
	NodeID   string
	ThreadID string
	RunID    string
}

type AgentMessageEvent struct {
	GraphID  string
	NodeID   string
	ThreadID string
	RunID    string
	Message  Message
}

type TokenSnapshot struct {
	InputTokens       int
	CachedInputTokens int
	OutputTokens      int
	ReasoningTokens   int
	TotalTokens       int
	TotalPrice        float64
	CurrentContext    int
}

type AgentStateUpdateEvent struct {
	GraphID  string
	NodeID   string
	ThreadID string
	RunID    string
	Tokens   TokenSnapshot
}

type ThreadUpdateEvent struct {
	GraphID  string
	NodeID   string
	ThreadID string
	Status   ThreadStatus
}

type GraphUpdateEvent struct {
	GraphID string
	Status  GraphStatus
	Error   string
}

// NotificationHandler receives published notifications in local-observed
// order for one source (node or service); across sources no order is
// guaranteed.
type NotificationHandler func(Notification)

// GraphStateManager observes runtime/agent/trigger event streams for a
// CompiledGraph, folds them into its GraphState, and fans out
// Notifications. Handlers are invoked synchronously and in registration
// order, which is what gives "within one node" callers their ordering
// guarantee: don't block inside a handler.
type GraphStateManager struct {
	mu       sync.Mutex
	graphID  string
	state    *GraphState
	handlers []NotificationHandler
}

// NewGraphStateManager creates a manager for graphID backed by state.
func NewGraphStateManager(graphID string, state *GraphState) *GraphStateManager {
	return &GraphStateManager{graphID: graphID, state: state}
}

// Subscribe registers h to receive every notification this manager emits.
func (m *GraphStateManager) Subscribe(h NotificationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *GraphStateManager) publish(n Notification) {
	m.mu.Lock()
	handlers := make([]NotificationHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, h := range handlers {
		h(n)
	}
}

// OnRuntimeStart transitions nodeID to Idle and publishes GraphNodeUpdate.
func (m *GraphStateManager) OnRuntimeStart(nodeID string) {
	m.state.SetBaseStatus(nodeID, NodeStatusIdle, "")
	m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, Status: NodeStatusIdle,
	}})
}

// OnRuntimeStop transitions nodeID to Stopped, flushing ephemerals.
func (m *GraphStateManager) OnRuntimeStop(nodeID string) {
	m.state.FlushEphemerals(nodeID)
	m.state.SetBaseStatus(nodeID, NodeStatusStopped, "")
	m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, Status: NodeStatusStopped,
	}})
}

// OnRuntimeExecStart transitions nodeID to Running and registers the exec.
func (m *GraphStateManager) OnRuntimeExecStart(nodeID, execID string, exec ActiveExec) {
	m.state.RegisterExec(nodeID, execID, exec)
	m.state.SetBaseStatus(nodeID, NodeStatusRunning, "")
	m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, Status: NodeStatusRunning,
	}})
}

// OnRuntimeExecEnd removes the exec and transitions to Idle if none remain,
// propagating execErr as the node's error if non-empty.
func (m *GraphStateManager) OnRuntimeExecEnd(nodeID, execID string, execErr string) {
	remaining := m.state.RemoveExec(nodeID, execID)
	if remaining == 0 {
		status := NodeStatusIdle
		if execErr != "" {
			status = NodeStatusError
		}
		m.state.SetBaseStatus(nodeID, status, execErr)
		m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
			GraphID: m.graphID, NodeID: nodeID, Status: status, Error: execErr,
		}})
	}
}

// OnAgentInvoke transitions nodeID to Running, registers thread/run, and
// publishes both GraphNodeUpdate and AgentInvoke.
func (m *GraphStateManager) OnAgentInvoke(nodeID, threadID, runID string) {
	m.state.SetThreadStatus(nodeID, threadID, NodeStatusRunning)
	m.state.SetRunStatus(nodeID, runID, NodeStatusRunning)
	m.state.SetBaseStatus(nodeID, NodeStatusRunning, "")
	m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, Status: NodeStatusRunning,
	}})
	m.publish(Notification{Type: NotifyAgentInvoke, AgentInvoke: &AgentInvokeEvent{
		GraphID: m.graphID, NodeID: nodeID, ThreadID: threadID, RunID: runID,
	}})
}

// OnAgentMessage fans out a message event without changing status.
func (m *GraphStateManager) OnAgentMessage(nodeID, threadID, runID string, msg Message) {
	m.publish(Notification{Type: NotifyAgentMessage, AgentMessage: &AgentMessageEvent{
		GraphID: m.graphID, NodeID: nodeID, ThreadID: threadID, RunID: runID, Message: msg,
	}})
}

// OnAgentStateUpdate fans out a full token/cost snapshot without changing
// status.
func (m *GraphStateManager) OnAgentStateUpdate(nodeID, threadID, runID string, tokens TokenSnapshot) {
	m.publish(Notification{Type: NotifyAgentStateUpdate, AgentStateUpdate: &AgentStateUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, ThreadID: threadID, RunID: runID, Tokens: tokens,
	}})
}

// OnAgentRun clears a run's ephemerals, transitioning to Idle if none remain
// for the node.
func (m *GraphStateManager) OnAgentRun(nodeID, threadID, runID string, threadStatus ThreadStatus) {
	m.state.ClearRunStatus(nodeID, runID)
	m.state.ClearThreadStatus(nodeID, threadID)
	snap := m.state.Snapshot(nodeID, "", "")
	if len(snap.RunStatuses) == 0 {
		m.state.SetBaseStatus(nodeID, NodeStatusIdle, "")
		m.publish(Notification{Type: NotifyGraphNodeUpdate, GraphNodeUpdate: &GraphNodeUpdateEvent{
			GraphID: m.graphID, NodeID: nodeID, Status: NodeStatusIdle,
		}})
	}
	m.publish(Notification{Type: NotifyThreadUpdate, ThreadUpdate: &ThreadUpdateEvent{
		GraphID: m.graphID, NodeID: nodeID, ThreadID: threadID, Status: threadStatus,
	}})
}

// OnAgentStop emits a ThreadUpdate(Stopped) for every still-active thread
// under nodeID, then clears all ephemerals.
func (m *GraphStateManager) OnAgentStop(nodeID string) {
	snap := m.state.Snapshot(nodeID, "", "")
	for threadID := range snap.ThreadStatuses {
		m.publish(Notification{Type: NotifyThreadUpdate, ThreadUpdate: &ThreadUpdateEvent{
			GraphID: m.graphID, NodeID: nodeID, ThreadID: threadID, Status: ThreadStatusStopped,
		}})
	}
	m.state.FlushEphemerals(nodeID)
}

// EmitGraph publishes a Graph(status) notification at the engine level;
// called by GraphService on graph status transitions.
func (m *GraphStateManager) EmitGraph(status GraphStatus, errText string) {
	m.publish(Notification{Type: NotifyGraph, GraphUpdate: &GraphUpdateEvent{
		GraphID: m.graphID, Status: status, Error: errText,
	}})
}
