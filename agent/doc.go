// Package agent implements AgentCore, the reasoning loop CompiledGraph
// SimpleAgent nodes run. Its control flow is a small, named
// graph.StateGraph[AgentState] (summarize -> invoke_llm -> tools ->
// tool_usage_guard -> inject_pending) so the same retry, tracing and
// listener machinery package graph gives every other state graph in this
// module also covers one agent's turn-taking.
//
// Core owns an active-run table keyed by runId, streams message and state
// events to its GraphStateManager, and persists running counters through a
// CheckpointAdapter keyed by (threadId, checkpointNs) so a restarted graph
// resumes token accounting instead of starting over.
package agent
