// Package graph provides a small, generic state-graph execution engine.
//
// It is the inner reasoning engine used by package agent to drive a single
// agent's turn: a directed graph of named nodes, each a pure function from a
// typed state S to an updated S, wired together with unconditional and
// conditional edges. Compiling a StateGraph[S] yields a StateRunnable[S]
// that is run to completion by Invoke, notifying listeners of node-level
// events as they happen.
//
// The graph itself knows nothing about agents, LLMs or tools - it only
// knows how to walk nodes in order, retry a failing node, and notify
// listeners as it goes. Callers supply the state type and the node
// functions; package agent supplies an AgentState and nodes named
// summarize, invoke_llm, tools, tool_usage_guard and inject_pending.
package graph
