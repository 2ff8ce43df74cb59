// Package agentgraph orchestrates user-defined agent graphs: directed
// compositions of typed nodes - triggers, agents, tools, runtimes and
// knowledge sources - that, once compiled and started, accept external
// invocations and drive LLM-based reasoning loops against sandboxed
// execution environments.
//
// # Architecture
//
// The module is organized leaves-first:
//
//	engine.TemplateRegistry  - catalog of node templates and their factories
//	engine.GraphCompiler     - schema -> CompiledGraph, two-phase construction
//	engine.GraphRegistry     - process-wide graphId -> live CompiledGraph
//	engine.GraphStateManager - per-node/thread/run status + notification fan-out
//	engine.RevisionEngine    - serializes concurrent schema edits
//	engine.GraphService      - the facade: create, run, destroy, executeTrigger...
//	agent.Core               - per-agent reasoning loop built on package graph
//	graph                    - the generic state-graph execution engine
//	store                    - checkpoint, graph, thread and revision persistence
//	nodes                    - trigger/tool/runtime/knowledge template implementations
//	llmbackend               - InvocationBackend implementations over LLM providers
//
// package graph knows nothing about agents or LLMs: it is a small generic
// engine for walking a directed graph of named nodes against a typed state.
// package agent is its first real user, wiring up a StateGraph[AgentState]
// with nodes summarize, invoke_llm, tools, tool_usage_guard and
// inject_pending. package engine is the outer layer: it compiles a
// declarative schema (nodes + edges, validated against registered
// templates) into a CompiledGraph of live node instances, one of which may
// be an AgentCore-backed agent node.
//
// # Quick Start
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/smallnest/agentgraph/engine"
//		"github.com/smallnest/agentgraph/log"
//	)
//
//	func main() {
//		ctx := context.Background()
//		logger := log.NewDefaultLogger(log.LogLevelInfo)
//
//		registry := engine.NewTemplateRegistry()
//		// register trigger/agent/tool/runtime/knowledge templates here.
//
//		svc := engine.NewGraphService(engine.GraphServiceConfig{
//			Templates: registry,
//			Graphs:    engine.NewInMemoryGraphStore(),
//			Logger:    logger,
//		})
//
//		g, _ := svc.Create(ctx, engine.CreateGraphInput{
//			Name:   "support-bot",
//			Schema: engine.GraphSchema{ /* nodes, edges */ },
//		})
//		_, _ = svc.Run(ctx, g.ID)
//	}
//
// # Persistence
//
// Checkpoints, graphs, threads and revisions are abstracted as interfaces
// (store.CheckpointStore, engine.GraphStore, engine.ThreadStore,
// engine.RevisionStore). The store/ packages (memory, file, SQLite,
// PostgreSQL and Redis) implement store.CheckpointStore only; graphs,
// threads and revisions have in-memory implementations in package engine
// and no database-backed one.
//
// # Concurrency model
//
// A graph has at most one live CompiledGraph at a time, enforced by
// GraphRegistry. Concurrent schema edits against a running graph are
// serialized by RevisionEngine: callers enqueue a Revision describing a
// baseVersion -> toVersion transition, and a single background worker
// applies them oldest first, one at a time across all graphs; a revision
// whose baseVersion has drifted from the graph's current targetVersion is
// rejected when it is queued. Within a single agent
// thread, AgentCore allows at most one active run; a second invocation
// either queues behind the first (runOrAppend) or is rejected, depending on
// the caller's intent.
//
// # Configuration
//
// The module reads no environment variables. The log level, the file
// checkpoint store's directory and the inner agent graph's max iterations
// are all passed explicitly through the corresponding constructors and
// config structs.
package agentgraph // import "github.com/smallnest/agentgraph"
