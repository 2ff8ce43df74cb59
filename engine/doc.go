// Package engine implements the core runtime: compiling a declarative graph
// schema into a live CompiledGraph of typed node instances, serializing
// concurrent schema edits, and exposing the GraphService facade that ties
// persistence, compilation, registration and state tracking together.
//
// The engine itself never talks to a database or an LLM provider directly;
// it depends on the abstract GraphStore / ThreadStore / RevisionStore /
// store.CheckpointStore persistence contracts and the InvocationBackend
// interface. The store packages implement store.CheckpointStore and the
// llmbackend package implements InvocationBackend; GraphStore, ThreadStore
// and RevisionStore have only the in-memory implementations in this package.
package engine
