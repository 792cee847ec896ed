// Package driver provides the graph store adapters used by episodic.
//
// GraphStore is a small vertex/edge abstraction: labelled vertices with
// scalar properties and an optional embedding, labelled directed edges,
// undirected traversal and per-group statistics. Two implementations exist:
//   - Neo4jDriver: a Neo4j database reached through the official Bolt driver
//   - MemoryDriver: an in-process store for tests and local experiments
//
// RetryingStore wraps any GraphStore with per-call timeouts and retried
// writes; writes that still fail are reported as *GraphWriteError.
//
// The codec helpers (EntityToVertex, RelationshipToEdge, EpisodeToVertex and
// their inverses) own the mapping between the domain types in pkg/types and
// the stored property layout.
//
// # Thread Safety
//
// All implementations are safe for concurrent use from multiple goroutines.
package driver
