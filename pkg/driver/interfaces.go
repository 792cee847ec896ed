package driver

// Compile-time checks that both implementations satisfy the full store
// and each segregated interface.
var (
	_ GraphStore = (*Neo4jDriver)(nil)
	_ GraphStore = (*MemoryDriver)(nil)
	_ GraphStore = (*RetryingStore)(nil)

	_ VertexStore    = (*MemoryDriver)(nil)
	_ EdgeStore      = (*MemoryDriver)(nil)
	_ GraphTraversal = (*MemoryDriver)(nil)
	_ DatabaseAdmin  = (*MemoryDriver)(nil)
)
