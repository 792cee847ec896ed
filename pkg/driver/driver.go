package driver

import (
	"context"
	"regexp"
	"time"

	"github.com/soundprediction/episodic/pkg/types"
)

// GraphProvider identifies a GraphStore implementation.
type GraphProvider string

const (
	GraphProviderNeo4j  GraphProvider = "neo4j"
	GraphProviderMemory GraphProvider = "memory"
)

// Vertex labels.
const (
	LabelEntity  = "Entity"
	LabelEpisode = "Episode"
)

// Edge labels.
const (
	EdgeRelatesTo = "RELATES_TO"
	EdgeMentions  = "MENTIONS"
)

// KnownEdgeLabels lists every edge label written by episodic.
var KnownEdgeLabels = []string{EdgeRelatesTo, EdgeMentions}

// Reserved property keys handled outside Vertex.Properties.
const (
	KeyUUID      = "uuid"
	KeyGroupID   = "group_id"
	KeyEmbedding = "embedding"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidLabel reports whether label is safe to interpolate into a query.
func ValidLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// Vertex is a labelled node with scalar properties and an optional vector.
type Vertex struct {
	ID         string
	Label      string
	GroupID    string
	Properties *types.Properties
	Embedding  []float32
}

// Edge is a directed, labelled edge between two vertex ids.
type Edge struct {
	ID         string
	Label      string
	From       string
	To         string
	GroupID    string
	Properties *types.Properties
}

// Subgraph is the result of a traversal. Paths hold edge ids in walk order.
type Subgraph struct {
	Start    *Vertex
	Vertices []*Vertex
	Edges    []*Edge
	Paths    [][]string
}

// GraphStats holds per-label counts for one group.
type GraphStats struct {
	VerticesByLabel map[string]int64
	EdgesByLabel    map[string]int64
	LastUpdated     time.Time
}

// MaxTraversalPaths bounds the number of paths a single Traverse returns.
const MaxTraversalPaths = 200

// GraphStore is the graph store adapter used by the episode pipeline and
// search. Implementations must be safe for concurrent use.
type GraphStore interface {
	VertexStore
	EdgeStore
	GraphTraversal
	DatabaseAdmin
}

// VertexStore writes and looks up vertices.
type VertexStore interface {
	// UpsertVertex creates or replaces v's properties. An empty ID is
	// filled with a new one, which is returned.
	UpsertVertex(ctx context.Context, v *Vertex) (string, error)
	// GetVertex returns ErrVertexNotFound when id is unknown.
	GetVertex(ctx context.Context, id string) (*Vertex, error)
	// FindVertices returns vertices with label whose properties equal every filter.
	FindVertices(ctx context.Context, label string, filters *types.Properties) ([]*Vertex, error)
	// SetEmbedding replaces the vector of vertex id and nothing else.
	// It returns ErrVertexNotFound when id is unknown.
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	DeleteVertex(ctx context.Context, id string) error
}

// EdgeStore writes and looks up edges.
type EdgeStore interface {
	// UpsertEdge creates a new edge when e.ID is empty, otherwise it
	// replaces the properties of the edge with that id.
	UpsertEdge(ctx context.Context, e *Edge) (string, error)
	FindEdges(ctx context.Context, label string, filters *types.Properties) ([]*Edge, error)
	// RedirectEdges moves every edge touching fromID onto toID. Edges that
	// would become self loops are dropped.
	RedirectEdges(ctx context.Context, fromID, toID string) error
}

// GraphTraversal walks the graph ignoring edge direction.
type GraphTraversal interface {
	// Traverse returns vertices and edges reachable from startID within
	// maxHops, following only edgeLabels when non-empty.
	Traverse(ctx context.Context, startID string, maxHops int, edgeLabels []string) (*Subgraph, error)
}

// DatabaseAdmin covers lifecycle and housekeeping operations.
type DatabaseAdmin interface {
	Provider() GraphProvider
	CreateIndices(ctx context.Context) error
	GetStats(ctx context.Context, groupID string) (*GraphStats, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// filterValue reads key from v, looking at reserved fields first.
func filterValue(v *Vertex, key string) (types.PropertyValue, bool) {
	switch key {
	case KeyUUID:
		return types.StringValue(v.ID), true
	case KeyGroupID:
		return types.StringValue(v.GroupID), true
	}
	return v.Properties.Get(key)
}

func edgeFilterValue(e *Edge, key string) (types.PropertyValue, bool) {
	switch key {
	case KeyUUID:
		return types.StringValue(e.ID), true
	case KeyGroupID:
		return types.StringValue(e.GroupID), true
	}
	return e.Properties.Get(key)
}

func matchesFilters(filters *types.Properties, get func(string) (types.PropertyValue, bool)) bool {
	for _, k := range filters.Keys() {
		want, _ := filters.Get(k)
		got, ok := get(k)
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}
