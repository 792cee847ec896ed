package episodic

import (
	"context"

	"github.com/soundprediction/episodic/pkg/search"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

// Consumers should depend on the smallest interface that meets their needs.

// EpisodeIngester turns episodes into graph state.
type EpisodeIngester interface {
	// AddEpisode runs the full pipeline for one episode. The returned error
	// is non-nil only when the episode vertex itself could not be written.
	AddEpisode(ctx context.Context, content, source string, metadata map[string]any, options *AddEpisodeOptions) (*EpisodeResult, error)

	// AddEpisodes processes episodes concurrently. Results and errors are
	// index-aligned with the input.
	AddEpisodes(ctx context.Context, episodes []EpisodeInput) ([]*EpisodeResult, []error)
}

// GraphQuerier provides read-only queries over the graph.
type GraphQuerier interface {
	SearchEntities(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
	SearchRelationships(ctx context.Context, query string, limit int, options *search.RelationshipSearchOptions) ([]types.SearchResult, error)
	Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
	GetEntityNeighbors(ctx context.Context, name string, maxHops int) (*types.Subgraph, error)
	GetStatistics(ctx context.Context) (*types.GraphStatistics, error)
}

// GraphMaintainer provides administrative operations.
type GraphMaintainer interface {
	CreateIndices(ctx context.Context) error
	CompactDuplicates(ctx context.Context) (*maintenance.CompactionReport, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Episodic is the full caller-facing API.
type Episodic interface {
	EpisodeIngester
	GraphQuerier
	GraphMaintainer
}

var _ Episodic = (*Client)(nil)
