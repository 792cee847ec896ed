package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

// Values of types.SearchResult.Kind.
const (
	KindEntity       = "entity"
	KindRelationship = "relationship"
)

// Searcher answers entity, relationship and neighborhood queries against
// one graph store. It only reads.
type Searcher struct {
	store    driver.GraphStore
	embedder embedder.Client
	utils    *maintenance.MaintenanceUtils
	config   Config
	logger   *slog.Logger
}

// NewSearcher creates a Searcher. A nil embedder makes entity search
// keyword-only.
func NewSearcher(store driver.GraphStore, embedder embedder.Client, config Config) *Searcher {
	return &Searcher{
		store:    store,
		embedder: embedder,
		utils:    maintenance.NewMaintenanceUtils(store),
		config:   config.withDefaults(),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger for the Searcher
func (s *Searcher) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Config returns the effective settings.
func (s *Searcher) Config() Config {
	return s.config
}

// Search returns up to limit/2 entities followed by up to limit/2
// relationships (at least one of each), tagged by kind.
func (s *Searcher) Search(ctx context.Context, query string, limit int, groupID string) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []types.SearchResult{}, nil
	}
	half := max(s.config.limit(limit)/2, 1)

	entities, err := s.SearchEntities(ctx, query, half, groupID)
	if err != nil {
		return nil, fmt.Errorf("entity search failed: %w", err)
	}
	rels, err := s.SearchRelationships(ctx, query, half, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("relationship search failed: %w", err)
	}
	return append(entities, rels...), nil
}

// SearchEntities scores the entities of groupID against query and returns
// the best limit of them, highest score first.
func (s *Searcher) SearchEntities(ctx context.Context, query string, limit int, groupID string) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []types.SearchResult{}, nil
	}
	limit = s.config.limit(limit)

	entities, err := s.utils.GetEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	queryVector := s.embedQuery(ctx, query)

	scored := make([]utils.ScoredItem[*types.Entity], 0, len(entities))
	for _, e := range entities {
		if score, ok := s.scoreEntity(e, query, queryVector); ok {
			scored = append(scored, utils.ScoredItem[*types.Entity]{Item: e, Score: score})
		}
	}

	top := utils.TopK(scored, limit, recentFirst)
	results := make([]types.SearchResult, 0, len(top))
	for _, hit := range top {
		results = append(results, types.SearchResult{Kind: KindEntity, Score: hit.Score, Entity: hit.Item})
	}
	s.logger.Debug("Entity search",
		"query", query,
		"candidates", len(entities),
		"hits", len(results),
		"semantic", queryVector != nil)
	return results, nil
}

// SearchRelationships returns relationships of groupID whose type,
// description or endpoint names contain query, ordered by confidence then
// recency. With an anchor, only edges within MaxHops of it are considered
// and an empty query matches all of them.
func (s *Searcher) SearchRelationships(ctx context.Context, query string, limit int, opts *RelationshipSearchOptions, groupID string) ([]types.SearchResult, error) {
	anchored := opts != nil && strings.TrimSpace(opts.AnchorEntity) != ""
	if strings.TrimSpace(query) == "" && !anchored {
		return []types.SearchResult{}, nil
	}
	limit = s.config.limit(limit)

	var allowed map[string]bool
	if anchored {
		var err error
		allowed, err = s.anchorEdges(ctx, opts.AnchorEntity, s.config.hops(opts.MaxHops), groupID)
		if err != nil {
			return nil, err
		}
		if len(allowed) == 0 {
			return []types.SearchResult{}, nil
		}
	}

	entities, err := s.utils.GetEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	rels, err := s.utils.GetRelationships(ctx, groupID, maintenance.EntityNames(entities))
	if err != nil {
		return nil, err
	}

	var matched []*types.Relationship
	for _, r := range rels {
		if allowed != nil && !allowed[r.ID] {
			continue
		}
		if matchesRelationship(r, query) {
			matched = append(matched, r)
		}
	}
	sortRelationships(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]types.SearchResult, 0, len(matched))
	for _, r := range matched {
		results = append(results, types.SearchResult{Kind: KindRelationship, Score: r.Confidence, Relationship: r})
	}
	return results, nil
}

// embedQuery returns nil when the query cannot be embedded.
func (s *Searcher) embedQuery(ctx context.Context, query string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.EmbedSingle(ctx, strings.ReplaceAll(query, "\n", " "))
	if err == nil && !utils.ValidVector(vector, s.embedder.Dimensions()) {
		err = embedder.ErrDimensionMismatch
	}
	if err != nil {
		s.logger.Warn("Query embedding failed, falling back to keyword search",
			"query", query,
			"error", err)
		return nil
	}
	return vector
}
