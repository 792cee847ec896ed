package episodic

import (
	"context"
	"fmt"

	"github.com/soundprediction/episodic/pkg/search"
	"github.com/soundprediction/episodic/pkg/types"
)

// SearchEntities ranks the client group's entities against query by
// keyword and, when an embedder is configured, semantic similarity.
func (c *Client) SearchEntities(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	results, err := c.searcher.SearchEntities(ctx, query, limit, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("entity search failed: %w", err)
	}
	return results, nil
}

// SearchRelationships returns relationships whose type, description or
// endpoint names contain query, optionally restricted to the neighborhood
// of an anchor entity.
func (c *Client) SearchRelationships(ctx context.Context, query string, limit int, options *search.RelationshipSearchOptions) ([]types.SearchResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	results, err := c.searcher.SearchRelationships(ctx, query, limit, options, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("relationship search failed: %w", err)
	}
	return results, nil
}

// Search returns entity hits followed by relationship hits.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	results, err := c.searcher.Search(ctx, query, limit, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// GetEntityNeighbors returns the subgraph within maxHops RELATES_TO hops of
// the entity best matching name. An unknown name yields an empty subgraph.
func (c *Client) GetEntityNeighbors(ctx context.Context, name string, maxHops int) (*types.Subgraph, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	subgraph, err := c.searcher.Neighbors(ctx, name, maxHops, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("neighbor lookup failed: %w", err)
	}
	return subgraph, nil
}
