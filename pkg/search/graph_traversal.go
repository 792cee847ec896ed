package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

var relatesTo = []string{driver.EdgeRelatesTo}

// Neighbors returns the entity best matching name together with the
// entities and relationships reachable over RELATES_TO edges within maxHops
// (default 2, max 5). At most NeighborLimit relationships are returned,
// nearest first. An unknown name yields an empty subgraph centred on name.
func (s *Searcher) Neighbors(ctx context.Context, name string, maxHops int, groupID string) (*types.Subgraph, error) {
	empty := &types.Subgraph{
		Center:        name,
		Entities:      []*types.Entity{},
		Relationships: []*types.Relationship{},
		Paths:         [][]string{},
	}

	center, err := s.findEntity(ctx, name, groupID)
	if err != nil || center == nil {
		return empty, err
	}
	empty.Center = center.Name
	empty.CenterEntity = center

	sg, err := s.store.Traverse(ctx, center.ID, s.config.hops(maxHops), relatesTo)
	if errors.Is(err, driver.ErrVertexNotFound) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to traverse from %s: %w", center.ID, err)
	}

	edges := sg.Edges
	if len(edges) > s.config.NeighborLimit {
		edges = edges[:s.config.NeighborLimit]
	}

	byID := map[string]*types.Entity{center.ID: center}
	var order []string
	for _, v := range sg.Vertices {
		if v.Label != driver.LabelEntity {
			continue
		}
		e, err := driver.EntityFromVertex(v)
		if err != nil {
			s.logger.Warn("Skipping unreadable entity vertex", "entity_id", v.ID, "error", err)
			continue
		}
		byID[e.ID] = e
		order = append(order, e.ID)
	}

	kept := make(map[string]bool, len(edges))
	touched := make(map[string]bool)
	out := empty
	for _, edge := range edges {
		r := driver.RelationshipFromEdge(edge)
		if src, ok := byID[r.SourceID]; ok {
			r.SourceName = src.Name
		}
		if dst, ok := byID[r.TargetID]; ok {
			r.TargetName = dst.Name
		}
		kept[edge.ID] = true
		touched[r.SourceID] = true
		touched[r.TargetID] = true
		out.Relationships = append(out.Relationships, r)
	}
	for _, id := range order {
		if touched[id] && id != center.ID {
			out.Entities = append(out.Entities, byID[id])
		}
	}
	for _, path := range sg.Paths {
		if allKept(path, kept) {
			out.Paths = append(out.Paths, path)
		}
	}
	return out, nil
}

// anchorEdges returns the ids of RELATES_TO edges within hops of the entity
// best matching anchor. An unknown anchor yields an empty set.
func (s *Searcher) anchorEdges(ctx context.Context, anchor string, hops int, groupID string) (map[string]bool, error) {
	center, err := s.findEntity(ctx, anchor, groupID)
	if err != nil || center == nil {
		return nil, err
	}
	sg, err := s.store.Traverse(ctx, center.ID, hops, relatesTo)
	if errors.Is(err, driver.ErrVertexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to traverse from %s: %w", center.ID, err)
	}
	ids := make(map[string]bool, len(sg.Edges))
	for _, e := range sg.Edges {
		ids[e.ID] = true
	}
	return ids, nil
}

// findEntity resolves a name the way callers type it: the top entity hit.
func (s *Searcher) findEntity(ctx context.Context, name string, groupID string) (*types.Entity, error) {
	hits, err := s.SearchEntities(ctx, name, 1, groupID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits[0].Entity, nil
}

func allKept(path []string, kept map[string]bool) bool {
	for _, id := range path {
		if !kept[id] {
			return false
		}
	}
	return len(path) > 0
}
