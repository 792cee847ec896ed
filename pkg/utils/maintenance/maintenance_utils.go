package maintenance

import (
	"context"
	"fmt"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

// MaintenanceUtils reads whole-group views of the graph.
type MaintenanceUtils struct {
	store driver.GraphStore
}

// NewMaintenanceUtils creates a new MaintenanceUtils instance
func NewMaintenanceUtils(store driver.GraphStore) *MaintenanceUtils {
	return &MaintenanceUtils{
		store: store,
	}
}

// GetEntities returns every entity of groupID.
func (mu *MaintenanceUtils) GetEntities(ctx context.Context, groupID string) ([]*types.Entity, error) {
	return mu.findEntities(ctx, driver.GroupFilter(groupID))
}

// GetEntitiesByType returns the entities of groupID with the given type.
func (mu *MaintenanceUtils) GetEntitiesByType(ctx context.Context, groupID string, entityType types.EntityType) ([]*types.Entity, error) {
	filters := driver.GroupFilter(groupID)
	filters.Set(driver.KeyEntityType, types.StringValue(string(entityType)))
	return mu.findEntities(ctx, filters)
}

func (mu *MaintenanceUtils) findEntities(ctx context.Context, filters *types.Properties) ([]*types.Entity, error) {
	vertices, err := mu.store.FindVertices(ctx, driver.LabelEntity, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve entities: %w", err)
	}
	entities := make([]*types.Entity, 0, len(vertices))
	for _, v := range vertices {
		e, err := driver.EntityFromVertex(v)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// GetRelationships returns every RELATES_TO relationship of groupID in
// insertion order. Endpoint names are filled from names when present.
func (mu *MaintenanceUtils) GetRelationships(ctx context.Context, groupID string, names map[string]string) ([]*types.Relationship, error) {
	edges, err := mu.store.FindEdges(ctx, driver.EdgeRelatesTo, driver.GroupFilter(groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve relationships: %w", err)
	}
	rels := make([]*types.Relationship, 0, len(edges))
	for _, e := range edges {
		r := driver.RelationshipFromEdge(e)
		r.SourceName = names[r.SourceID]
		r.TargetName = names[r.TargetID]
		rels = append(rels, r)
	}
	return rels, nil
}

// EntityNames maps entity id to name.
func EntityNames(entities []*types.Entity) map[string]string {
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.Name
	}
	return names
}

// GetGraphStatistics counts the entities, relationships and episodes of
// groupID.
func (mu *MaintenanceUtils) GetGraphStatistics(ctx context.Context, groupID string) (*types.GraphStatistics, error) {
	stats, err := mu.store.GetStats(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph stats: %w", err)
	}

	entities, err := mu.GetEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	byType := make(map[types.EntityType]int64)
	for _, e := range entities {
		byType[e.Type]++
	}

	entityCount := stats.VerticesByLabel[driver.LabelEntity]
	relCount := stats.EdgesByLabel[driver.EdgeRelatesTo]
	return &types.GraphStatistics{
		EntityCount:       entityCount,
		RelationshipCount: relCount,
		EpisodeCount:      stats.VerticesByLabel[driver.LabelEpisode],
		Density:           types.Density(entityCount, relCount),
		EntitiesByType:    byType,
		LastUpdated:       stats.LastUpdated,
	}, nil
}
