package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

// GraphDataOperations provides graph-wide housekeeping.
type GraphDataOperations struct {
	store  driver.GraphStore
	utils  *MaintenanceUtils
	logger *slog.Logger
	Now    func() time.Time
}

// NewGraphDataOperations creates a new GraphDataOperations instance
func NewGraphDataOperations(store driver.GraphStore) *GraphDataOperations {
	return &GraphDataOperations{
		store:  store,
		utils:  NewMaintenanceUtils(store),
		logger: slog.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets a custom logger for the GraphDataOperations
func (gdo *GraphDataOperations) SetLogger(logger *slog.Logger) {
	gdo.logger = logger
}

// BuildIndicesAndConstraints creates the indices the store needs for
// identity lookups.
func (gdo *GraphDataOperations) BuildIndicesAndConstraints(ctx context.Context) error {
	gdo.logger.Info("Building indices and constraints", "provider", gdo.store.Provider())
	return gdo.store.CreateIndices(ctx)
}

// CompactionReport summarizes a CompactDuplicates run.
type CompactionReport struct {
	// Groups is the number of (normalized name, type) groups with duplicates.
	Groups int `json:"groups"`
	// Removed is the number of duplicate vertices merged away.
	Removed int `json:"removed"`
}

// CompactDuplicates merges entities of groupID that share a normalized name
// and type. The earliest FirstSeen survives; properties are applied in
// LastUpdated order so the freshest value wins; episode sets are unioned and
// every edge of a duplicate is moved onto the survivor.
func (gdo *GraphDataOperations) CompactDuplicates(ctx context.Context, groupID string) (*CompactionReport, error) {
	entities, err := gdo.utils.GetEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*types.Entity)
	var keys []string
	for _, e := range entities {
		key := string(e.Type) + "\x00" + e.NormalizedName()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], e)
	}
	sort.Strings(keys)

	report := &CompactionReport{}
	for _, key := range keys {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		survivor := mergeGroup(members, gdo.Now())
		vertex, err := driver.EntityToVertex(survivor)
		if err != nil {
			return report, err
		}
		if _, err := gdo.store.UpsertVertex(ctx, vertex); err != nil {
			return report, fmt.Errorf("failed to write merged entity %s: %w", survivor.ID, err)
		}

		for _, dup := range members {
			if dup.ID == survivor.ID {
				continue
			}
			if err := gdo.store.RedirectEdges(ctx, dup.ID, survivor.ID); err != nil {
				return report, fmt.Errorf("failed to redirect edges of %s: %w", dup.ID, err)
			}
			if err := gdo.store.DeleteVertex(ctx, dup.ID); err != nil {
				return report, fmt.Errorf("failed to delete duplicate %s: %w", dup.ID, err)
			}
			report.Removed++
		}
		report.Groups++
		gdo.logger.Info("Merged duplicate entities",
			"entity_id", survivor.ID,
			"name", survivor.Name,
			"duplicates", len(members)-1)
	}
	return report, nil
}

// mergeGroup folds members into the one with the earliest FirstSeen.
func mergeGroup(members []*types.Entity, now time.Time) *types.Entity {
	byAge := append([]*types.Entity(nil), members...)
	sort.Slice(byAge, func(i, j int) bool { return olderThan(byAge[i], byAge[j]) })
	survivor := byAge[0].Clone()

	byUpdate := append([]*types.Entity(nil), members...)
	sort.SliceStable(byUpdate, func(i, j int) bool { return byUpdate[i].LastUpdated.Before(byUpdate[j].LastUpdated) })

	survivor.Properties = types.NewProperties()
	survivor.Description = ""
	for _, m := range byUpdate {
		survivor.MergeFrom(m, now)
		if len(survivor.Embedding) == 0 && len(m.Embedding) > 0 {
			survivor.Embedding = m.Embedding
		}
	}
	return survivor
}
