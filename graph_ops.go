package episodic

import (
	"context"
	"fmt"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

// GetStatistics summarizes the client group.
func (c *Client) GetStatistics(ctx context.Context) (*types.GraphStatistics, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	stats, err := c.utils.GetGraphStatistics(ctx, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph statistics: %w", err)
	}
	return stats, nil
}

// CreateIndices creates the store indices used by identity lookups.
func (c *Client) CreateIndices(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.graphOps.BuildIndicesAndConstraints(ctx)
}

// CompactDuplicates merges entities of the client group that share a
// normalized name and type, which concurrent episodes can create.
func (c *Client) CompactDuplicates(ctx context.Context) (*maintenance.CompactionReport, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	report, err := c.graphOps.CompactDuplicates(ctx, c.config.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to compact duplicates: %w", err)
	}
	c.logger.Info("Compacted duplicate entities",
		"group_id", c.config.GroupID,
		"groups", report.Groups,
		"removed", report.Removed)
	return report, nil
}

// HealthCheck verifies that the store is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if err := c.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("graph store unhealthy: %w", err)
	}
	return nil
}
