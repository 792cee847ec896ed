package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/episodic/pkg/types"
)

// EpisodeCheckpoint is the last known outcome of one episode.
type EpisodeCheckpoint struct {
	EpisodeID string              `json:"episode_id"`
	GroupID   string              `json:"group_id,omitempty"`
	Status    types.EpisodeStatus `json:"status,omitempty"`
	State     types.EpisodeState  `json:"state"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`

	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`
}

// Outcome is what one ingestion attempt reported. Err is set when the
// episode was not recorded at all.
type Outcome struct {
	Status            types.EpisodeStatus
	State             types.EpisodeState
	Warnings          []string
	EntityCount       int
	RelationshipCount int
	Err               error
}

// NewCheckpoint creates a checkpoint for an episode not yet attempted.
func NewCheckpoint(episodeID, groupID string) *EpisodeCheckpoint {
	now := time.Now()
	return &EpisodeCheckpoint{
		EpisodeID:     episodeID,
		GroupID:       groupID,
		State:         types.StateReceived,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// Done reports whether the episode was fully ingested.
func (c *EpisodeCheckpoint) Done() bool {
	return c.Status == types.EpisodeComplete && c.State == types.StateEpisodeRecorded
}

// CanRetry determines if a checkpoint should be retried based on attempt count and age
func (c *EpisodeCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	if c.Done() || c.AttemptCount >= maxAttempts {
		return false
	}
	return maxAge <= 0 || time.Since(c.CreatedAt) <= maxAge
}

// Apply folds an attempt's outcome into the checkpoint.
func (c *EpisodeCheckpoint) Apply(o Outcome) {
	c.AttemptCount++
	c.Warnings = o.Warnings
	c.EntityCount = o.EntityCount
	c.RelationshipCount = o.RelationshipCount
	if o.State != "" {
		c.State = o.State
	}
	c.Status = o.Status
	c.LastError = ""
	if o.Err != nil {
		c.LastError = o.Err.Error()
	}
}

// Summary provides a human-readable summary of the checkpoint
func (c *EpisodeCheckpoint) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Episode: %s\n", c.EpisodeID)
	if c.GroupID != "" {
		fmt.Fprintf(&sb, "Group: %s\n", c.GroupID)
	}
	fmt.Fprintf(&sb, "State: %s\n", c.State)
	if c.Status != "" {
		fmt.Fprintf(&sb, "Status: %s\n", c.Status)
	}
	fmt.Fprintf(&sb, "Attempts: %d\n", c.AttemptCount)
	fmt.Fprintf(&sb, "Entities: %d, Relationships: %d\n", c.EntityCount, c.RelationshipCount)
	fmt.Fprintf(&sb, "Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	if c.LastError != "" {
		fmt.Fprintf(&sb, "Last Error: %s\n", c.LastError)
	}
	for _, w := range c.Warnings {
		fmt.Fprintf(&sb, "Warning: %s\n", w)
	}
	return sb.String()
}

// LoadOrCreate loads an existing checkpoint or creates a new one
func (m *CheckpointManager) LoadOrCreate(ctx context.Context, episodeID, groupID string) (*EpisodeCheckpoint, bool, error) {
	existing, err := m.Load(ctx, episodeID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	checkpoint := NewCheckpoint(episodeID, groupID)
	if err := m.Save(ctx, checkpoint); err != nil {
		return nil, false, err
	}
	return checkpoint, false, nil
}

// Record applies an outcome to the episode's checkpoint and saves it.
func (m *CheckpointManager) Record(ctx context.Context, episodeID, groupID string, o Outcome) (*EpisodeCheckpoint, error) {
	checkpoint, _, err := m.LoadOrCreate(ctx, episodeID, groupID)
	if err != nil {
		return nil, err
	}
	checkpoint.Apply(o)
	if err := m.Save(ctx, checkpoint); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// Pending filters ids down to those that still need an attempt.
func (m *CheckpointManager) Pending(ctx context.Context, episodeIDs []string, maxAttempts int) ([]string, error) {
	pending := make([]string, 0, len(episodeIDs))
	for _, id := range episodeIDs {
		checkpoint, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if checkpoint == nil || checkpoint.CanRetry(maxAttempts, 0) {
			pending = append(pending, id)
		}
	}
	return pending, nil
}
