// Package checkpoint records the outcome of each episode of a batch so an
// interrupted or partially failed batch can be resumed without ingesting
// recorded episodes twice.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidEpisodeID is returned when an episode ID contains invalid characters
var ErrInvalidEpisodeID = errors.New("invalid episode ID: contains path traversal or invalid characters")

// CheckpointManager manages episode checkpoints, one JSON file per episode.
type CheckpointManager struct {
	checkpointDir string
	now           func() time.Time
}

// NewCheckpointManager creates a new checkpoint manager
// If checkpointDir is empty, uses os.TempDir()/episodic-checkpoints
func NewCheckpointManager(checkpointDir string) (*CheckpointManager, error) {
	if checkpointDir == "" {
		checkpointDir = filepath.Join(os.TempDir(), "episodic-checkpoints")
	}

	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &CheckpointManager{
		checkpointDir: checkpointDir,
		now:           time.Now,
	}, nil
}

// validateEpisodeID rejects ids that could escape the checkpoint directory.
func validateEpisodeID(episodeID string) error {
	if episodeID == "" ||
		strings.Contains(episodeID, "..") ||
		strings.ContainsAny(episodeID, `/\`) ||
		strings.ContainsRune(episodeID, '\x00') {
		return ErrInvalidEpisodeID
	}
	return nil
}

// isPathWithinDirectory checks that the resolved path is within the expected directory.
func isPathWithinDirectory(path, directory string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(directory)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath, cleanDir)
}

// GetCheckpointPath returns the file path for an episode's checkpoint.
func (m *CheckpointManager) GetCheckpointPath(episodeID string) (string, error) {
	if err := validateEpisodeID(episodeID); err != nil {
		return "", err
	}

	fullPath := filepath.Join(m.checkpointDir, fmt.Sprintf("checkpoint_%s.json", episodeID))
	if !isPathWithinDirectory(fullPath, m.checkpointDir) {
		return "", ErrInvalidEpisodeID
	}
	return fullPath, nil
}

// Save persists the checkpoint to disk
func (m *CheckpointManager) Save(ctx context.Context, checkpoint *EpisodeCheckpoint) error {
	checkpoint.LastUpdatedAt = m.now()

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath, err := m.GetCheckpointPath(checkpoint.EpisodeID)
	if err != nil {
		return fmt.Errorf("invalid episode ID: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := checkpointPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint from disk; nil when none exists.
func (m *CheckpointManager) Load(ctx context.Context, episodeID string) (*EpisodeCheckpoint, error) {
	checkpointPath, err := m.GetCheckpointPath(episodeID)
	if err != nil {
		return nil, fmt.Errorf("invalid episode ID: %w", err)
	}

	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint EpisodeCheckpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// Delete removes a checkpoint from disk
func (m *CheckpointManager) Delete(ctx context.Context, episodeID string) error {
	checkpointPath, err := m.GetCheckpointPath(episodeID)
	if err != nil {
		return fmt.Errorf("invalid episode ID: %w", err)
	}

	if err := os.Remove(checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// List returns all checkpoints in the checkpoint directory. Unreadable
// files are skipped.
func (m *CheckpointManager) List(ctx context.Context) ([]*EpisodeCheckpoint, error) {
	entries, err := os.ReadDir(m.checkpointDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*EpisodeCheckpoint
	for _, entry := range entries {
		// Only .json files; .tmp files are writes in progress.
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.checkpointDir, entry.Name()))
		if err != nil {
			continue
		}
		var checkpoint EpisodeCheckpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			continue
		}
		checkpoints = append(checkpoints, &checkpoint)
	}
	return checkpoints, nil
}

// GetCheckpointDir returns the checkpoint directory path
func (m *CheckpointManager) GetCheckpointDir() string {
	return m.checkpointDir
}

// CleanOld removes checkpoints not updated within maxAge.
func (m *CheckpointManager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, checkpoint := range checkpoints {
		if checkpoint.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ctx, checkpoint.EpisodeID); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
