package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/episodic/pkg/types"
)

// ParquetGraphWriter archives what each episode wrote to the graph as
// Parquet files, one file per episode and record kind.
type ParquetGraphWriter struct {
	baseDir string
}

// NewParquetGraphWriter creates the archive directories under baseDir.
func NewParquetGraphWriter(baseDir string) (*ParquetGraphWriter, error) {
	dirs := []string{"episodes", "entities", "relationships"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	return &ParquetGraphWriter{baseDir: baseDir}, nil
}

// ParquetEpisode is the archived form of an episode and its outcome.
type ParquetEpisode struct {
	ID        string    `parquet:"id"`
	Content   string    `parquet:"content"`
	Source    string    `parquet:"source"`
	GroupID   string    `parquet:"group_id"`
	Status    string    `parquet:"status"`
	State     string    `parquet:"state"`
	CreatedAt time.Time `parquet:"created_at"`
	Metadata  string    `parquet:"metadata"` // JSON string
}

// ParquetEntity is the archived form of an entity as written by one episode.
type ParquetEntity struct {
	ID          string    `parquet:"id"`
	Name        string    `parquet:"name"`
	EntityType  string    `parquet:"entity_type"`
	Description string    `parquet:"description"`
	GroupID     string    `parquet:"group_id"`
	FirstSeen   time.Time `parquet:"first_seen"`
	LastUpdated time.Time `parquet:"last_updated"`
	Embedding   []float32 `parquet:"embedding"`
	Properties  string    `parquet:"properties"` // JSON string
	EpisodeID   string    `parquet:"episode_id"`
}

// ParquetRelationship is the archived form of one relationship instance.
type ParquetRelationship struct {
	ID          string    `parquet:"id"`
	SourceID    string    `parquet:"source_id"`
	TargetID    string    `parquet:"target_id"`
	Type        string    `parquet:"type"`
	Description string    `parquet:"description"`
	Confidence  float64   `parquet:"confidence"`
	GroupID     string    `parquet:"group_id"`
	CreatedAt   time.Time `parquet:"created_at"`
	EpisodeID   string    `parquet:"episode_id"`
}

// WriteEpisode archives the episode record together with its final status.
func (w *ParquetGraphWriter) WriteEpisode(ctx context.Context, episode *types.Episode, status types.EpisodeStatus, state types.EpisodeState) error {
	metadataJSON, err := json.Marshal(episode.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	pe := ParquetEpisode{
		ID:        episode.ID,
		Content:   episode.Content,
		Source:    episode.Source,
		GroupID:   episode.GroupID,
		Status:    string(status),
		State:     string(state),
		CreatedAt: episode.CreatedAt,
		Metadata:  string(metadataJSON),
	}

	filename := fmt.Sprintf("episode_%s.parquet", episode.ID)
	path := filepath.Join(w.baseDir, "episodes", filename)

	return parquet.WriteFile(path, []ParquetEpisode{pe})
}

// WriteEntities archives the entities an episode created or updated.
func (w *ParquetGraphWriter) WriteEntities(ctx context.Context, entities []*types.Entity, episodeID string) error {
	if len(entities) == 0 {
		return nil
	}

	rows := make([]ParquetEntity, 0, len(entities))
	for _, e := range entities {
		propsJSON, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties: %w", err)
		}
		rows = append(rows, ParquetEntity{
			ID:          e.ID,
			Name:        e.Name,
			EntityType:  string(e.Type),
			Description: e.Description,
			GroupID:     e.GroupID,
			FirstSeen:   e.FirstSeen,
			LastUpdated: e.LastUpdated,
			Embedding:   e.Embedding,
			Properties:  string(propsJSON),
			EpisodeID:   episodeID,
		})
	}

	filename := fmt.Sprintf("entities_%s_%d.parquet", episodeID, time.Now().UnixNano())
	path := filepath.Join(w.baseDir, "entities", filename)

	return parquet.WriteFile(path, rows)
}

// WriteRelationships archives the relationship instances an episode wrote.
func (w *ParquetGraphWriter) WriteRelationships(ctx context.Context, rels []*types.Relationship, episodeID string) error {
	if len(rels) == 0 {
		return nil
	}

	rows := make([]ParquetRelationship, 0, len(rels))
	for _, r := range rels {
		rows = append(rows, ParquetRelationship{
			ID:          r.ID,
			SourceID:    r.SourceID,
			TargetID:    r.TargetID,
			Type:        r.Type,
			Description: r.Description,
			Confidence:  r.Confidence,
			GroupID:     r.GroupID,
			CreatedAt:   r.CreatedAt,
			EpisodeID:   episodeID,
		})
	}

	filename := fmt.Sprintf("relationships_%s_%d.parquet", episodeID, time.Now().UnixNano())
	path := filepath.Join(w.baseDir, "relationships", filename)

	return parquet.WriteFile(path, rows)
}

// Close implements io.Closer; files are written per call so there is nothing to flush.
func (w *ParquetGraphWriter) Close() error {
	return nil
}
