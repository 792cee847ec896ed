package types

import (
	"math"
	"time"
)

// Relationship is a directed, typed, confidence-scored edge between two
// entities. Relationships are append-only: every observation is a new
// instance.
type Relationship struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	TargetID    string    `json:"target_id"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence"`
	EpisodeID   string    `json:"episode_id"`
	GroupID     string    `json:"group_id"`
	CreatedAt   time.Time `json:"created_at"`
	ValidFrom   time.Time `json:"valid_from"`

	// Populated on read.
	SourceName string `json:"source_name,omitempty"`
	TargetName string `json:"target_name,omitempty"`
}

// Validate checks the fields required before an edge is persisted.
func (r *Relationship) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return ErrMissingEndpoint
	}
	if r.GroupID == "" {
		return ErrEmptyGroupID
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Subgraph is the neighborhood of an entity.
type Subgraph struct {
	Center        string          `json:"center_entity"`
	CenterEntity  *Entity         `json:"center,omitempty"`
	Entities      []*Entity       `json:"entities"`
	Relationships []*Relationship `json:"relationships"`
	// Paths lists relationship ids walked from the center, one slice per path.
	Paths [][]string `json:"paths"`
}
