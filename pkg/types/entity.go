package types

import (
	"slices"
	"strings"
	"time"
)

// Entity is a resolved node representing a real-world object.
type Entity struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        EntityType  `json:"type"`
	Description string      `json:"description,omitempty"`
	Properties  *Properties `json:"properties,omitempty"`
	GroupID     string      `json:"group_id"`

	// Embedding is nil until computed.
	Embedding []float32 `json:"embedding,omitempty"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
	EpisodeIDs  []string  `json:"episode_ids,omitempty"`
}

// Validate checks the fields required before an entity is persisted.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	if !e.Type.Valid() {
		return ErrInvalidEntityType
	}
	return e.Properties.Validate()
}

// EmbeddingText is the text embedded for semantic matching and search.
func (e *Entity) EmbeddingText() string {
	return strings.TrimSpace(e.Name + " " + e.Description)
}

// HasEmbedding reports whether a vector has been stored.
func (e *Entity) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// AddEpisode records episodeID as a contributor. It reports whether the
// set changed.
func (e *Entity) AddEpisode(episodeID string) bool {
	if episodeID == "" || slices.Contains(e.EpisodeIDs, episodeID) {
		return false
	}
	e.EpisodeIDs = append(e.EpisodeIDs, episodeID)
	return true
}

// MergeFrom folds a fresher observation of the same entity into e. The
// type never changes; candidate properties win on key conflicts.
func (e *Entity) MergeFrom(candidate *Entity, now time.Time) {
	if candidate.Description != "" {
		e.Description = candidate.Description
	}
	if candidate.Properties.Len() > 0 {
		if e.Properties == nil {
			e.Properties = NewProperties()
		}
		e.Properties.Merge(candidate.Properties)
	}
	for _, id := range candidate.EpisodeIDs {
		e.AddEpisode(id)
	}
	e.LastUpdated = now
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Properties = e.Properties.Clone()
	c.Embedding = slices.Clone(e.Embedding)
	c.EpisodeIDs = slices.Clone(e.EpisodeIDs)
	return &c
}

// NormalizedName is the exact-match key for identity resolution.
func (e *Entity) NormalizedName() string {
	return NormalizeName(e.Name)
}

// NormalizeName case-folds s, trims it and collapses inner whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
