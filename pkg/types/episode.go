package types

import (
	"strings"
	"time"
)

// DefaultEpisodeSource labels episodes submitted without a source.
const DefaultEpisodeSource = "user_input"

// Episode is an immutable record of one ingested business event.
type Episode struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Source    string      `json:"source"`
	GroupID   string      `json:"group_id"`
	CreatedAt time.Time   `json:"created_at"`
	Metadata  *Properties `json:"metadata,omitempty"`
}

// Validate checks the fields required before the provenance vertex is written.
func (e *Episode) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	return e.Metadata.Validate()
}

// IsEmpty reports whether the episode has no text to extract from.
func (e *Episode) IsEmpty() bool {
	return strings.TrimSpace(e.Content) == ""
}

// TruncatedContent returns at most maxRunes runes of the content.
// maxRunes <= 0 disables truncation.
func (e *Episode) TruncatedContent(maxRunes int) string {
	if maxRunes <= 0 {
		return e.Content
	}
	r := []rune(e.Content)
	if len(r) <= maxRunes {
		return e.Content
	}
	return string(r[:maxRunes])
}

// EpisodeState is a step of the per-episode pipeline.
type EpisodeState string

const (
	StateReceived               EpisodeState = "received"
	StateEntitiesExtracted      EpisodeState = "entities_extracted"
	StateEntitiesResolved       EpisodeState = "entities_resolved"
	StateRelationshipsExtracted EpisodeState = "relationships_extracted"
	StateRelationshipsWritten   EpisodeState = "relationships_written"
	StateEmbeddingsUpdated      EpisodeState = "embeddings_updated"
	StateEpisodeRecorded        EpisodeState = "episode_recorded"
	StatePartiallyCompleted     EpisodeState = "partially_completed"
)

// Terminal reports whether no further transition is possible.
func (s EpisodeState) Terminal() bool {
	return s == StateEpisodeRecorded || s == StatePartiallyCompleted
}

// next lists the forward transition out of each non-terminal state.
var next = map[EpisodeState]EpisodeState{
	StateReceived:               StateEntitiesExtracted,
	StateEntitiesExtracted:      StateEntitiesResolved,
	StateEntitiesResolved:       StateRelationshipsExtracted,
	StateRelationshipsExtracted: StateRelationshipsWritten,
	StateRelationshipsWritten:   StateEmbeddingsUpdated,
	StateEmbeddingsUpdated:      StateEpisodeRecorded,
}

// CanTransition reports whether moving from s to to is allowed. Any
// non-terminal state may drop to partially_completed.
func (s EpisodeState) CanTransition(to EpisodeState) bool {
	if s.Terminal() {
		return false
	}
	if to == StatePartiallyCompleted {
		return true
	}
	return next[s] == to
}

// EpisodeStatus tells the caller whether every stage succeeded.
type EpisodeStatus string

const (
	EpisodeComplete EpisodeStatus = "complete"
	EpisodePartial  EpisodeStatus = "partial"
)
