package types

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrEmptyGroupID       = errors.New("group_id cannot be empty")
	ErrEmptyID            = errors.New("id cannot be empty")
	ErrInvalidEntityType  = errors.New("invalid entity type")
	ErrInvalidConfidence  = errors.New("confidence must be within [0, 1]")
	ErrMissingEndpoint    = errors.New("relationship source and target are required")
	ErrInvalidLimit       = errors.New("limit must be positive")
	ErrContentTooLarge    = errors.New("content exceeds maximum length")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
)

// EntityType is the closed set of entity classifications.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityProduct      EntityType = "product"
	EntityOrganization EntityType = "organization"
	EntityEvent        EntityType = "event"
	EntityLocation     EntityType = "location"
	EntityConcept      EntityType = "concept"
)

// AllEntityTypes lists every recognized entity type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityPerson,
		EntityProduct,
		EntityOrganization,
		EntityEvent,
		EntityLocation,
		EntityConcept,
	}
}

// ParseEntityType case-folds s and checks it against the closed set.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AllEntityTypes(), t) {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// Valid reports whether t is one of the recognized types.
func (t EntityType) Valid() bool {
	return slices.Contains(AllEntityTypes(), t)
}

// Relationship type used when the extractor supplies none.
const DefaultRelationshipType = "related_to"

// NormalizeRelationshipType lower-cases s and collapses every run of
// non-alphanumeric characters into a single underscore.
func NormalizeRelationshipType(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return DefaultRelationshipType
	}
	return b.String()
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Role is the author of a chat message.
type Role string

// Message is one turn of an LLM conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports token accounting for one LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of an LLM call.
type Response struct {
	Content      string      `json:"content"`
	Model        string      `json:"model,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	TokensUsed   *TokenUsage `json:"tokens_used,omitempty"`
}

// contextKey is unexported so keys cannot collide with other packages.
type contextKey string

// Context keys carried through ingestion and search calls.
const (
	ContextKeyUserID          contextKey = "user_id"
	ContextKeySessionID       contextKey = "session_id"
	ContextKeyRequestSource   contextKey = "request_source"
	ContextKeyIngestionSource contextKey = "ingestion_source"
	ContextKeyEpisodeID       contextKey = "episode_id"
)

// SearchResult is one hit from the combined search surface.
type SearchResult struct {
	Kind         string        `json:"type"`
	Score        float64       `json:"score"`
	Entity       *Entity       `json:"entity,omitempty"`
	Relationship *Relationship `json:"relationship,omitempty"`
}

// GraphStatistics summarizes the persisted graph for one group.
type GraphStatistics struct {
	EntityCount       int64                `json:"entity_count"`
	RelationshipCount int64                `json:"relationship_count"`
	EpisodeCount      int64                `json:"episode_count"`
	Density           float64              `json:"density"`
	EntitiesByType    map[EntityType]int64 `json:"entities_by_type,omitempty"`
	LastUpdated       time.Time            `json:"last_updated"`
}

// Density returns relationships over the number of possible directed
// entity pairs.
func Density(entities, relationships int64) float64 {
	if entities < 2 {
		return 0
	}
	return float64(relationships) / float64(entities*(entities-1))
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
