package driver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/episodic/pkg/types"
)

// Property keys of Entity vertices.
const (
	KeyName           = "name"
	KeyNormalizedName = "normalized_name"
	KeyEntityType     = "entity_type"
	KeyDescription    = "description"
	KeyFirstSeen      = "first_seen"
	KeyLastUpdated    = "last_updated"
	KeyEpisodeIDs     = "episode_ids"
)

// Property keys of Episode vertices.
const (
	KeyContent   = "content"
	KeySource    = "source"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Property keys of edges.
const (
	KeyRelType    = "type"
	KeyConfidence = "confidence"
	KeyEpisodeID  = "episode_id"
	KeyValidFrom  = "valid_from"
)

// Prefixes keep caller-supplied keys apart from the reserved ones.
const (
	entityPropPrefix  = "prop_"
	episodeMetaPrefix = "meta_"
)

// EntityToVertex flattens e into a vertex.
func EntityToVertex(e *types.Entity) (*Vertex, error) {
	episodes, err := json.Marshal(e.EpisodeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal episode ids: %w", err)
	}

	props := types.NewProperties()
	props.Set(KeyName, types.StringValue(e.Name))
	props.Set(KeyNormalizedName, types.StringValue(e.NormalizedName()))
	props.Set(KeyEntityType, types.StringValue(string(e.Type)))
	props.Set(KeyDescription, types.StringValue(e.Description))
	props.Set(KeyFirstSeen, types.TimestampValue(e.FirstSeen))
	props.Set(KeyLastUpdated, types.TimestampValue(e.LastUpdated))
	props.Set(KeyEpisodeIDs, types.StringValue(string(episodes)))
	for _, k := range e.Properties.Keys() {
		v, _ := e.Properties.Get(k)
		props.Set(entityPropPrefix+k, v)
	}

	return &Vertex{
		ID:         e.ID,
		Label:      LabelEntity,
		GroupID:    e.GroupID,
		Properties: props,
		Embedding:  e.Embedding,
	}, nil
}

// EntityFromVertex rebuilds an entity from a stored vertex.
func EntityFromVertex(v *Vertex) (*types.Entity, error) {
	if v.Label != LabelEntity {
		return nil, fmt.Errorf("vertex %s is a %s, not an entity", v.ID, v.Label)
	}
	e := &types.Entity{
		ID:          v.ID,
		GroupID:     v.GroupID,
		Name:        v.Properties.GetString(KeyName),
		Type:        types.EntityType(v.Properties.GetString(KeyEntityType)),
		Description: v.Properties.GetString(KeyDescription),
		FirstSeen:   timeProp(v.Properties, KeyFirstSeen),
		LastUpdated: timeProp(v.Properties, KeyLastUpdated),
		Embedding:   v.Embedding,
		Properties:  types.NewProperties(),
	}
	if raw := v.Properties.GetString(KeyEpisodeIDs); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.EpisodeIDs); err != nil {
			return nil, fmt.Errorf("entity %s: bad episode ids: %w", v.ID, err)
		}
	}
	for _, k := range v.Properties.Keys() {
		if name, ok := strings.CutPrefix(k, entityPropPrefix); ok {
			val, _ := v.Properties.Get(k)
			e.Properties.Set(name, val)
		}
	}
	return e, nil
}

// EpisodeToVertex builds the provenance vertex. content is stored as given
// so callers can truncate it first.
func EpisodeToVertex(ep *types.Episode, content string, now time.Time) *Vertex {
	props := types.NewProperties()
	props.Set(KeyContent, types.StringValue(content))
	props.Set(KeySource, types.StringValue(ep.Source))
	props.Set(KeyCreatedAt, types.TimestampValue(ep.CreatedAt))
	props.Set(KeyUpdatedAt, types.TimestampValue(now))
	for _, k := range ep.Metadata.Keys() {
		v, _ := ep.Metadata.Get(k)
		props.Set(episodeMetaPrefix+k, v)
	}
	return &Vertex{
		ID:         ep.ID,
		Label:      LabelEpisode,
		GroupID:    ep.GroupID,
		Properties: props,
	}
}

// EpisodeFromVertex rebuilds an episode from its provenance vertex.
func EpisodeFromVertex(v *Vertex) *types.Episode {
	ep := &types.Episode{
		ID:        v.ID,
		GroupID:   v.GroupID,
		Content:   v.Properties.GetString(KeyContent),
		Source:    v.Properties.GetString(KeySource),
		CreatedAt: timeProp(v.Properties, KeyCreatedAt),
		Metadata:  types.NewProperties(),
	}
	for _, k := range v.Properties.Keys() {
		if name, ok := strings.CutPrefix(k, episodeMetaPrefix); ok {
			val, _ := v.Properties.Get(k)
			ep.Metadata.Set(name, val)
		}
	}
	return ep
}

// RelationshipToEdge builds a RELATES_TO edge.
func RelationshipToEdge(r *types.Relationship) *Edge {
	props := types.NewProperties()
	props.Set(KeyRelType, types.StringValue(r.Type))
	props.Set(KeyDescription, types.StringValue(r.Description))
	props.Set(KeyConfidence, types.NumberValue(r.Confidence))
	props.Set(KeyEpisodeID, types.StringValue(r.EpisodeID))
	props.Set(KeyCreatedAt, types.TimestampValue(r.CreatedAt))
	props.Set(KeyValidFrom, types.TimestampValue(r.ValidFrom))
	return &Edge{
		ID:         r.ID,
		Label:      EdgeRelatesTo,
		From:       r.SourceID,
		To:         r.TargetID,
		GroupID:    r.GroupID,
		Properties: props,
	}
}

// RelationshipFromEdge rebuilds a relationship from a RELATES_TO edge.
func RelationshipFromEdge(e *Edge) *types.Relationship {
	conf, _ := numberProp(e.Properties, KeyConfidence)
	return &types.Relationship{
		ID:          e.ID,
		SourceID:    e.From,
		TargetID:    e.To,
		GroupID:     e.GroupID,
		Type:        e.Properties.GetString(KeyRelType),
		Description: e.Properties.GetString(KeyDescription),
		Confidence:  conf,
		EpisodeID:   e.Properties.GetString(KeyEpisodeID),
		CreatedAt:   timeProp(e.Properties, KeyCreatedAt),
		ValidFrom:   timeProp(e.Properties, KeyValidFrom),
	}
}

// MentionEdge links an episode to an entity it touched.
func MentionEdge(episodeID, entityID, groupID string, confidence float64, now time.Time) *Edge {
	props := types.NewProperties()
	props.Set(KeyConfidence, types.NumberValue(confidence))
	props.Set(KeyEpisodeID, types.StringValue(episodeID))
	props.Set(KeyCreatedAt, types.TimestampValue(now))
	return &Edge{
		Label:      EdgeMentions,
		From:       episodeID,
		To:         entityID,
		GroupID:    groupID,
		Properties: props,
	}
}

// GroupFilter returns a filter matching every record of groupID.
func GroupFilter(groupID string) *types.Properties {
	f := types.NewProperties()
	f.Set(KeyGroupID, types.StringValue(groupID))
	return f
}

func timeProp(p *types.Properties, key string) time.Time {
	v, ok := p.Get(key)
	if !ok {
		return time.Time{}
	}
	if t, ok := v.AsTime(); ok {
		return t
	}
	if s, ok := v.AsString(); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func numberProp(p *types.Properties, key string) (float64, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}
