package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/llm"
	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/prompts"
	"github.com/soundprediction/episodic/pkg/types"
)

const (
	// DefaultConfidence is assigned when the model omits a confidence.
	DefaultConfidence = 0.5
	// DefaultMentionConfidence is stored on episode MENTIONS edges.
	DefaultMentionConfidence = 0.8
)

// EdgeOperations extracts relationships between resolved entities and
// builds the provenance edges of an episode.
type EdgeOperations struct {
	nlProcessor nlp.Client
	prompts     prompts.Library
	logger      *slog.Logger

	// DefaultConfidence replaces a missing or NaN confidence.
	DefaultConfidence float64
	// MentionConfidence is stored on MENTIONS edges.
	MentionConfidence float64
	// Timeout bounds the extraction call; 0 leaves it to the caller's context.
	Timeout     time.Duration
	MaxAttempts int
}

// NewEdgeOperations creates a new EdgeOperations instance
func NewEdgeOperations(nlProcessor nlp.Client, prompts prompts.Library) *EdgeOperations {
	return &EdgeOperations{
		nlProcessor:       nlProcessor,
		prompts:           prompts,
		logger:            slog.Default(),
		DefaultConfidence: DefaultConfidence,
		MentionConfidence: DefaultMentionConfidence,
		MaxAttempts:       llm.DefaultJSONAttempts,
	}
}

// SetLogger sets a custom logger for the EdgeOperations
func (eo *EdgeOperations) SetLogger(logger *slog.Logger) {
	eo.logger = logger
}

// ExtractRelationships asks the LLM for relationships among entities, which
// must carry their resolved ids. The returned relationships have SourceID,
// TargetID, Type, Description and Confidence set; ids, episode and timestamps
// are left to the caller.
//
// Fewer than two entities returns an empty list without calling the LLM.
// Endpoints that match no entity are dropped, as are self loops.
func (eo *EdgeOperations) ExtractRelationships(ctx context.Context, text string, entities []*types.Entity) ([]*types.Relationship, error) {
	text = llm.CleanInput(text)
	if len(entities) < 2 || strings.TrimSpace(text) == "" {
		return []*types.Relationship{}, nil
	}

	messages, err := eo.prompts.ExtractRelationships().Extract().Call(map[string]interface{}{
		"episode_content": text,
		"entities":        entities,
		"logger":          eo.logger,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: StageRelationships, Err: fmt.Errorf("failed to create extraction prompt: %w", err)}
	}

	if eo.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eo.Timeout)
		defer cancel()
	}

	extracted, resp, err := llm.GenerateJSONArray[prompts.ExtractedRelationship](
		ctx, eo.nlProcessor, messages, prompts.RelationshipsSchema, prompts.RelationshipsKey, eo.MaxAttempts, prompts.RelationshipItemKeys...)
	if err != nil {
		return nil, &ExtractionError{Stage: StageRelationships, Err: err}
	}
	prompts.LogResponses(eo.logger, "extract_relationships", resp)

	lookup := newEndpointIndex(entities)
	relationships := make([]*types.Relationship, 0, len(extracted))
	for _, ex := range extracted {
		source, okSource := lookup.find(ex.Source)
		target, okTarget := lookup.find(ex.Target)
		if !okSource || !okTarget {
			eo.logger.Warn("Dropping relationship with unknown endpoint",
				"source", ex.Source,
				"target", ex.Target,
				"type", ex.Type)
			continue
		}
		if source.ID == target.ID {
			eo.logger.Debug("Dropping self loop", "entity_id", source.ID, "type", ex.Type)
			continue
		}

		relationships = append(relationships, &types.Relationship{
			SourceID:    source.ID,
			TargetID:    target.ID,
			SourceName:  source.Name,
			TargetName:  target.Name,
			Type:        types.NormalizeRelationshipType(ex.Type),
			Description: strings.TrimSpace(ex.Description),
			Confidence:  eo.confidence(ex.Confidence),
		})
	}

	eo.logger.Debug("Extracted relationships", "returned", len(extracted), "kept", len(relationships))
	return relationships, nil
}

// confidence applies the default and clamps to [0, 1].
func (eo *EdgeOperations) confidence(c *prompts.Confidence) float64 {
	def := types.ClampConfidence(eo.DefaultConfidence)
	v := c.Value(def)
	if math.IsNaN(v) {
		return def
	}
	return types.ClampConfidence(v)
}

// BuildMentionEdges links an episode to every entity it touched.
func (eo *EdgeOperations) BuildMentionEdges(episodeID, groupID string, entityIDs []string, now time.Time) []*driver.Edge {
	edges := make([]*driver.Edge, 0, len(entityIDs))
	seen := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		edges = append(edges, driver.MentionEdge(episodeID, id, groupID, eo.MentionConfidence, now))
	}
	return edges
}

// endpointIndex resolves a model-supplied endpoint by id, then by
// normalized name.
type endpointIndex struct {
	byID   map[string]*types.Entity
	byName map[string]*types.Entity
}

func newEndpointIndex(entities []*types.Entity) *endpointIndex {
	idx := &endpointIndex{
		byID:   make(map[string]*types.Entity, len(entities)),
		byName: make(map[string]*types.Entity, len(entities)),
	}
	for _, e := range entities {
		if e == nil || e.ID == "" {
			continue
		}
		idx.byID[e.ID] = e
		// First entity wins when two share a name across types.
		if _, ok := idx.byName[e.NormalizedName()]; !ok {
			idx.byName[e.NormalizedName()] = e
		}
	}
	return idx
}

func (idx *endpointIndex) find(ref string) (*types.Entity, bool) {
	ref = strings.TrimSpace(ref)
	if e, ok := idx.byID[ref]; ok {
		return e, true
	}
	e, ok := idx.byName[types.NormalizeName(ref)]
	return e, ok
}
