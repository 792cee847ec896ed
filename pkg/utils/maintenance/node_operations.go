package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/soundprediction/episodic/pkg/llm"
	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/prompts"
	"github.com/soundprediction/episodic/pkg/types"
)

// NodeOperations extracts entity candidates from episode text.
type NodeOperations struct {
	nlProcessor nlp.Client
	prompts     prompts.Library
	logger      *slog.Logger

	// Timeout bounds the extraction call; 0 leaves it to the caller's context.
	Timeout time.Duration
	// MaxAttempts is how many completions to request when the reply does
	// not parse (default llm.DefaultJSONAttempts).
	MaxAttempts int
}

// NewNodeOperations creates a new NodeOperations instance
func NewNodeOperations(nlProcessor nlp.Client, prompts prompts.Library) *NodeOperations {
	return &NodeOperations{
		nlProcessor: nlProcessor,
		prompts:     prompts,
		logger:      slog.Default(),
		MaxAttempts: llm.DefaultJSONAttempts,
	}
}

// SetLogger sets a custom logger for the NodeOperations
func (no *NodeOperations) SetLogger(logger *slog.Logger) {
	no.logger = logger
}

// ExtractEntities asks the LLM for the entities mentioned in text and returns
// them as unresolved candidates (no id, no group). allowed restricts the
// accepted types; empty means every type. known entities are offered to the
// model so it reuses their names.
//
// Blank text returns an empty list without calling the LLM. Any LLM or
// parsing failure is returned as *ExtractionError.
func (no *NodeOperations) ExtractEntities(ctx context.Context, text string, allowed []types.EntityType, known []*types.Entity) ([]*types.Entity, error) {
	text = llm.CleanInput(text)
	if strings.TrimSpace(text) == "" {
		return []*types.Entity{}, nil
	}
	if len(allowed) == 0 {
		allowed = types.AllEntityTypes()
	}

	start := time.Now()
	messages, err := no.prompts.ExtractEntities().Extract().Call(map[string]interface{}{
		"episode_content": text,
		"entity_types":    allowed,
		"known_entities":  known,
		"source":          sourceFrom(ctx),
		"logger":          no.logger,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: StageEntities, Err: fmt.Errorf("failed to create extraction prompt: %w", err)}
	}

	if no.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, no.Timeout)
		defer cancel()
	}

	extracted, resp, err := llm.GenerateJSONArray[prompts.ExtractedEntity](
		ctx, no.nlProcessor, messages, prompts.EntitiesSchema, prompts.EntitiesKey, no.MaxAttempts, prompts.EntityItemKeys...)
	if err != nil {
		return nil, &ExtractionError{Stage: StageEntities, Err: err}
	}
	prompts.LogResponses(no.logger, "extract_entities", resp)

	candidates := no.toCandidates(extracted, allowed)
	no.logger.Debug("Extracted entities",
		"returned", len(extracted),
		"kept", len(candidates),
		"duration", time.Since(start))
	return candidates, nil
}

// toCandidates drops unnamed and disallowed entries and folds duplicates
// (same normalized name and type) keeping the first position.
func (no *NodeOperations) toCandidates(extracted []prompts.ExtractedEntity, allowed []types.EntityType) []*types.Entity {
	candidates := make([]*types.Entity, 0, len(extracted))
	index := make(map[string]*types.Entity)

	for _, ex := range extracted {
		name := strings.TrimSpace(ex.Name)
		if name == "" {
			continue
		}
		entityType, err := types.ParseEntityType(ex.Type)
		if err != nil || !slices.Contains(allowed, entityType) {
			no.logger.Debug("Dropping entity with disallowed type", "name", name, "type", ex.Type)
			continue
		}

		candidate := &types.Entity{
			Name:        name,
			Type:        entityType,
			Description: strings.TrimSpace(ex.Description),
			Properties:  no.toProperties(name, ex.Properties),
		}

		key := string(entityType) + "\x00" + types.NormalizeName(name)
		if existing, ok := index[key]; ok {
			if existing.Description == "" {
				existing.Description = candidate.Description
			}
			existing.Properties.Merge(candidate.Properties)
			continue
		}
		index[key] = candidate
		candidates = append(candidates, candidate)
	}
	return candidates
}

// toProperties converts model-supplied attributes. Nested values are kept
// as their JSON text; nulls and non-finite numbers are dropped.
func (no *NodeOperations) toProperties(entity string, raw map[string]interface{}) *types.Properties {
	props := types.NewProperties()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		key := strings.TrimSpace(k)
		if key == "" || raw[k] == nil {
			continue
		}
		value, err := types.ValueOf(raw[k])
		if err != nil {
			switch raw[k].(type) {
			case map[string]interface{}, []interface{}:
				b, jerr := json.Marshal(raw[k])
				if jerr != nil {
					continue
				}
				value = types.StringValue(string(b))
			default:
				no.logger.Debug("Dropping entity property", "entity", entity, "key", key, "error", err)
				continue
			}
		}
		props.Set(key, value)
	}
	return props
}

// sourceFrom reads the ingestion source placed on ctx by the caller.
func sourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(types.ContextKeyIngestionSource).(string)
	return s
}
