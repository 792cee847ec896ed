package prompts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/types"
)

// ExtractEntitiesPrompt defines the interface for entity extraction prompts.
type ExtractEntitiesPrompt interface {
	Extract() PromptVersion
}

// ExtractEntitiesVersions holds all versions of entity extraction prompts.
type ExtractEntitiesVersions struct {
	extractPrompt PromptVersion
}

func (e *ExtractEntitiesVersions) Extract() PromptVersion { return e.extractPrompt }

// extractEntitiesPrompt asks for typed entities mentioned in an episode.
//
// Context keys:
//   - episode_content (string, required)
//   - entity_types ([]types.EntityType): allowed tags, all types when empty
//   - known_entities ([]*types.Entity): existing entities to reuse names from
//   - source (string): where the episode came from
//   - logger (*slog.Logger)
func extractEntitiesPrompt(context map[string]interface{}) ([]types.Message, error) {
	sysPrompt := `You are an AI assistant that extracts entities from business events.
Your primary task is to identify the people, organizations, products, concepts, events and locations mentioned in the text and classify each one.`

	content := stringFrom(context, "episode_content")
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("episode_content is required")
	}

	allowed, _ := context["entity_types"].([]types.EntityType)
	if len(allowed) == 0 {
		allowed = types.AllEntityTypes()
	}
	typeNames := make([]string, len(allowed))
	for i, t := range allowed {
		typeNames[i] = string(t)
	}

	var knownSection string
	if known, _ := context["known_entities"].([]*types.Entity); len(known) > 0 {
		compact := make([]KnownEntity, 0, len(known))
		for _, e := range known {
			if e == nil {
				continue
			}
			compact = append(compact, KnownEntity{Name: e.Name, Type: string(e.Type), Description: e.Description})
		}
		serialized, err := ToPromptYAML(compact)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal known entities: %w", err)
		}
		knownSection = fmt.Sprintf(`
<KNOWN ENTITIES>
%s</KNOWN ENTITIES>

When an entity in the text refers to one of the KNOWN ENTITIES, reuse its exact name and type.
`, serialized)
	}

	var sourceLine string
	if source := stringFrom(context, "source"); source != "" {
		sourceLine = fmt.Sprintf("\n<SOURCE>\n%s\n</SOURCE>\n", source)
	}

	userPrompt := fmt.Sprintf(`
<ENTITY TYPES>
%s
</ENTITY TYPES>
%s%s
<TEXT>
%s
</TEXT>

Extract entities from the TEXT above. For each entity, determine:
1. name: the exact text used in the content
2. type: one of the ENTITY TYPES
3. description: a brief description based on the text
4. properties: any concrete attributes stated in the text (amounts, dates, roles), as key/value pairs

Guidelines:
1. Only extract entities that are explicitly mentioned.
2. Do not extract pronouns or generic nouns ("the customer", "it").
3. List each entity once.

Respond with a JSON object of the form:
{"entities": [{"name": "Alice", "type": "person", "description": "Customer who bought a laptop", "properties": {"tier": "gold"}}]}
Only return valid JSON.
`, strings.Join(typeNames, ", "), sourceLine, knownSection, content)

	logPrompts(loggerFrom(context), "extract_entities", sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

// NewExtractEntitiesVersions creates a new ExtractEntitiesVersions instance.
func NewExtractEntitiesVersions() *ExtractEntitiesVersions {
	return &ExtractEntitiesVersions{
		extractPrompt: NewPromptVersion(extractEntitiesPrompt),
	}
}

// EntitiesSchema is the response shape passed to structured-output calls.
const EntitiesSchema = `{"entities": [{"name": "string", "type": "string", "description": "string", "properties": {"key": "value"}}]}`
