package prompts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/types"
)

// DefaultRelationshipTypes are suggested to the model; other snake_case
// types are accepted.
var DefaultRelationshipTypes = []string{
	"related_to",
	"works_for",
	"located_in",
	"created_by",
	"belongs_to",
	"happened_at",
	"purchased",
	"reported",
}

// ExtractRelationshipsPrompt defines the interface for relationship extraction prompts.
type ExtractRelationshipsPrompt interface {
	Extract() PromptVersion
}

// ExtractRelationshipsVersions holds all versions of relationship extraction prompts.
type ExtractRelationshipsVersions struct {
	extractPrompt PromptVersion
}

func (e *ExtractRelationshipsVersions) Extract() PromptVersion { return e.extractPrompt }

// extractRelationshipsPrompt asks for directed relationships among the
// resolved entities of an episode.
//
// Context keys:
//   - episode_content (string, required)
//   - entities ([]*types.Entity, required): resolved entities with ids
//   - relationship_types ([]string): suggested types
//   - logger (*slog.Logger)
func extractRelationshipsPrompt(context map[string]interface{}) ([]types.Message, error) {
	sysPrompt := `You are an expert fact extractor that identifies relationships between entities in business events.`

	content := stringFrom(context, "episode_content")
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("episode_content is required")
	}
	entities, _ := context["entities"].([]*types.Entity)
	if len(entities) == 0 {
		return nil, errors.New("entities are required")
	}
	relTypes, _ := context["relationship_types"].([]string)
	if len(relTypes) == 0 {
		relTypes = DefaultRelationshipTypes
	}

	userPrompt := fmt.Sprintf(`
<ENTITIES>
id | name | type
%s</ENTITIES>

<TEXT>
%s
</TEXT>

Given the TEXT and ENTITIES above, identify relationships between the entities. For each relationship, determine:
1. source: the id of the source entity (must be from the ENTITIES list)
2. target: the id of the target entity (must be from the ENTITIES list)
3. type: a snake_case relationship type such as %s
4. description: a short statement of the relationship as described in the text
5. confidence: a number from 0.0 to 1.0

Guidelines:
1. Only extract relationships supported by the TEXT.
2. Never relate an entity to itself.
3. Direction matters: "Alice purchased Laptop" has source Alice and target Laptop.

Respond with a JSON object of the form:
{"relationships": [{"source": "<id>", "target": "<id>", "type": "purchased", "description": "Alice bought the laptop", "confidence": 0.9}]}
Only return valid JSON.
`, ToPromptTable(entities), content, strings.Join(relTypes, ", "))

	logPrompts(loggerFrom(context), "extract_relationships", sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

// NewExtractRelationshipsVersions creates a new ExtractRelationshipsVersions instance.
func NewExtractRelationshipsVersions() *ExtractRelationshipsVersions {
	return &ExtractRelationshipsVersions{
		extractPrompt: NewPromptVersion(extractRelationshipsPrompt),
	}
}

// RelationshipsSchema is the response shape passed to structured-output calls.
const RelationshipsSchema = `{"relationships": [{"source": "string", "target": "string", "type": "string", "description": "string", "confidence": 0.5}]}`
