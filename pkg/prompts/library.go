package prompts

import (
	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/types"
)

// PromptFunction builds prompt messages from a context map.
type PromptFunction func(context map[string]interface{}) ([]types.Message, error)

// PromptVersion represents a versioned prompt function.
type PromptVersion interface {
	Call(context map[string]interface{}) ([]types.Message, error)
}

// promptVersionImpl implements PromptVersion.
type promptVersionImpl struct {
	fn PromptFunction
}

// Call executes the prompt function with the given context.
func (p *promptVersionImpl) Call(context map[string]interface{}) ([]types.Message, error) {
	messages, err := p.fn(context)
	if err != nil {
		return nil, err
	}

	// Add unicode preservation instruction to system messages
	for i, msg := range messages {
		if msg.Role == nlp.RoleSystem {
			messages[i].Content += "\nDo not escape unicode characters.\n"
		}
	}

	return messages, nil
}

// NewPromptVersion creates a new PromptVersion from a function.
func NewPromptVersion(fn PromptFunction) PromptVersion {
	return &promptVersionImpl{fn: fn}
}

// Library groups every prompt used by the ingestion pipeline.
type Library interface {
	ExtractEntities() ExtractEntitiesPrompt
	ExtractRelationships() ExtractRelationshipsPrompt
}

type library struct {
	extractEntities      ExtractEntitiesPrompt
	extractRelationships ExtractRelationshipsPrompt
}

func (l *library) ExtractEntities() ExtractEntitiesPrompt { return l.extractEntities }
func (l *library) ExtractRelationships() ExtractRelationshipsPrompt {
	return l.extractRelationships
}

// NewLibrary returns the default prompt library.
func NewLibrary() Library {
	return &library{
		extractEntities:      NewExtractEntitiesVersions(),
		extractRelationships: NewExtractRelationshipsVersions(),
	}
}
