package nlp

import (
	"context"

	"github.com/soundprediction/episodic/pkg/types"
)

// Client defines the interface for language model operations.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []types.Message) (*types.Response, error)

	// ChatWithStructuredOutput asks for a JSON reply. schema is a Go value
	// whose shape is described to the model; it is not filled in.
	ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error)

	// Close cleans up any resources.
	Close() error
}

const (
	RoleSystem    types.Role = "system"
	RoleUser      types.Role = "user"
	RoleAssistant types.Role = "assistant"
)

// NewMessage creates a new message with the specified role and content.
func NewMessage(role types.Role, content string) types.Message {
	return types.Message{
		Role:    role,
		Content: content,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) types.Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) types.Message {
	return NewMessage(RoleUser, content)
}
