package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/episodic/pkg/types"
)

// OpenAIClient implements Client for OpenAI, Azure OpenAI and
// OpenAI-compatible services.
type OpenAIClient struct {
	client *openai.Client
	config *LLMConfig
}

// NewOpenAIClient creates a chat client from config.
func NewOpenAIClient(config *LLMConfig) (*OpenAIClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	var clientConfig openai.ClientConfig
	switch config.Provider {
	case ProviderAzure:
		clientConfig = openai.DefaultAzureConfig(config.APIKey, config.BaseURL)
		if config.APIVersion != "" {
			clientConfig.APIVersion = config.APIVersion
		} else {
			clientConfig.APIVersion = DefaultAzureAPIVersion
		}
		deployment := config.Model
		clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	default:
		apiKey := config.APIKey
		if apiKey == "" {
			// Some local OpenAI-compatible services don't check the key.
			apiKey = "dummy-key"
		}
		clientConfig = openai.DefaultConfig(apiKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
			if !hasAPIPath(config.BaseURL) {
				clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/") + "/v1"
			}
		}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.complete(ctx, c.buildChatRequest(messages, nil, false))
}

// ChatWithStructuredOutput requests a JSON object reply. A string schema is
// passed through as-is, anything else is rendered as a JSON example.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.complete(ctx, c.buildChatRequest(messages, schema, true))
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*types.Response, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError("no choices returned from chat completion")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, NewRefusalError(choice.Message.Refusal)
	}
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, NewRefusalError("completion stopped by content filter")
	}

	response := &types.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}
	// Some OpenAI-compatible services don't report usage.
	if resp.Usage.TotalTokens > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if strings.TrimSpace(response.Content) == "" {
		return nil, NewEmptyResponseError("chat completion returned no content")
	}
	return response, nil
}

func (c *OpenAIClient) buildChatRequest(messages []types.Message, schema any, structured bool) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if structured {
		// JSON mode requires the word "JSON" somewhere in the conversation.
		instruction := "Respond with valid JSON only."
		if desc := describeSchema(schema); desc != "" {
			instruction = "Respond with valid JSON only, shaped like this example:\n" + desc
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    string(RoleSystem),
			Content: instruction,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    openaiMessages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if structured {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func describeSchema(schema any) string {
	switch s := schema.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.RawMessage:
		return string(s)
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(b)
}

// classifyError maps go-openai errors onto this package's error types.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return NewRateLimitError(apiErr.Message)
		}
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return NewRateLimitError(reqErr.Error())
		}
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

// StatusError carries the HTTP status of a failed completion request.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode is read by the retry classifier.
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// hasAPIPath checks if the base URL already includes an API path component.
func hasAPIPath(baseURL string) bool {
	trimmed := strings.TrimRight(baseURL, "/")
	return strings.HasSuffix(trimmed, "/v1") || strings.HasSuffix(trimmed, "/api")
}
