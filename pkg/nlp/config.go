package nlp

import (
	"fmt"
	"net/url"
	"time"
)

// Provider selects the chat completion backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderAzure  Provider = "azure"
)

// Default configuration values
const (
	DefaultModel           = "gpt-4o-mini"
	DefaultMaxTokens       = 1000
	DefaultTemperature     = 0.1
	DefaultAzureAPIVersion = "2024-06-01"
)

// LLMConfig holds configuration for LLM clients.
type LLMConfig struct {
	Provider Provider `json:"provider"`

	// APIKey is excluded from JSON so it never reaches logs or responses.
	APIKey string `json:"-"`

	// Model is the model name, or the deployment name for Azure.
	Model string `json:"model,omitempty"`

	// BaseURL points at an OpenAI-compatible service, or the Azure endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// APIVersion is only used by Azure.
	APIVersion string `json:"api_version,omitempty"`

	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Timeout bounds a single completion request; 0 leaves it to the caller's context.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NewLLMConfig creates a new LLMConfig with default values
func NewLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:    ProviderOpenAI,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// WithAPIKey sets the API key
func (c *LLMConfig) WithAPIKey(apiKey string) *LLMConfig {
	c.APIKey = apiKey
	return c
}

// WithModel sets the model
func (c *LLMConfig) WithModel(model string) *LLMConfig {
	c.Model = model
	return c
}

// WithBaseURL sets the base URL
func (c *LLMConfig) WithBaseURL(baseURL string) *LLMConfig {
	c.BaseURL = baseURL
	return c
}

// WithAzure switches the config to an Azure OpenAI deployment.
func (c *LLMConfig) WithAzure(endpoint, deployment, apiVersion string) *LLMConfig {
	c.Provider = ProviderAzure
	c.BaseURL = endpoint
	c.Model = deployment
	c.APIVersion = apiVersion
	return c
}

// Validate checks the settings a client cannot start without.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, "":
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("%w: api key is required for openai", ErrInvalidConfig)
		}
	case ProviderAzure:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: azure endpoint is required", ErrInvalidConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: azure deployment is required", ErrInvalidConfig)
		}
		if c.APIKey == "" {
			return fmt.Errorf("%w: azure api key is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.BaseURL != "" {
		if err := validateBaseURL(c.BaseURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// validateBaseURL validates the base URL format.
func validateBaseURL(baseURL string) error {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("baseURL must include a host")
	}
	return nil
}
