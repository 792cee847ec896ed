package embedder

import (
	"context"
	"errors"
	"fmt"
)

// Client generates vector embeddings for text.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the length of every returned vector.
	Dimensions() int
	Close() error
}

// Provider API types.
const (
	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

// Config holds the embedding client configuration.
type Config struct {
	Model      string `json:"model"`
	BatchSize  int    `json:"batch_size"`
	Dimensions int    `json:"dimensions"`
	BaseURL    string `json:"base_url,omitempty"`
	// APIType selects "azure" deployments; anything else is OpenAI-compatible.
	APIType    string `json:"api_type,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// Defaults
const (
	DefaultModel           = "text-embedding-3-small"
	DefaultBatchSize       = 100
	DefaultAzureAPIVersion = "2024-06-01"
)

// Native dimensions of well-known embedding models.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// DimensionsForModel returns the native dimension of a known model, or 0.
func DimensionsForModel(model string) int {
	return modelDimensions[model]
}

var (
	// ErrDimensionMismatch is returned when a provider returns a vector of
	// unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingUnavailable matches every *EmbeddingUnavailable.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmptyResult is returned when the provider returns fewer vectors than texts.
	ErrEmptyResult = errors.New("no embeddings returned")
)

// EmbeddingUnavailable records that an entity could not be embedded. The
// entity is kept without a vector.
type EmbeddingUnavailable struct {
	EntityID string
	Err      error
}

func (e *EmbeddingUnavailable) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("embedding unavailable: %v", e.Err)
	}
	return fmt.Sprintf("embedding unavailable for entity %s: %v", e.EntityID, e.Err)
}

func (e *EmbeddingUnavailable) Unwrap() error { return e.Err }

func (e *EmbeddingUnavailable) Is(target error) bool {
	return target == ErrEmbeddingUnavailable
}

// checkDimensions verifies every vector has want entries. want <= 0 skips
// the check.
func checkDimensions(vectors [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}

// single embeds one text through c.Embed.
func single(ctx context.Context, c Client, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyResult
	}
	return vectors[0], nil
}
