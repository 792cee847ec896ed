package embedder

import (
	"context"
	"fmt"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// EmbedEverythingClient implements the Client interface for local models
// loaded through go-embedeverything.
type EmbedEverythingClient struct {
	client *embedder.Embedder
	config *EmbedEverythingConfig
}

// EmbedEverythingConfig extends Config with EmbedEverything-specific settings.
type EmbedEverythingConfig struct {
	*Config
}

// NewEmbedEverythingClient loads config.Model. Dimensions must be set; the
// library does not report it.
func NewEmbedEverythingClient(config *EmbedEverythingConfig) (*EmbedEverythingClient, error) {
	if config == nil || config.Config == nil {
		return nil, fmt.Errorf("embedeverything config is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("embedeverything model is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	client, err := embedder.NewEmbedder(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &EmbedEverythingClient{
		client: client,
		config: config,
	}, nil
}

// Embed generates embeddings for the given texts.
func (e *EmbedEverythingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		// go-embedeverything does not support context yet
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(texts))
		embeddings, err := e.client.Embed(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		out = append(out, embeddings...)
	}
	if err := checkDimensions(out, e.config.Dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *EmbedEverythingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, e, text)
}

// Dimensions returns the number of dimensions in the embeddings.
func (e *EmbedEverythingClient) Dimensions() int {
	return e.config.Dimensions
}

// Close releases the loaded model.
func (e *EmbedEverythingClient) Close() error {
	e.client.Close()
	return nil
}
