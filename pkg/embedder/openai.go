package embedder

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Client for OpenAI, Azure OpenAI and
// OpenAI-compatible embedding endpoints.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
	// requestDims is sent with each request when the configured dimension
	// differs from the model's native one.
	requestDims int
}

// NewOpenAIEmbedder creates an embedder. Zero config fields take defaults.
func NewOpenAIEmbedder(apiKey string, config Config) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	native := DimensionsForModel(config.Model)
	requestDims := 0
	switch {
	case config.Dimensions <= 0 && native > 0:
		config.Dimensions = native
	case config.Dimensions <= 0:
		config.Dimensions = 1536
	case native > 0 && config.Dimensions != native:
		requestDims = config.Dimensions
	}

	var clientConfig openai.ClientConfig
	if config.APIType == APITypeAzure {
		clientConfig = openai.DefaultAzureConfig(apiKey, config.BaseURL)
		clientConfig.APIVersion = config.APIVersion
		if clientConfig.APIVersion == "" {
			clientConfig.APIVersion = DefaultAzureAPIVersion
		}
		deployment := config.Model
		clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		if apiKey == "" {
			apiKey = "dummy-key"
		}
		clientConfig = openai.DefaultConfig(apiKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = withAPIPath(config.BaseURL)
		}
	}

	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(clientConfig),
		config:      config,
		requestDims: requestDims,
	}
}

// Embed generates embeddings for texts, splitting them into batches of
// Config.BatchSize.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.requestDims,
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResult, len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	if err := checkDimensions(vectors, e.config.Dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, e, text)
}

// Dimensions returns the number of dimensions in the embeddings.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// withAPIPath appends /v1 to a bare host URL.
func withAPIPath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || strings.Trim(u.Path, "/") != "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/v1"
}
