package embedder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/embedder"
)

// embeddingServer answers /v1/embeddings with vectors of dims entries whose
// first component is the input index.
func embeddingServer(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		// Reverse order to check that results are sorted by index.
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			vec := make([]float32, dims)
			vec[0] = float32(idx)
			data[i] = map[string]any{"object": "embedding", "index": idx, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestNewOpenAIEmbedder(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		config   embedder.Config
		wantDims int
	}{
		{"valid API key", "test-api-key", embedder.Config{Model: "text-embedding-ada-002"}, 1536},
		{"empty API key", "", embedder.Config{Model: "text-embedding-ada-002"}, 1536},
		{"large model", "test-api-key", embedder.Config{Model: "text-embedding-3-large"}, 3072},
		{"reduced dimensions", "test-api-key", embedder.Config{Model: "text-embedding-3-large", Dimensions: 256}, 256},
		{"custom base URL", "test-api-key", embedder.Config{BaseURL: "https://api.example.com"}, 1536},
		{"unknown model", "k", embedder.Config{Model: "nomic-embed-text"}, 1536},
		{"empty model uses default", "test-api-key", embedder.Config{}, 1536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := embedder.NewOpenAIEmbedder(tt.apiKey, tt.config)
			require.NotNil(t, client)
			assert.Equal(t, tt.wantDims, client.Dimensions())
		})
	}
}

func TestEmbedderInterface(t *testing.T) {
	var _ embedder.Client = (*embedder.OpenAIEmbedder)(nil)
	var _ embedder.Client = (*embedder.EmbedEverythingClient)(nil)
	var _ embedder.Client = (*embedder.CachedClient)(nil)
}

func TestOpenAIEmbedderBatching(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, 4, &calls)
	defer srv.Close()

	client := embedder.NewOpenAIEmbedder("k", embedder.Config{
		Model:      "local-model",
		BaseURL:    srv.URL,
		BatchSize:  2,
		Dimensions: 4,
	})

	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int32(2), calls.Load())
	// Index 0 of each batch comes first despite the reversed response.
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][0])
	assert.Equal(t, float32(0), vectors[2][0])

	empty, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenAIEmbedderDimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 3, nil)
	defer srv.Close()

	client := embedder.NewOpenAIEmbedder("k", embedder.Config{
		Model:      "local-model",
		BaseURL:    srv.URL,
		Dimensions: 8,
	})
	_, err := client.EmbedSingle(context.Background(), "text")
	assert.ErrorIs(t, err, embedder.ErrDimensionMismatch)
}

func TestOpenAIEmbedderAzure(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 0}}},
		})
	}))
	defer srv.Close()

	client := embedder.NewOpenAIEmbedder("azure-key", embedder.Config{
		Model:      "embed-deploy",
		BaseURL:    srv.URL,
		APIType:    embedder.APITypeAzure,
		Dimensions: 2,
	})
	v, err := client.EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, "/openai/deployments/embed-deploy/embeddings", path)
}

func TestEmbeddingUnavailable(t *testing.T) {
	cause := embedder.ErrDimensionMismatch
	err := &embedder.EmbeddingUnavailable{EntityID: "e1", Err: cause}
	assert.ErrorIs(t, err, embedder.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, embedder.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "e1")
}
