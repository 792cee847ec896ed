package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/config"
	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

// scriptedLLM answers entity prompts with two entities and relationship
// prompts with one purchase.
type scriptedLLM struct{}

func (scriptedLLM) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return scriptedLLM{}.ChatWithStructuredOutput(ctx, messages, nil)
}

func (scriptedLLM) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	if strings.Contains(messages[0].Content, "relationships between entities") {
		return &types.Response{Content: `{"relationships":[{"source":"Alice","target":"Widget","type":"purchased","confidence":0.9}]}`}, nil
	}
	return &types.Response{Content: `{"entities":[{"name":"Alice","type":"person"},{"name":"Widget","type":"product"}]}`}, nil
}

func (scriptedLLM) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080, Mode: gin.TestMode},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	client, err := episodic.NewClient(driver.NewMemoryDriver(), scriptedLLM{}, nil, episodic.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	s := New(testConfig(), client, nil)
	s.Setup()
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 && method != http.MethodOptions {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestSetup(t *testing.T) {
	s := New(testConfig(), nil, nil)
	assert.Nil(t, s.Router())

	s.Setup()
	require.NotNil(t, s.Router())
	require.NotNil(t, s.server)
	assert.Equal(t, "localhost:8080", s.server.Addr)
}

func TestRoutesRegistered(t *testing.T) {
	s := New(testConfig(), nil, nil)
	s.Setup()

	registered := make(map[string]bool)
	for _, r := range s.Router().Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /health/detailed",
		"GET /ready",
		"GET /live",
		"POST /api/v1/episodes",
		"POST /api/v1/episodes/batch",
		"POST /api/v1/search",
		"POST /api/v1/search/entities",
		"POST /api/v1/search/relationships",
		"GET /api/v1/entities/:name/neighbors",
		"GET /api/v1/stats",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := New(testConfig(), nil, nil)
	s.Setup()

	w, _ := do(t, s, http.MethodOptions, "/api/v1/episodes", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIngestAndQuery(t *testing.T) {
	s := newTestServer(t)

	w, body := do(t, s, http.MethodPost, "/api/v1/episodes", map[string]interface{}{
		"content":    "Alice bought Widget",
		"episode_id": "ep-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ep-1", body["episode_id"])
	assert.Equal(t, "complete", body["status"])
	assert.Len(t, body["entity_ids"], 2)
	assert.Len(t, body["relationship_ids"], 1)

	w, body = do(t, s, http.MethodPost, "/api/v1/search/entities", map[string]interface{}{"query": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = do(t, s, http.MethodGet, "/api/v1/entities/Alice/neighbors?max_hops=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["relationships"], 1)

	w, body = do(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["entity_count"])
	assert.EqualValues(t, 1, body["relationship_count"])
	assert.EqualValues(t, 1, body["episode_count"])

	w, body = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestIngestRejectsOversizedBatch(t *testing.T) {
	s := newTestServer(t)

	episodes := make([]map[string]interface{}, 101)
	for i := range episodes {
		episodes[i] = map[string]interface{}{"content": "x"}
	}
	w, body := do(t, s, http.MethodPost, "/api/v1/episodes/batch", map[string]interface{}{"episodes": episodes})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", body["error"])
}
