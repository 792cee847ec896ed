package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/search"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubClient implements episodic.Episodic with canned answers.
type stubClient struct {
	addEpisode func(content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error)
	results    []types.SearchResult
	searchErr  error
	subgraph   *types.Subgraph
	stats      *types.GraphStatistics
	healthErr  error

	lastQuery   string
	lastLimit   int
	lastOptions *search.RelationshipSearchOptions
	lastName    string
	lastHops    int
}

var _ episodic.Episodic = (*stubClient)(nil)

func (s *stubClient) AddEpisode(ctx context.Context, content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error) {
	return s.addEpisode(content, source, metadata, opts)
}

func (s *stubClient) AddEpisodes(ctx context.Context, episodes []episodic.EpisodeInput) ([]*episodic.EpisodeResult, []error) {
	results := make([]*episodic.EpisodeResult, len(episodes))
	errs := make([]error, len(episodes))
	for i, in := range episodes {
		results[i], errs[i] = s.addEpisode(in.Content, in.Source, in.Metadata, &episodic.AddEpisodeOptions{EpisodeID: in.ID})
	}
	return results, errs
}

func (s *stubClient) SearchEntities(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	s.lastQuery, s.lastLimit = query, limit
	return s.results, s.searchErr
}

func (s *stubClient) SearchRelationships(ctx context.Context, query string, limit int, options *search.RelationshipSearchOptions) ([]types.SearchResult, error) {
	s.lastQuery, s.lastLimit, s.lastOptions = query, limit, options
	return s.results, s.searchErr
}

func (s *stubClient) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	s.lastQuery, s.lastLimit = query, limit
	return s.results, s.searchErr
}

func (s *stubClient) GetEntityNeighbors(ctx context.Context, name string, maxHops int) (*types.Subgraph, error) {
	s.lastName, s.lastHops = name, maxHops
	return s.subgraph, s.searchErr
}

func (s *stubClient) GetStatistics(ctx context.Context) (*types.GraphStatistics, error) {
	if s.stats == nil {
		return &types.GraphStatistics{}, nil
	}
	return s.stats, nil
}

func (s *stubClient) CreateIndices(ctx context.Context) error { return nil }

func (s *stubClient) CompactDuplicates(ctx context.Context) (*maintenance.CompactionReport, error) {
	return &maintenance.CompactionReport{}, nil
}

func (s *stubClient) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *stubClient) Close(ctx context.Context) error       { return nil }

func serve(t *testing.T, method, path string, handler gin.HandlerFunc, route string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := gin.New()
	r.Handle(method, route, handler)

	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

