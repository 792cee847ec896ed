package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

func resultFor(id string, status types.EpisodeStatus) *episodic.EpisodeResult {
	state := types.StateEpisodeRecorded
	var warnings []error
	if status == types.EpisodePartial {
		state = types.StatePartiallyCompleted
		warnings = []error{fmt.Errorf("%w: llm timeout", episodic.ErrExtraction)}
	}
	return &episodic.EpisodeResult{
		EpisodeID:       id,
		Status:          status,
		State:           state,
		EntityIDs:       []string{"e1"},
		RelationshipIDs: []string{},
		Warnings:        warnings,
		Duration:        25 * time.Millisecond,
	}
}

func TestAddEpisode(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		result *episodic.EpisodeResult
		err    error
		code   int
		errKey string
	}{
		{"complete", map[string]interface{}{"content": "Alice bought Widget", "episode_id": "ep-1"}, resultFor("ep-1", types.EpisodeComplete), nil, http.StatusOK, ""},
		{"partial", map[string]interface{}{"content": "Alice bought Widget"}, resultFor("ep-2", types.EpisodePartial), nil, http.StatusMultiStatus, ""},
		{"malformed json", `{"content":`, nil, nil, http.StatusBadRequest, "invalid_request"},
		{"invalid episode", map[string]interface{}{"content": "x", "group_id": "bad group"}, nil, fmt.Errorf("%w: group", episodic.ErrInvalidEpisode), http.StatusBadRequest, "invalid_episode"},
		{"in flight", map[string]interface{}{"content": "x", "episode_id": "ep-1"}, nil, episodic.ErrEpisodeInFlight, http.StatusConflict, "episode_in_flight"},
		{"closed", map[string]interface{}{"content": "x"}, nil, episodic.ErrClientClosed, http.StatusServiceUnavailable, "unavailable"},
		{"episode not recorded", map[string]interface{}{"content": "x"}, resultFor("ep-3", types.EpisodePartial), &driver.GraphWriteError{Op: "upsert_vertex", ID: "ep-3"}, http.StatusBadGateway, "episode_not_recorded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOpts *episodic.AddEpisodeOptions
			client := &stubClient{addEpisode: func(content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error) {
				gotOpts = opts
				return tt.result, tt.err
			}}
			h := NewEpisodeHandler(client, nil)

			w, body := serve(t, http.MethodPost, "/api/v1/episodes", h.AddEpisode, "/api/v1/episodes", tt.body)
			assert.Equal(t, tt.code, w.Code)
			if tt.errKey != "" {
				assert.Equal(t, tt.errKey, body["error"])
				return
			}
			require.NotNil(t, gotOpts)
			assert.Equal(t, tt.result.EpisodeID, body["episode_id"])
			assert.Equal(t, string(tt.result.Status), body["status"])
			assert.EqualValues(t, 25, body["duration_ms"])
		})
	}
}

func TestAddEpisodePassesOptions(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var gotSource string
	var gotOpts *episodic.AddEpisodeOptions
	var gotMeta map[string]any
	client := &stubClient{addEpisode: func(content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error) {
		gotSource, gotOpts, gotMeta = source, opts, metadata
		return resultFor("ep-1", types.EpisodeComplete), nil
	}}

	body := map[string]interface{}{
		"content":    "Alice bought Widget",
		"source":     "crm",
		"episode_id": "ep-1",
		"group_id":   "tenant-a",
		"created_at": created.Format(time.RFC3339),
		"metadata":   map[string]interface{}{"channel": "email"},
	}
	w, _ := serve(t, http.MethodPost, "/api/v1/episodes", NewEpisodeHandler(client, nil).AddEpisode, "/api/v1/episodes", body)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "crm", gotSource)
	assert.Equal(t, "ep-1", gotOpts.EpisodeID)
	assert.Equal(t, "tenant-a", gotOpts.GroupID)
	assert.True(t, created.Equal(gotOpts.CreatedAt))
	assert.Equal(t, "email", gotMeta["channel"])
}

func TestAddEpisodes(t *testing.T) {
	client := &stubClient{addEpisode: func(content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error) {
		switch content {
		case "bad":
			return nil, episodic.ErrInvalidEpisode
		case "slow":
			return resultFor(opts.EpisodeID, types.EpisodePartial), nil
		}
		return resultFor(opts.EpisodeID, types.EpisodeComplete), nil
	}}
	h := NewEpisodeHandler(client, nil)

	body := map[string]interface{}{"episodes": []map[string]interface{}{
		{"content": "ok", "episode_id": "ep-1"},
		{"content": "slow", "episode_id": "ep-2"},
		{"content": "bad", "episode_id": "ep-3"},
	}}
	w, resp := serve(t, http.MethodPost, "/api/v1/episodes/batch", h.AddEpisodes, "/api/v1/episodes/batch", body)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	assert.EqualValues(t, 1, resp["complete"])
	assert.EqualValues(t, 1, resp["partial"])
	assert.EqualValues(t, 1, resp["failed"])

	results := resp["results"].([]interface{})
	require.Len(t, results, 3)
	third := results[2].(map[string]interface{})
	assert.EqualValues(t, 2, third["index"])
	assert.Contains(t, third["error"], "invalid episode")

	w, _ = serve(t, http.MethodPost, "/api/v1/episodes/batch", h.AddEpisodes, "/api/v1/episodes/batch", map[string]interface{}{"episodes": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddEpisodesAllComplete(t *testing.T) {
	client := &stubClient{addEpisode: func(content, source string, metadata map[string]any, opts *episodic.AddEpisodeOptions) (*episodic.EpisodeResult, error) {
		return resultFor(opts.EpisodeID, types.EpisodeComplete), nil
	}}
	body := map[string]interface{}{"episodes": []map[string]interface{}{{"content": "a"}, {"content": "b"}}}
	w, resp := serve(t, http.MethodPost, "/api/v1/episodes/batch", NewEpisodeHandler(client, nil).AddEpisodes, "/api/v1/episodes/batch", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp["complete"])
}
