package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddEpisodeRequestValidate(t *testing.T) {
	tooMany := make(map[string]interface{}, MaxMetadataCount+1)
	for i := 0; i <= MaxMetadataCount; i++ {
		tooMany[strings.Repeat("k", i+1)] = i
	}

	tests := []struct {
		name string
		req  AddEpisodeRequest
		want error
	}{
		{"valid", AddEpisodeRequest{Content: "Alice bought Widget", Source: "crm"}, nil},
		{"empty content", AddEpisodeRequest{}, nil},
		{"content too long", AddEpisodeRequest{Content: strings.Repeat("a", MaxContentLength+1)}, ErrContentTooLong},
		{"source too long", AddEpisodeRequest{Source: strings.Repeat("s", MaxSourceLength+1)}, ErrSourceTooLong},
		{"group too long", AddEpisodeRequest{GroupID: strings.Repeat("g", MaxGroupIDLength+1)}, ErrGroupIDTooLong},
		{"episode id too long", AddEpisodeRequest{EpisodeID: strings.Repeat("e", MaxEpisodeIDLength+1)}, ErrEpisodeIDTooLong},
		{"too much metadata", AddEpisodeRequest{Metadata: tooMany}, ErrTooManyMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddEpisodesRequestValidate(t *testing.T) {
	assert.ErrorIs(t, (&AddEpisodesRequest{}).Validate(), ErrEmptyEpisodes)
	assert.ErrorIs(t, (&AddEpisodesRequest{Episodes: make([]AddEpisodeRequest, MaxBatchEpisodes+1)}).Validate(), ErrTooManyEpisodes)

	err := (&AddEpisodesRequest{Episodes: []AddEpisodeRequest{
		{Content: "ok"},
		{Source: strings.Repeat("s", MaxSourceLength+1)},
	}}).Validate()
	assert.ErrorIs(t, err, ErrSourceTooLong)
	assert.Contains(t, err.Error(), "episode 1")
}

func TestSearchRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"valid", SearchRequest{Query: "acme", Limit: 10}, nil},
		{"blank", SearchRequest{Query: "  "}, ErrEmptyQuery},
		{"long", SearchRequest{Query: strings.Repeat("q", MaxQueryLength+1)}, ErrQueryTooLong},
		{"negative limit", SearchRequest{Query: "acme", Limit: -1}, ErrInvalidLimit},
		{"large limit", SearchRequest{Query: "acme", Limit: MaxSearchLimit + 1}, ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRelationshipSearchRequest(t *testing.T) {
	anchored := RelationshipSearchRequest{AnchorEntity: "Acme", MaxHops: 2}
	assert.NoError(t, anchored.Validate())
	opts := anchored.Options()
	if assert.NotNil(t, opts) {
		assert.Equal(t, "Acme", opts.AnchorEntity)
		assert.Equal(t, 2, opts.MaxHops)
	}

	plain := RelationshipSearchRequest{Query: "purchased"}
	assert.NoError(t, plain.Validate())
	assert.Nil(t, plain.Options())

	assert.ErrorIs(t, (&RelationshipSearchRequest{}).Validate(), ErrEmptyQuery)
	assert.ErrorIs(t, (&RelationshipSearchRequest{Query: "x", MaxHops: MaxHops + 1}).Validate(), ErrInvalidMaxHops)
}
