package dto

import (
	"strings"

	"github.com/soundprediction/episodic/pkg/search"
	"github.com/soundprediction/episodic/pkg/types"
)

// SearchRequest is the body of the entity and combined search endpoints.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Validate performs validation on SearchRequest
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if len(r.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	if r.Limit < 0 || r.Limit > MaxSearchLimit {
		return ErrInvalidLimit
	}
	return nil
}

// RelationshipSearchRequest is the body of POST /api/v1/search/relationships.
// The query may be empty when an anchor entity is given.
type RelationshipSearchRequest struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit,omitempty"`
	AnchorEntity string `json:"anchor_entity,omitempty"`
	MaxHops      int    `json:"max_hops,omitempty"`
}

// Validate performs validation on RelationshipSearchRequest
func (r *RelationshipSearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" && strings.TrimSpace(r.AnchorEntity) == "" {
		return ErrEmptyQuery
	}
	if len(r.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	if len(r.AnchorEntity) > MaxNameLength {
		return ErrNameTooLong
	}
	if r.Limit < 0 || r.Limit > MaxSearchLimit {
		return ErrInvalidLimit
	}
	if r.MaxHops < 0 || r.MaxHops > MaxHops {
		return ErrInvalidMaxHops
	}
	return nil
}

// Options converts the request into search options; nil without an anchor.
func (r *RelationshipSearchRequest) Options() *search.RelationshipSearchOptions {
	if strings.TrimSpace(r.AnchorEntity) == "" {
		return nil
	}
	return &search.RelationshipSearchOptions{
		AnchorEntity: r.AnchorEntity,
		MaxHops:      r.MaxHops,
	}
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []types.SearchResult `json:"results"`
	Count   int                  `json:"count"`
}

// NewSearchResponse builds a response; results is never null in JSON.
func NewSearchResponse(query string, results []types.SearchResult) *SearchResponse {
	if results == nil {
		results = []types.SearchResult{}
	}
	return &SearchResponse{Query: query, Results: results, Count: len(results)}
}
