package dto

import (
	"fmt"
	"time"

	"github.com/soundprediction/episodic"
)

// AddEpisodeRequest is the body of POST /api/v1/episodes.
type AddEpisodeRequest struct {
	Content   string                 `json:"content"`
	Source    string                 `json:"source,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	EpisodeID string                 `json:"episode_id,omitempty"`
	GroupID   string                 `json:"group_id,omitempty"`
	CreatedAt *time.Time             `json:"created_at,omitempty"`
}

// Validate performs validation on AddEpisodeRequest. Empty content is
// allowed; the episode is recorded without entities.
func (r *AddEpisodeRequest) Validate() error {
	if len(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if len(r.Source) > MaxSourceLength {
		return ErrSourceTooLong
	}
	if len(r.EpisodeID) > MaxEpisodeIDLength {
		return ErrEpisodeIDTooLong
	}
	if len(r.GroupID) > MaxGroupIDLength {
		return ErrGroupIDTooLong
	}
	if len(r.Metadata) > MaxMetadataCount {
		return ErrTooManyMetadata
	}
	return nil
}

// Options converts the request into pipeline options.
func (r *AddEpisodeRequest) Options() *episodic.AddEpisodeOptions {
	opts := &episodic.AddEpisodeOptions{
		EpisodeID: r.EpisodeID,
		GroupID:   r.GroupID,
	}
	if r.CreatedAt != nil {
		opts.CreatedAt = *r.CreatedAt
	}
	return opts
}

// Input converts the request into a batch entry.
func (r *AddEpisodeRequest) Input() episodic.EpisodeInput {
	in := episodic.EpisodeInput{
		ID:       r.EpisodeID,
		Content:  r.Content,
		Source:   r.Source,
		Metadata: r.Metadata,
		GroupID:  r.GroupID,
	}
	if r.CreatedAt != nil {
		in.CreatedAt = *r.CreatedAt
	}
	return in
}

// AddEpisodesRequest is the body of POST /api/v1/episodes/batch.
type AddEpisodesRequest struct {
	Episodes []AddEpisodeRequest `json:"episodes"`
}

// Validate performs validation on AddEpisodesRequest
func (r *AddEpisodesRequest) Validate() error {
	if len(r.Episodes) == 0 {
		return ErrEmptyEpisodes
	}
	if len(r.Episodes) > MaxBatchEpisodes {
		return ErrTooManyEpisodes
	}
	for i := range r.Episodes {
		if err := r.Episodes[i].Validate(); err != nil {
			return fmt.Errorf("episode %d: %w", i, err)
		}
	}
	return nil
}

// EpisodeResponse reports the outcome of one episode.
type EpisodeResponse struct {
	EpisodeID       string   `json:"episode_id"`
	Status          string   `json:"status"`
	State           string   `json:"state"`
	EntityIDs       []string `json:"entity_ids"`
	RelationshipIDs []string `json:"relationship_ids"`
	CreatedEntities int      `json:"created_entities"`
	Warnings        []string `json:"warnings,omitempty"`
	DurationMS      int64    `json:"duration_ms"`
}

// NewEpisodeResponse converts a pipeline result.
func NewEpisodeResponse(r *episodic.EpisodeResult) *EpisodeResponse {
	if r == nil {
		return nil
	}
	return &EpisodeResponse{
		EpisodeID:       r.EpisodeID,
		Status:          string(r.Status),
		State:           string(r.State),
		EntityIDs:       r.EntityIDs,
		RelationshipIDs: r.RelationshipIDs,
		CreatedEntities: r.CreatedEntities,
		Warnings:        r.WarningMessages(),
		DurationMS:      r.Duration.Milliseconds(),
	}
}

// BatchItem is one entry of a batch response, aligned with the request.
type BatchItem struct {
	Index   int              `json:"index"`
	Episode *EpisodeResponse `json:"episode,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// AddEpisodesResponse is the response of POST /api/v1/episodes/batch.
type AddEpisodesResponse struct {
	Results  []BatchItem `json:"results"`
	Complete int         `json:"complete"`
	Partial  int         `json:"partial"`
	Failed   int         `json:"failed"`
}
