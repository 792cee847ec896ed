package episodic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

// EpisodeInput is one episode of a bulk submission.
type EpisodeInput struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Content   string         `json:"content" yaml:"content"`
	Source    string         `json:"source,omitempty" yaml:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	GroupID   string         `json:"group_id,omitempty" yaml:"group_id,omitempty"`
}

// AddEpisodes processes episodes concurrently, at most EpisodeConcurrency at
// a time. There is no ordering between episodes. Results and errors are
// index-aligned with episodes.
func (c *Client) AddEpisodes(ctx context.Context, episodes []EpisodeInput) ([]*EpisodeResult, []error) {
	pool := utils.NewWorkerPool(c.config.EpisodeConcurrency, func(ctx context.Context, in EpisodeInput) (*EpisodeResult, error) {
		return c.AddEpisode(ctx, in.Content, in.Source, in.Metadata, &AddEpisodeOptions{
			EpisodeID: in.ID,
			CreatedAt: in.CreatedAt,
			GroupID:   in.GroupID,
		})
	})
	results, errs := pool.ProcessItems(ctx, episodes)

	partial, failed := 0, 0
	for i := range episodes {
		switch {
		case errs[i] != nil:
			failed++
		case results[i] != nil && results[i].Status == types.EpisodePartial:
			partial++
		}
	}
	c.logger.Info("Processed episode batch",
		"episodes", len(episodes),
		"partial", partial,
		"failed", failed)
	return results, errs
}

// AddEpisode processes one episode: extract entities, resolve them, extract
// and write relationships, update embeddings, and record the episode vertex
// with a MENTIONS edge to every entity it touched.
//
// Stage failures downgrade the result to partial and are listed in
// Warnings; committed writes are never rolled back. The returned error is
// non-nil only for invalid input or when the episode vertex cannot be
// written, in which case the result still carries the episode id.
func (c *Client) AddEpisode(ctx context.Context, content, source string, metadata map[string]any, options *AddEpisodeOptions) (*EpisodeResult, error) {
	start := time.Now()
	if options == nil {
		options = &AddEpisodeOptions{}
	}

	episode, err := c.newEpisode(content, source, metadata, options)
	if err != nil {
		return nil, err
	}
	release, err := c.acquire(episode.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithValue(ctx, types.ContextKeyIngestionSource, episode.Source)
	ctx = context.WithValue(ctx, types.ContextKeyEpisodeID, episode.ID)

	run := c.newRun(episode)
	run.logger.Info("Processing episode",
		"source", episode.Source,
		"content_length", len(episode.Content))

	run.process(ctx, options.KnownEntities)
	if err := run.record(ctx); err != nil {
		run.result.Duration = time.Since(start)
		run.logger.Error("Failed to record episode", "error", err)
		return run.result, err
	}
	run.archive(ctx)

	run.result.Duration = time.Since(start)
	run.logger.Info("Episode processed",
		"status", run.result.Status,
		"entities", len(run.result.EntityIDs),
		"created_entities", run.result.CreatedEntities,
		"relationships", len(run.result.RelationshipIDs),
		"warnings", len(run.result.Warnings),
		"duration", run.result.Duration)
	return run.result, nil
}

func (c *Client) newEpisode(content, source string, metadata map[string]any, options *AddEpisodeOptions) (*types.Episode, error) {
	groupID := options.GroupID
	if groupID == "" {
		groupID = c.config.GroupID
	}
	if err := utils.ValidateGroupID(groupID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEpisode, err)
	}

	meta, err := types.PropertiesFromMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidEpisode, err)
	}

	id := strings.TrimSpace(options.EpisodeID)
	if id == "" {
		id = utils.GenerateUUID()
	}
	createdAt := options.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	if strings.TrimSpace(source) == "" {
		source = DefaultSource
	}

	episode := &types.Episode{
		ID:        id,
		Content:   content,
		Source:    source,
		GroupID:   groupID,
		CreatedAt: createdAt.UTC(),
		Metadata:  meta,
	}
	if err := episode.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEpisode, err)
	}
	return episode, nil
}

// episodeRun carries one episode through the pipeline. Only the goroutine
// running AddEpisode touches it.
type episodeRun struct {
	c       *Client
	episode *types.Episode
	logger  *slog.Logger

	state       types.EpisodeState
	partial     bool
	interrupted bool
	result      *EpisodeResult

	entities       []*types.Entity
	needsEmbedding []*types.Entity
	relationships  []*types.Relationship
}

func (c *Client) newRun(episode *types.Episode) *episodeRun {
	return &episodeRun{
		c:       c,
		episode: episode,
		logger:  c.logger.With("episode_id", episode.ID, "group_id", episode.GroupID),
		state:   types.StateReceived,
		result: &EpisodeResult{
			EpisodeID:       episode.ID,
			Status:          types.EpisodeComplete,
			State:           types.StateReceived,
			EntityIDs:       []string{},
			RelationshipIDs: []string{},
		},
	}
}

func (r *episodeRun) process(ctx context.Context, known []*types.Entity) {
	candidates, err := r.c.nodeOps.ExtractEntities(ctx, r.episode.Content, r.c.config.EntityTypes, known)
	if err != nil {
		r.logger.Warn("Entity extraction failed, recording episode without entities", "error", err)
		r.degrade(err)
		return
	}
	r.advance(types.StateEntitiesExtracted)
	if r.stopped(ctx) {
		return
	}

	resolved, warnings := r.c.resolver.Resolve(ctx, r.episode.GroupID, r.episode.ID, candidates)
	for _, w := range warnings {
		r.warn(w)
	}
	r.writeEntities(ctx, resolved)
	r.advance(types.StateEntitiesResolved)
	if r.stopped(ctx) {
		return
	}

	// Relationships do not need embeddings, so both run at once.
	var (
		g         errgroup.Group
		vectors   [][]float32
		embedErrs []error
	)
	g.Go(func() error {
		vectors, embedErrs = r.computeEmbeddings(ctx)
		return nil
	})
	rels, relErr := r.c.edgeOps.ExtractRelationships(ctx, r.episode.Content, r.entities)
	_ = g.Wait()

	if relErr != nil {
		r.logger.Warn("Relationship extraction failed, keeping entities", "error", relErr)
		r.degrade(relErr)
	} else {
		r.advance(types.StateRelationshipsExtracted)
		r.writeRelationships(ctx, rels)
		r.advance(types.StateRelationshipsWritten)
	}

	r.writeEmbeddings(ctx, vectors, embedErrs)
	r.advance(types.StateEmbeddingsUpdated)
	r.stopped(ctx)
}

// stopped reports a cancelled caller context, downgrading the episode once.
func (r *episodeRun) stopped(ctx context.Context) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	if !r.interrupted {
		r.interrupted = true
		r.logger.Warn("Episode processing interrupted", "state", r.state, "error", err)
		r.degrade(fmt.Errorf("episode processing interrupted after %s: %w", r.state, err))
	}
	return true
}

func (r *episodeRun) writeEntities(ctx context.Context, resolved []maintenance.ResolvedEntity) {
	for _, res := range resolved {
		e := res.Entity
		if err := r.upsertEntity(ctx, e); err != nil {
			r.logger.Warn("Failed to write entity, leaving it out of relationship extraction",
				"entity_id", e.ID,
				"name", e.Name,
				"error", err)
			r.degrade(err)
			continue
		}

		r.entities = append(r.entities, e)
		r.result.EntityIDs = append(r.result.EntityIDs, e.ID)
		if res.Created {
			r.result.CreatedEntities++
		}
		if res.NeedsEmbedding && r.c.embedder != nil {
			r.needsEmbedding = append(r.needsEmbedding, e)
		}
		r.logger.Debug("Persisted entity",
			"entity_id", e.ID,
			"name", e.Name,
			"type", e.Type,
			"created", res.Created,
			"matched_by", res.MatchedBy)
	}
}

func (r *episodeRun) upsertEntity(ctx context.Context, e *types.Entity) error {
	v, err := driver.EntityToVertex(e)
	if err != nil {
		return &driver.GraphWriteError{Op: "upsert_vertex", ID: e.ID, Err: err}
	}
	if _, err := r.c.store.UpsertVertex(ctx, v); err != nil {
		return asGraphWriteError(err, "upsert_vertex", e.ID)
	}
	return nil
}

func (r *episodeRun) computeEmbeddings(ctx context.Context) ([][]float32, []error) {
	if len(r.needsEmbedding) == 0 {
		return nil, nil
	}
	client := r.c.embedder
	pool := utils.NewWorkerPool(r.c.config.EmbeddingConcurrency, func(ctx context.Context, e *types.Entity) ([]float32, error) {
		vector, err := client.EmbedSingle(ctx, e.EmbeddingText())
		if err == nil && !utils.ValidVector(vector, client.Dimensions()) {
			err = embedder.ErrDimensionMismatch
		}
		return vector, err
	})
	return pool.ProcessItems(ctx, r.needsEmbedding)
}

// writeEmbeddings stores computed vectors. Only the vector is written:
// episodes that merged into the same entity since resolution keep their
// episode ids and properties. An entity whose vector could not be computed
// stays without one; that does not downgrade the episode.
func (r *episodeRun) writeEmbeddings(ctx context.Context, vectors [][]float32, errs []error) {
	for i, e := range r.needsEmbedding {
		if errs[i] != nil {
			r.logger.Warn("Entity embedding unavailable, search falls back to keywords",
				"entity_id", e.ID,
				"error", errs[i])
			r.warn(&embedder.EmbeddingUnavailable{EntityID: e.ID, Err: errs[i]})
			continue
		}
		e.Embedding = vectors[i]
		if err := r.c.store.SetEmbedding(ctx, e.ID, vectors[i]); err != nil {
			err = asGraphWriteError(err, "set_embedding", e.ID)
			r.logger.Warn("Failed to store entity embedding", "entity_id", e.ID, "error", err)
			r.degrade(err)
		}
	}
}

func (r *episodeRun) writeRelationships(ctx context.Context, rels []*types.Relationship) {
	now := r.c.now()
	for _, rel := range rels {
		rel.ID = utils.GenerateUUID()
		rel.EpisodeID = r.episode.ID
		rel.GroupID = r.episode.GroupID
		rel.CreatedAt = now
		rel.ValidFrom = r.episode.CreatedAt
		if err := rel.Validate(); err != nil {
			r.logger.Warn("Dropping invalid relationship", "type", rel.Type, "error", err)
			continue
		}

		if _, err := r.c.store.UpsertEdge(ctx, driver.RelationshipToEdge(rel)); err != nil {
			err = asGraphWriteError(err, "upsert_edge", rel.ID)
			r.logger.Warn("Failed to write relationship",
				"source_id", rel.SourceID,
				"target_id", rel.TargetID,
				"type", rel.Type,
				"error", err)
			r.degrade(err)
			continue
		}
		r.relationships = append(r.relationships, rel)
		r.result.RelationshipIDs = append(r.result.RelationshipIDs, rel.ID)
	}
}

// record writes the episode vertex and its MENTIONS edges on a context
// detached from the caller, bounded by GraphTimeout, so that an abandoned
// episode is still recorded.
func (r *episodeRun) record(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.c.config.GraphTimeout)
	defer cancel()

	now := r.c.now()
	vertex := driver.EpisodeToVertex(r.episode, r.episode.TruncatedContent(r.c.config.MaxEpisodeContentLength), now)
	if _, err := r.c.store.UpsertVertex(ctx, vertex); err != nil {
		r.partial = true
		r.finish()
		return asGraphWriteError(err, "upsert_vertex", r.episode.ID)
	}

	for _, edge := range r.c.edgeOps.BuildMentionEdges(r.episode.ID, r.episode.GroupID, r.result.EntityIDs, now) {
		if _, err := r.c.store.UpsertEdge(ctx, edge); err != nil {
			err = asGraphWriteError(err, "upsert_edge", edge.To)
			r.logger.Warn("Failed to link episode to entity", "entity_id", edge.To, "error", err)
			r.degrade(err)
		}
	}

	r.advance(types.StateEpisodeRecorded)
	r.finish()
	return nil
}

func (r *episodeRun) archive(ctx context.Context) {
	w := r.c.archive
	if w == nil {
		return
	}
	err := errors.Join(
		w.WriteEpisode(ctx, r.episode, r.result.Status, r.result.State),
		w.WriteEntities(ctx, r.entities, r.episode.ID),
		w.WriteRelationships(ctx, r.relationships, r.episode.ID),
	)
	if err != nil {
		r.logger.Warn("Failed to archive episode", "error", err)
	}
}

// advance moves forward unless the episode already degraded.
func (r *episodeRun) advance(to types.EpisodeState) {
	if r.partial {
		return
	}
	if !r.state.CanTransition(to) {
		r.logger.Error("Invalid episode state transition", "from", r.state, "to", to)
		return
	}
	r.logger.Debug("Episode state", "from", r.state, "to", to)
	r.state = to
}

func (r *episodeRun) finish() {
	if r.partial && r.state.CanTransition(types.StatePartiallyCompleted) {
		r.state = types.StatePartiallyCompleted
	}
	r.result.State = r.state
	if r.partial {
		r.result.Status = types.EpisodePartial
	}
}

// warn records a warning that does not affect the status.
func (r *episodeRun) warn(err error) {
	r.result.Warnings = append(r.result.Warnings, err)
}

// degrade records a warning and marks the episode partial.
func (r *episodeRun) degrade(err error) {
	r.warn(err)
	r.partial = true
}

func asGraphWriteError(err error, op, id string) error {
	var gwe *driver.GraphWriteError
	if errors.As(err, &gwe) {
		return err
	}
	return &driver.GraphWriteError{Op: op, ID: id, Attempts: 1, Err: err}
}
