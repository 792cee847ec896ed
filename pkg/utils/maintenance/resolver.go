package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

// DefaultSimilarityThreshold is the cosine similarity a same-type entity
// must strictly exceed to be treated as the same real-world object.
const DefaultSimilarityThreshold = 0.92

// MatchKind tells how a candidate was matched to an existing entity.
type MatchKind string

const (
	MatchNone     MatchKind = ""
	MatchExact    MatchKind = "exact"
	MatchSemantic MatchKind = "semantic"
)

// ResolvedEntity is a candidate after identity resolution.
type ResolvedEntity struct {
	Entity    *types.Entity
	Created   bool
	MatchedBy MatchKind
	// NeedsEmbedding is set when Entity has no vector or its embedding text
	// changed during the merge.
	NeedsEmbedding bool
}

// Resolver maps extracted candidates onto existing entities: exact match on
// normalized name and type first, then embedding similarity within the
// same type, otherwise a new entity. It never writes to the store.
type Resolver struct {
	store    driver.VertexStore
	embedder embedder.Client
	logger   *slog.Logger

	SimilarityThreshold float64
	Now                 func() time.Time
}

// NewResolver creates a Resolver. A nil embedder disables the semantic stage.
func NewResolver(store driver.VertexStore, embedder embedder.Client) *Resolver {
	return &Resolver{
		store:               store,
		embedder:            embedder,
		logger:              slog.Default(),
		SimilarityThreshold: DefaultSimilarityThreshold,
		Now:                 func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets a custom logger for the Resolver
func (r *Resolver) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Resolve resolves candidates for one episode of groupID. Candidates that
// land on the same entity are folded into a single result, in first-seen
// order. Lookup and embedding failures never fail the call; they are
// returned as warnings (*ResolutionDegraded, *embedder.EmbeddingUnavailable)
// and the candidate is created new.
func (r *Resolver) Resolve(ctx context.Context, groupID, episodeID string, candidates []*types.Entity) ([]ResolvedEntity, []error) {
	var (
		resolved []ResolvedEntity
		warnings []error
		byID     = make(map[string]int)
	)

	add := func(res ResolvedEntity) {
		if i, ok := byID[res.Entity.ID]; ok {
			if res.NeedsEmbedding {
				resolved[i].NeedsEmbedding = true
			}
			if res.Entity != resolved[i].Entity {
				before := resolved[i].Entity.EmbeddingText()
				resolved[i].Entity.MergeFrom(res.Entity, r.Now())
				if resolved[i].Entity.EmbeddingText() != before {
					resolved[i].NeedsEmbedding = true
				}
			}
			return
		}
		byID[res.Entity.ID] = len(resolved)
		resolved = append(resolved, res)
	}

	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, &ResolutionDegraded{EntityName: candidate.Name, Err: err})
			add(r.create(groupID, episodeID, candidate, nil))
			continue
		}

		res, warns := r.resolveOne(ctx, groupID, episodeID, candidate, resolved)
		warnings = append(warnings, warns...)
		add(res)
	}
	return resolved, warnings
}

func (r *Resolver) resolveOne(ctx context.Context, groupID, episodeID string, candidate *types.Entity, pending []ResolvedEntity) (ResolvedEntity, []error) {
	observation := candidate.Clone()
	observation.EpisodeIDs = []string{episodeID}

	// Entities already resolved in this episode win over the store so that
	// two mentions never create two vertices.
	for _, p := range pending {
		if p.Entity.Type == candidate.Type && p.Entity.NormalizedName() == candidate.NormalizedName() {
			observation.ID = p.Entity.ID
			return ResolvedEntity{Entity: observation, MatchedBy: MatchExact}, nil
		}
	}

	existing, err := r.findExact(ctx, groupID, candidate)
	if err != nil {
		r.logger.Warn("Entity lookup failed, creating new entity",
			"name", candidate.Name,
			"error", err)
		return r.create(groupID, episodeID, candidate, nil), []error{&ResolutionDegraded{EntityName: candidate.Name, Err: err}}
	}
	if existing != nil {
		return r.merge(existing, observation, MatchExact), nil
	}

	if r.embedder == nil {
		return r.create(groupID, episodeID, candidate, nil), nil
	}

	vector, err := r.embedder.EmbedSingle(ctx, candidate.EmbeddingText())
	if err == nil && !utils.ValidVector(vector, r.embedder.Dimensions()) {
		err = embedder.ErrDimensionMismatch
	}
	if err != nil {
		r.logger.Warn("Candidate embedding failed, skipping semantic match",
			"name", candidate.Name,
			"error", err)
		return r.create(groupID, episodeID, candidate, nil), []error{&embedder.EmbeddingUnavailable{Err: err}}
	}

	best, err := r.findSimilar(ctx, groupID, candidate.Type, vector, pending)
	if err != nil {
		r.logger.Warn("Semantic lookup failed, creating new entity",
			"name", candidate.Name,
			"error", err)
		return r.create(groupID, episodeID, candidate, vector), []error{&ResolutionDegraded{EntityName: candidate.Name, Err: err}}
	}
	if best != nil {
		return r.merge(best, observation, MatchSemantic), nil
	}
	return r.create(groupID, episodeID, candidate, vector), nil
}

// findExact returns the oldest entity of the candidate's type and
// normalized name, or nil.
func (r *Resolver) findExact(ctx context.Context, groupID string, candidate *types.Entity) (*types.Entity, error) {
	filters := driver.GroupFilter(groupID)
	filters.Set(driver.KeyNormalizedName, types.StringValue(candidate.NormalizedName()))
	filters.Set(driver.KeyEntityType, types.StringValue(string(candidate.Type)))

	vertices, err := r.store.FindVertices(ctx, driver.LabelEntity, filters)
	if err != nil {
		return nil, err
	}

	var oldest *types.Entity
	for _, v := range vertices {
		e, err := driver.EntityFromVertex(v)
		if err != nil {
			r.logger.Warn("Skipping unreadable entity vertex", "entity_id", v.ID, "error", err)
			continue
		}
		if oldest == nil || olderThan(e, oldest) {
			oldest = e
		}
	}
	return oldest, nil
}

// findSimilar returns the same-type entity most similar to vector when the
// score is strictly above the threshold. Entities created earlier in the
// same episode are considered as well.
func (r *Resolver) findSimilar(ctx context.Context, groupID string, entityType types.EntityType, vector []float32, pending []ResolvedEntity) (*types.Entity, error) {
	filters := driver.GroupFilter(groupID)
	filters.Set(driver.KeyEntityType, types.StringValue(string(entityType)))

	vertices, err := r.store.FindVertices(ctx, driver.LabelEntity, filters)
	if err != nil {
		return nil, err
	}

	var best *types.Entity
	bestScore := r.SimilarityThreshold
	consider := func(e *types.Entity) {
		if !utils.ValidVector(e.Embedding, len(vector)) {
			return
		}
		score := utils.CosineSimilarity(vector, e.Embedding)
		if score > bestScore || (best != nil && score == bestScore && olderThan(e, best)) {
			best, bestScore = e, score
		}
	}

	for _, v := range vertices {
		e, err := driver.EntityFromVertex(v)
		if err != nil {
			continue
		}
		consider(e)
	}
	for _, p := range pending {
		if p.Entity.Type == entityType {
			consider(p.Entity)
		}
	}
	return best, nil
}

func (r *Resolver) merge(existing, observation *types.Entity, kind MatchKind) ResolvedEntity {
	before := existing.EmbeddingText()
	existing.MergeFrom(observation, r.Now())
	return ResolvedEntity{
		Entity:         existing,
		MatchedBy:      kind,
		NeedsEmbedding: !existing.HasEmbedding() || existing.EmbeddingText() != before,
	}
}

func (r *Resolver) create(groupID, episodeID string, candidate *types.Entity, vector []float32) ResolvedEntity {
	now := r.Now()
	e := candidate.Clone()
	e.ID = utils.GenerateUUID()
	e.GroupID = groupID
	e.FirstSeen = now
	e.LastUpdated = now
	e.EpisodeIDs = nil
	e.AddEpisode(episodeID)
	e.Embedding = vector
	if e.Properties == nil {
		e.Properties = types.NewProperties()
	}
	return ResolvedEntity{Entity: e, Created: true, NeedsEmbedding: len(vector) == 0}
}

// olderThan orders entities by FirstSeen, then id.
func olderThan(a, b *types.Entity) bool {
	if !a.FirstSeen.Equal(b.FirstSeen) {
		return a.FirstSeen.Before(b.FirstSeen)
	}
	return a.ID < b.ID
}
