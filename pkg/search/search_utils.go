package search

import (
	"sort"
	"strings"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

const (
	ExactMatchScore       = 1.0
	NameContainsScore     = 0.75
	DescriptionMatchScore = 0.5

	// exactMatchBoost lifts exact name hits above any cosine score.
	exactMatchBoost = 1e-6
)

// keywordScore returns the keyword evidence of e for query, or 0.
func keywordScore(e *types.Entity, query string) float64 {
	normalized := types.NormalizeName(query)
	if normalized == "" {
		return 0
	}
	name := e.NormalizedName()
	switch {
	case name == normalized:
		return ExactMatchScore
	case strings.Contains(name, normalized):
		return NameContainsScore
	case strings.Contains(types.NormalizeName(e.Description), normalized):
		return DescriptionMatchScore
	}
	return 0
}

// scoreEntity combines semantic and keyword evidence. ok is false when the
// entity should not be returned.
func (s *Searcher) scoreEntity(e *types.Entity, query string, queryVector []float32) (float64, bool) {
	keyword := keywordScore(e, query)
	if keyword == ExactMatchScore {
		return ExactMatchScore + exactMatchBoost, true
	}

	if queryVector != nil && utils.ValidVector(e.Embedding, len(queryVector)) {
		semantic := utils.CosineSimilarity(queryVector, e.Embedding)
		if semantic >= s.config.MinSemanticScore {
			return max(semantic, keyword), true
		}
	}
	if keyword > 0 {
		return keyword, true
	}
	return 0, false
}

// recentFirst breaks score ties: most recently updated, then id.
func recentFirst(a, b *types.Entity) bool {
	if !a.LastUpdated.Equal(b.LastUpdated) {
		return a.LastUpdated.After(b.LastUpdated)
	}
	return a.ID < b.ID
}

func matchesRelationship(r *types.Relationship, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{r.Type, r.Description, r.SourceName, r.TargetName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// sortRelationships orders by confidence, then newest first, then id.
func sortRelationships(rels []*types.Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
