package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

const testGroup = "sales"

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// presetEmbedder returns fixed vectors per text and zero vectors otherwise.
type presetEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (p *presetEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := p.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *presetEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (p *presetEmbedder) Dimensions() int { return 4 }

func (p *presetEmbedder) Close() error { return nil }

type graphBuilder struct {
	t     *testing.T
	store *driver.MemoryDriver
}

func newGraph(t *testing.T) *graphBuilder {
	return &graphBuilder{t: t, store: driver.NewMemoryDriver()}
}

func (g *graphBuilder) entity(id, name string, et types.EntityType, desc string, updated time.Time, vec []float32) *graphBuilder {
	v, err := driver.EntityToVertex(&types.Entity{
		ID: id, Name: name, Type: et, Description: desc, GroupID: testGroup,
		FirstSeen: t0, LastUpdated: updated, Embedding: vec,
	})
	require.NoError(g.t, err)
	_, err = g.store.UpsertVertex(context.Background(), v)
	require.NoError(g.t, err)
	return g
}

func (g *graphBuilder) rel(id, from, to, relType string, conf float64, created time.Time) *graphBuilder {
	_, err := g.store.UpsertEdge(context.Background(), driver.RelationshipToEdge(&types.Relationship{
		ID: id, SourceID: from, TargetID: to, Type: relType, Confidence: conf,
		GroupID: testGroup, CreatedAt: created, ValidFrom: created,
	}))
	require.NoError(g.t, err)
	return g
}

func entityNames(results []types.SearchResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Entity.Name)
	}
	return names
}

func relIDs(results []types.SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Relationship.ID)
	}
	return ids
}

func TestSearchEntitiesKeyword(t *testing.T) {
	g := newGraph(t).
		entity("1", "Acme Corp", types.EntityOrganization, "", t0, nil).
		entity("2", "Acme", types.EntityOrganization, "", t0, nil).
		entity("3", "Bob", types.EntityPerson, "Works at ACME", t0, nil).
		entity("4", "Carol", types.EntityPerson, "", t0, nil)
	s := NewSearcher(g.store, nil, DefaultConfig())

	results, err := s.SearchEntities(context.Background(), "acme", 0, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Acme Corp", "Bob"}, entityNames(results))
	assert.Greater(t, results[0].Score, 1.0)
	assert.Equal(t, NameContainsScore, results[1].Score)
	assert.Equal(t, DescriptionMatchScore, results[2].Score)
	for _, r := range results {
		assert.Equal(t, KindEntity, r.Kind)
	}

	for _, q := range []string{"", "   "} {
		results, err := s.SearchEntities(context.Background(), q, 10, testGroup)
		require.NoError(t, err)
		assert.Empty(t, results)
	}

	results, err = s.SearchEntities(context.Background(), "acme", 10, "other-group")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEntitiesSemantic(t *testing.T) {
	g := newGraph(t).
		entity("1", "Notebook", types.EntityProduct, "", t0, []float32{0.9, 0.1, 0, 0}).
		entity("2", "Banana", types.EntityProduct, "", t0, []float32{0, 1, 0, 0}).
		entity("3", "Laptop", types.EntityProduct, "", t0, []float32{0, 0, 1, 0}).
		entity("4", "Tablet", types.EntityProduct, "", t0, nil)
	emb := &presetEmbedder{vectors: map[string][]float32{"laptop": {1, 0, 0, 0}}}
	s := NewSearcher(g.store, emb, DefaultConfig())

	results, err := s.SearchEntities(context.Background(), "laptop", 10, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptop", "Notebook"}, entityNames(results),
		"exact name beats semantic, weak semantic and no evidence are excluded")
	assert.InDelta(t, 0.9939, results[1].Score, 1e-3)
}

func TestSearchEntitiesEmbeddingFailure(t *testing.T) {
	g := newGraph(t).
		entity("1", "Notebook", types.EntityProduct, "", t0, []float32{1, 0, 0, 0}).
		entity("2", "Laptop Pro", types.EntityProduct, "", t0, []float32{0, 1, 0, 0})
	emb := &presetEmbedder{err: errors.New("embedding service down")}
	s := NewSearcher(g.store, emb, DefaultConfig())

	results, err := s.SearchEntities(context.Background(), "laptop", 10, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptop Pro"}, entityNames(results))
}

func TestSearchEntitiesTiesAndLimits(t *testing.T) {
	g := newGraph(t)
	for i := 0; i < 12; i++ {
		g.entity(fmt.Sprintf("id-%02d", i), fmt.Sprintf("Item %d", i), types.EntityProduct, "", t0.Add(time.Duration(i)*time.Hour), nil)
	}

	s := NewSearcher(g.store, nil, DefaultConfig())
	results, err := s.SearchEntities(context.Background(), "item", 0, testGroup)
	require.NoError(t, err)
	require.Len(t, results, DefaultLimit)
	assert.Equal(t, "Item 11", results[0].Entity.Name, "ties go to the most recently updated")
	assert.Equal(t, "Item 2", results[9].Entity.Name)

	capped := NewSearcher(g.store, nil, Config{MaxLimit: 5})
	results, err = capped.SearchEntities(context.Background(), "item", 50, testGroup)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearchRelationships(t *testing.T) {
	g := newGraph(t).
		entity("alice", "Alice", types.EntityPerson, "", t0, nil).
		entity("bob", "Bob", types.EntityPerson, "", t0, nil).
		entity("laptop", "Laptop", types.EntityProduct, "", t0, nil).
		entity("acme", "Acme", types.EntityOrganization, "", t0, nil).
		rel("r1", "alice", "laptop", "purchased", 0.9, t0).
		rel("r2", "bob", "acme", "works_for", 0.7, t0).
		rel("r3", "alice", "bob", "related_to", 0.7, t0.Add(time.Hour))
	s := NewSearcher(g.store, nil, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by source name", "ALICE", []string{"r1", "r3"}},
		{"by target name", "acme", []string{"r2"}},
		{"by type", "works", []string{"r2"}},
		{"confidence then recency", "b", []string{"r3", "r2"}},
		{"no match", "refund", []string{}},
		{"empty", "  ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchRelationships(ctx, tt.query, 10, nil, testGroup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relIDs(results))
		})
	}

	results, err := s.SearchRelationships(ctx, "alice", 10, nil, testGroup)
	require.NoError(t, err)
	assert.Equal(t, "Alice", results[0].Relationship.SourceName)
	assert.Equal(t, "Laptop", results[0].Relationship.TargetName)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, KindRelationship, results[0].Kind)
}

func TestSearchRelationshipsAnchored(t *testing.T) {
	g := newGraph(t).
		entity("a", "Alpha", types.EntityOrganization, "", t0, nil).
		entity("b", "Beta", types.EntityOrganization, "", t0, nil).
		entity("c", "Gamma", types.EntityOrganization, "", t0, nil).
		entity("d", "Delta", types.EntityOrganization, "", t0, nil).
		rel("ab", "a", "b", "partner_of", 0.9, t0).
		rel("bc", "b", "c", "partner_of", 0.8, t0).
		rel("cd", "c", "d", "partner_of", 0.7, t0)
	s := NewSearcher(g.store, nil, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		opts *RelationshipSearchOptions
		want []string
	}{
		{"one hop", &RelationshipSearchOptions{AnchorEntity: "Alpha", MaxHops: 1}, []string{"ab"}},
		{"default hops", &RelationshipSearchOptions{AnchorEntity: "Alpha"}, []string{"ab", "bc"}},
		{"capped hops", &RelationshipSearchOptions{AnchorEntity: "Alpha", MaxHops: 50}, []string{"ab", "bc", "cd"}},
		{"unknown anchor", &RelationshipSearchOptions{AnchorEntity: "Omega"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchRelationships(ctx, "", 10, tt.opts, testGroup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relIDs(results))
		})
	}

	results, err := s.SearchRelationships(ctx, "gamma", 10, &RelationshipSearchOptions{AnchorEntity: "Delta", MaxHops: 1}, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"cd"}, relIDs(results))
}

func TestSearchCombined(t *testing.T) {
	g := newGraph(t).
		entity("alice", "Alice", types.EntityPerson, "", t0, nil).
		entity("alicia", "Alicia", types.EntityPerson, "", t0, nil).
		entity("ali", "Ali Baba", types.EntityPerson, "", t0, nil).
		entity("laptop", "Laptop", types.EntityProduct, "", t0, nil).
		rel("r1", "alice", "laptop", "purchased", 0.9, t0).
		rel("r2", "alicia", "laptop", "purchased", 0.8, t0).
		rel("r3", "ali", "laptop", "purchased", 0.7, t0)
	s := NewSearcher(g.store, nil, DefaultConfig())

	results, err := s.Search(context.Background(), "ali", 4, testGroup)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, KindEntity, results[0].Kind)
	assert.Equal(t, KindEntity, results[1].Kind)
	assert.Equal(t, KindRelationship, results[2].Kind)
	assert.Equal(t, "r1", results[2].Relationship.ID)
	assert.Equal(t, KindRelationship, results[3].Kind)

	results, err = s.Search(context.Background(), "", 4, testGroup)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNeighbors(t *testing.T) {
	g := newGraph(t).
		entity("hub", "Hub", types.EntityOrganization, "", t0, nil).
		entity("x", "Xeno", types.EntityPerson, "", t0, nil).
		entity("y", "Yuri", types.EntityPerson, "", t0, nil).
		entity("z", "Zara", types.EntityPerson, "", t0, nil).
		entity("far", "Faraway", types.EntityPerson, "", t0, nil).
		rel("hx", "hub", "x", "employs", 0.9, t0).
		rel("hy", "hub", "y", "employs", 0.9, t0).
		rel("hz", "hub", "z", "employs", 0.9, t0).
		rel("xf", "x", "far", "knows", 0.5, t0)
	ctx := context.Background()

	s := NewSearcher(g.store, nil, DefaultConfig())
	sub, err := s.Neighbors(ctx, "hub", 1, testGroup)
	require.NoError(t, err)
	assert.Equal(t, "Hub", sub.Center)
	require.NotNil(t, sub.CenterEntity)
	assert.Equal(t, "hub", sub.CenterEntity.ID)
	assert.Len(t, sub.Relationships, 3)
	assert.Len(t, sub.Entities, 3)
	assert.Contains(t, sub.Paths, []string{"hx"})

	sub, err = s.Neighbors(ctx, "hub", 0, testGroup)
	require.NoError(t, err)
	assert.Len(t, sub.Relationships, 4, "default depth reaches two hops")
	assert.Contains(t, sub.Paths, []string{"hx", "xf"})
	for _, r := range sub.Relationships {
		assert.NotEmpty(t, r.SourceName)
		assert.NotEmpty(t, r.TargetName)
	}

	limited := NewSearcher(g.store, nil, Config{NeighborLimit: 2})
	sub, err = limited.Neighbors(ctx, "hub", 2, testGroup)
	require.NoError(t, err)
	assert.Len(t, sub.Relationships, 2)
	assert.Len(t, sub.Entities, 2)
	for _, p := range sub.Paths {
		assert.Len(t, p, 1)
	}

	sub, err = s.Neighbors(ctx, "nobody", 2, testGroup)
	require.NoError(t, err)
	assert.Equal(t, "nobody", sub.Center)
	assert.Nil(t, sub.CenterEntity)
	assert.Empty(t, sub.Entities)
	assert.Empty(t, sub.Relationships)
	assert.Empty(t, sub.Paths)
}
