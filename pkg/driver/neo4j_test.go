package driver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

// TestNeo4jDriverRoundTrip needs a live database; set NEO4J_URI to run it.
func TestNeo4jDriverRoundTrip(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set, skipping Neo4j integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := NewNeo4jDriver(uri, os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"), os.Getenv("NEO4J_DATABASE"))
	require.NoError(t, err)
	defer d.Close(ctx)

	require.NoError(t, d.HealthCheck(ctx))
	require.NoError(t, d.CreateIndices(ctx))

	group := "test_" + utils.GenerateUUID()[:8]
	now := time.Now().UTC().Truncate(time.Millisecond)
	a := &types.Entity{ID: utils.GenerateUUID(), Name: "Alice", Type: types.EntityPerson, GroupID: group, FirstSeen: now, LastUpdated: now, Embedding: []float32{1, 0}}
	b := &types.Entity{ID: utils.GenerateUUID(), Name: "Acme", Type: types.EntityOrganization, GroupID: group, FirstSeen: now, LastUpdated: now}

	for _, e := range []*types.Entity{a, b} {
		v, err := EntityToVertex(e)
		require.NoError(t, err)
		_, err = d.UpsertVertex(ctx, v)
		require.NoError(t, err)
		defer d.DeleteVertex(ctx, e.ID)
	}

	_, err = d.UpsertEdge(ctx, RelationshipToEdge(&types.Relationship{
		SourceID: a.ID, TargetID: b.ID, Type: "works_at", Confidence: 0.7, GroupID: group, CreatedAt: now,
	}))
	require.NoError(t, err)

	filters := GroupFilter(group)
	filters.Set(KeyNormalizedName, types.StringValue("alice"))
	found, err := d.FindVertices(ctx, LabelEntity, filters)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []float32{1, 0}, found[0].Embedding)

	require.NoError(t, d.SetEmbedding(ctx, b.ID, []float32{0, 1}))
	acme, err := d.GetVertex(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, acme.Embedding)
	assert.Equal(t, "Acme", acme.Properties.GetString(KeyName))
	assert.ErrorIs(t, d.SetEmbedding(ctx, utils.GenerateUUID(), []float32{0, 1}), ErrVertexNotFound)

	sg, err := d.Traverse(ctx, a.ID, 2, []string{EdgeRelatesTo})
	require.NoError(t, err)
	require.Len(t, sg.Vertices, 1)
	assert.Equal(t, b.ID, sg.Vertices[0].ID)

	stats, err := d.GetStats(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VerticesByLabel[LabelEntity])
	assert.Equal(t, int64(1), stats.EdgesByLabel[EdgeRelatesTo])
}
