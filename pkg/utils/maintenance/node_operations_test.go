package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/prompts"
	"github.com/soundprediction/episodic/pkg/types"
)

func TestExtractEntities(t *testing.T) {
	client := &scriptedClient{replies: []string{"```json\n" + `{"entities": [
		{"name": "Alice", "type": "Person", "description": "Customer", "properties": {"tier": "gold", "orders": 3}},
		{"name": "Laptop Pro", "type": "product", "description": "", "properties": {"specs": {"ram": 16}}},
		{"name": "  ", "type": "person"},
		{"name": "Mars", "type": "planet"},
		{"name": "alice", "type": "person", "description": "Repeat customer", "properties": {"region": "EU"}}
	]}` + "\n```"}}

	ops := NewNodeOperations(client, prompts.NewLibrary())
	got, err := ops.ExtractEntities(context.Background(), "Alice bought a Laptop Pro.", nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, client.calls)

	alice := got[0]
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, types.EntityPerson, alice.Type)
	assert.Equal(t, "Customer", alice.Description)
	assert.Empty(t, alice.ID)
	assert.Equal(t, "gold", alice.Properties.GetString("tier"))
	orders, ok := alice.Properties.Get("orders")
	require.True(t, ok)
	n, _ := orders.AsNumber()
	assert.Equal(t, 3.0, n)
	assert.Equal(t, "EU", alice.Properties.GetString("region"), "duplicate mention folded in")

	laptop := got[1]
	assert.Equal(t, types.EntityProduct, laptop.Type)
	assert.JSONEq(t, `{"ram": 16}`, laptop.Properties.GetString("specs"))
}

func TestExtractEntitiesAllowedTypes(t *testing.T) {
	client := &scriptedClient{replies: []string{`[
		{"name": "Alice", "type": "person"},
		{"name": "Acme", "type": "organization"}
	]`}}

	ops := NewNodeOperations(client, prompts.NewLibrary())
	got, err := ops.ExtractEntities(context.Background(), "Alice works at Acme", []types.EntityType{types.EntityOrganization}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
}

func TestExtractEntitiesEmptyText(t *testing.T) {
	client := &scriptedClient{}
	ops := NewNodeOperations(client, prompts.NewLibrary())

	for _, text := range []string{"", "   \n\t", "\u200b"} {
		got, err := ops.ExtractEntities(context.Background(), text, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Zero(t, client.calls)
}

func TestExtractEntitiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *scriptedClient
	}{
		{"llm error", &scriptedClient{err: errors.New("connection reset")}},
		{"unparseable", &scriptedClient{replies: []string{"I cannot help with that", "still not json"}}},
		{"error object", &scriptedClient{replies: []string{
			`{"error": {"message": "cannot comply"}}`,
			`{"error": {"message": "cannot comply"}}`,
		}}},
		{"status object", &scriptedClient{replies: []string{`{"status": "ok"}`, `{"status": "ok"}`}}},
		{"null list", &scriptedClient{replies: []string{`{"entities": null}`, `{"entities": null}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := NewNodeOperations(tt.client, prompts.NewLibrary())
			_, err := ops.ExtractEntities(context.Background(), "Alice bought a laptop", nil, nil)
			require.Error(t, err)

			var extErr *ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, StageEntities, extErr.Stage)
			assert.ErrorIs(t, err, ErrExtraction)
		})
	}
}

func TestExtractEntitiesSingleObject(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"name": "Acme", "type": "organization"}`}}
	ops := NewNodeOperations(client, prompts.NewLibrary())

	got, err := ops.ExtractEntities(context.Background(), "Acme shipped the order", nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
}

func TestExtractEntitiesPassesKnownEntities(t *testing.T) {
	client := &scriptedClient{replies: []string{`{"entities": []}`}}
	ops := NewNodeOperations(client, prompts.NewLibrary())

	known := []*types.Entity{{Name: "Acme Corp", Type: types.EntityOrganization}}
	got, err := ops.ExtractEntities(context.Background(), "Acme shipped the order", nil, known)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.Len(t, client.seen, 1)
	assert.Contains(t, client.seen[0][1].Content, "Acme Corp")
}
