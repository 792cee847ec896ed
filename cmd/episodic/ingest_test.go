package episodic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/checkpoint"
	"github.com/soundprediction/episodic/pkg/types"
)

func TestReadEpisodes(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	yamlPath := write("batch.yaml", `
- content: Alice bought a laptop from Acme Corp
  source: crm
  metadata:
    channel: email
- id: ticket-42
  content: Bob opened a support ticket about billing
`)
	inputs, err := readEpisodes(yamlPath)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "crm", inputs[0].Source)
	assert.Equal(t, "email", inputs[0].Metadata["channel"])
	assert.Equal(t, "ticket-42", inputs[1].ID)

	jsonPath := write("batch.json", `[{"content": "Carol renewed her contract", "group_id": "tenant-b"}]`)
	inputs, err = readEpisodes(jsonPath)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "tenant-b", inputs[0].GroupID)

	_, err = readEpisodes(write("empty.yaml", "[]"))
	assert.Error(t, err)

	_, err = readEpisodes(write("broken.json", "{"))
	assert.Error(t, err)

	_, err = readEpisodes(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPendingInputs(t *testing.T) {
	ctx := context.Background()
	ledger, err := checkpoint.NewCheckpointManager(t.TempDir())
	require.NoError(t, err)

	inputs := []episodic.EpisodeInput{
		{ID: "recorded", Content: "Alice bought Widget"},
		{Content: "Bob opened a ticket"},
		{Content: "Bob opened a ticket"},
		{ID: "retry", Content: "Carol renewed"},
	}
	_, err = ledger.Record(ctx, "recorded", "", checkpoint.Outcome{Status: types.EpisodeComplete, State: types.StateEpisodeRecorded})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, "retry", "", checkpoint.Outcome{Err: errors.New("store down")})
	require.NoError(t, err)

	pending, err := pendingInputs(ctx, ledger, inputs, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.NotEmpty(t, pending[0].ID)
	assert.Equal(t, "Bob opened a ticket", pending[0].Content)
	assert.Equal(t, "retry", pending[1].ID)

	again, err := pendingInputs(ctx, ledger, inputs, 3)
	require.NoError(t, err)
	assert.Equal(t, pending[0].ID, again[0].ID, "derived ids are stable across runs")
}
