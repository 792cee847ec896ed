package episodic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/checkpoint"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one or more episodes",
	Long: `Ingest a single episode given with --text, or a batch read from --file.

A batch file is a YAML or JSON list of episodes:

  - content: "Alice bought a laptop from Acme Corp"
    source: crm
    metadata: {channel: email}
  - id: ticket-42
    content: "Bob opened a support ticket about billing"

With --checkpoint-dir the outcome of every episode is recorded, and a rerun
skips episodes already recorded in full. Episodes without an id get one
derived from their content so reruns line up.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("text", "", "episode content")
	ingestCmd.Flags().String("source", "", "episode source (default user_input)")
	ingestCmd.Flags().String("id", "", "episode id (default generated)")
	ingestCmd.Flags().StringP("file", "f", "", "YAML or JSON file with a list of episodes")
	ingestCmd.Flags().String("checkpoint-dir", "", "record per-episode outcomes here and resume from them")
	ingestCmd.Flags().Int("max-attempts", 3, "attempts per episode when resuming from checkpoints")
}

func runIngest(cmd *cobra.Command, args []string) error {
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")
	if (text == "") == (file == "") {
		return fmt.Errorf("exactly one of --text or --file is required")
	}

	var inputs []episodic.EpisodeInput
	if file != "" {
		var err error
		if inputs, err = readEpisodes(file); err != nil {
			return err
		}
	} else {
		source, _ := cmd.Flags().GetString("source")
		id, _ := cmd.Flags().GetString("id")
		inputs = []episodic.EpisodeInput{{ID: id, Content: text, Source: source}}
	}

	checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")

	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		var ledger *checkpoint.CheckpointManager
		if checkpointDir != "" {
			var err error
			if ledger, err = checkpoint.NewCheckpointManager(checkpointDir); err != nil {
				return err
			}
			if inputs, err = pendingInputs(ctx, ledger, inputs, maxAttempts); err != nil {
				return err
			}
			if len(inputs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to ingest")
				return nil
			}
		}

		results, errs := rt.client.AddEpisodes(ctx, inputs)
		failed := 0
		for i := range inputs {
			if errs[i] != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "episode %d: %v\n", i, errs[i])
			}
			if results[i] != nil {
				printResult(cmd, results[i])
			}
			if ledger != nil {
				if _, err := ledger.Record(ctx, inputs[i].ID, inputs[i].GroupID, outcomeOf(results[i], errs[i])); err != nil {
					rt.logger.Warn("Failed to record checkpoint", "episode_id", inputs[i].ID, "error", err)
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d episodes failed", failed, len(inputs))
		}
		return nil
	})
}

// pendingInputs assigns content-derived ids where missing and drops the
// episodes the ledger has no further attempts for.
func pendingInputs(ctx context.Context, ledger *checkpoint.CheckpointManager, inputs []episodic.EpisodeInput, maxAttempts int) ([]episodic.EpisodeInput, error) {
	ids := make([]string, 0, len(inputs))
	byID := make(map[string]episodic.EpisodeInput, len(inputs))
	for _, in := range inputs {
		if in.ID == "" {
			in.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(in.GroupID+"\x00"+in.Content)).String()
		}
		// Repeated entries of the same episode are ingested once.
		if _, ok := byID[in.ID]; ok {
			continue
		}
		ids = append(ids, in.ID)
		byID[in.ID] = in
	}

	pending, err := ledger.Pending(ctx, ids, maxAttempts)
	if err != nil {
		return nil, err
	}
	out := make([]episodic.EpisodeInput, 0, len(pending))
	for _, id := range pending {
		out = append(out, byID[id])
	}
	return out, nil
}

func outcomeOf(r *episodic.EpisodeResult, err error) checkpoint.Outcome {
	o := checkpoint.Outcome{Err: err}
	if r != nil {
		o.Status = r.Status
		o.State = r.State
		o.Warnings = r.WarningMessages()
		o.EntityCount = len(r.EntityIDs)
		o.RelationshipCount = len(r.RelationshipIDs)
	}
	return o
}

// readEpisodes decodes a batch file; .json files are read as JSON and
// everything else as YAML.
func readEpisodes(path string) ([]episodic.EpisodeInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var inputs []episodic.EpisodeInput
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &inputs)
	} else {
		err = yaml.Unmarshal(data, &inputs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s contains no episodes", path)
	}
	return inputs, nil
}

func printResult(cmd *cobra.Command, r *episodic.EpisodeResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s entities=%d (new %d) relationships=%d in %s\n",
		r.EpisodeID, r.Status, len(r.EntityIDs), r.CreatedEntities, len(r.RelationshipIDs), r.Duration.Round(1e6))
	for _, w := range r.WarningMessages() {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
