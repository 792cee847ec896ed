package episodic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/episodic/pkg/search"
)

var (
	searchCmd = &cobra.Command{
		Use:   "search QUERY",
		Short: "Search entities and relationships",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}

	neighborsCmd = &cobra.Command{
		Use:   "neighbors NAME",
		Short: "Show the neighborhood of an entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runNeighbors,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print graph statistics for the group",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Merge duplicate entities left by concurrent ingestion",
		Args:  cobra.NoArgs,
		RunE:  runCompact,
	}

	indicesCmd = &cobra.Command{
		Use:   "create-indices",
		Short: "Create graph indices and constraints",
		Args:  cobra.NoArgs,
		RunE:  runCreateIndices,
	}
)

func init() {
	rootCmd.AddCommand(searchCmd, neighborsCmd, statsCmd, compactCmd, indicesCmd)

	searchCmd.Flags().IntP("limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Bool("entities", false, "search entities only")
	searchCmd.Flags().Bool("relationships", false, "search relationships only")
	searchCmd.Flags().String("anchor", "", "restrict relationships to the neighborhood of this entity")
	searchCmd.Flags().Int("max-hops", 0, "hops from the anchor (default from config)")

	neighborsCmd.Flags().Int("max-hops", 0, "maximum hops (default from config)")
}

// withClient builds the runtime, runs fn and releases everything.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, rt)
	if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
		rt.logger.Warn("Failed to close client", "error", err)
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	limit, _ := cmd.Flags().GetInt("limit")
	entitiesOnly, _ := cmd.Flags().GetBool("entities")
	relationshipsOnly, _ := cmd.Flags().GetBool("relationships")
	anchor, _ := cmd.Flags().GetString("anchor")
	maxHops, _ := cmd.Flags().GetInt("max-hops")

	if entitiesOnly && relationshipsOnly {
		return fmt.Errorf("--entities and --relationships are exclusive")
	}
	if anchor != "" {
		relationshipsOnly = true
	}
	if strings.TrimSpace(query) == "" && anchor == "" {
		return fmt.Errorf("a query or --anchor is required")
	}

	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		switch {
		case entitiesOnly:
			results, err := rt.client.SearchEntities(ctx, query, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		case relationshipsOnly:
			var opts *search.RelationshipSearchOptions
			if anchor != "" {
				opts = &search.RelationshipSearchOptions{AnchorEntity: anchor, MaxHops: maxHops}
			}
			results, err := rt.client.SearchRelationships(ctx, query, limit, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		default:
			results, err := rt.client.Search(ctx, query, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		}
	})
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	maxHops, _ := cmd.Flags().GetInt("max-hops")
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		subgraph, err := rt.client.GetEntityNeighbors(ctx, args[0], maxHops)
		if err != nil {
			return err
		}
		return printJSON(cmd, subgraph)
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		stats, err := rt.client.GetStatistics(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	})
}

func runCompact(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		report, err := rt.client.CompactDuplicates(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	})
}

func runCreateIndices(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, rt *runtime) error {
		if err := rt.client.CreateIndices(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "indices created")
		return nil
	})
}
