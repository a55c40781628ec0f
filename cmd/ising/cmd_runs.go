package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/pathutil"
	"github.com/nvandessel/ising/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run catalog",
		Long: `List, show and delete runs recorded in <root>/ising.db.

Examples:
  ising runs list
  ising runs show 3 --json
  ising runs delete 3`,
	}
	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

// openCatalog opens the catalog of the configured output root. It fails
// rather than creating an empty database.
func openCatalog(cmd *cobra.Command) (*store.Catalog, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(outputRoot(cfg), constants.CatalogFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no run catalog at %s: %w", pathutil.RedactPath(path), err)
	}
	return store.Open(cmd.Context(), path)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			catalog, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer catalog.Close()

			runs, err := catalog.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"runs":        runs,
					"total_count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				label := r.Label
				if label == "" {
					label = "-"
				}
				fmt.Fprintf(out, "  #%-4d  %-9s  L=%-7s  %10s samples  %-16s  %s\n",
					r.ID,
					r.Status,
					sizeString(r.Width, r.Height),
					humanize.Comma(r.Samples),
					humanize.Time(r.StartedAt),
					label,
				)
			}
			fmt.Fprintf(out, "Total: %d runs\n", len(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")
	return cmd
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q", s)
	}
	return id, nil
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run with its temperature schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			catalog, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer catalog.Close()

			ctx := cmd.Context()
			run, err := catalog.GetRun(ctx, id)
			if err != nil {
				return err
			}
			temps, err := catalog.Temperatures(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"run":          run,
					"temperatures": temps,
					"config_yaml":  run.ConfigYAML,
				})
			}

			fmt.Fprintf(out, "Run #%d (%s)\n", run.ID, run.Status)
			if run.Label != "" {
				fmt.Fprintf(out, "  Label:    %s\n", run.Label)
			}
			fmt.Fprintf(out, "  Lattice:  L=%s\n", sizeString(run.Width, run.Height))
			fmt.Fprintf(out, "  Seed:     %d\n", run.Seed)
			fmt.Fprintf(out, "  Started:  %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			if run.ResumedFrom != 0 {
				fmt.Fprintf(out, "  Resumed:  from run #%d\n", run.ResumedFrom)
			}
			fmt.Fprintf(out, "  Samples:  %s\n", humanize.Comma(run.Samples))
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:    %s\n", run.Error)
			}
			fmt.Fprintln(out, "  Schedule:")
			for _, t := range temps {
				fmt.Fprintf(out, "    [%2d] T=%.4f  equilibration=%d  realizations=%d\n",
					t.Index, t.Temperature, t.Equilibration, t.Realizations)
			}
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its samples from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			catalog, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer catalog.Close()

			if err := catalog.DeleteRun(context.WithoutCancel(cmd.Context()), id); err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"deleted": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run #%d\n", id)
			return nil
		},
	}
}
