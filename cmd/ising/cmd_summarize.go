package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/ising/internal/analysis"
	"github.com/nvandessel/ising/internal/config"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/pathutil"
	"github.com/nvandessel/ising/internal/store"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Thermodynamic summary per temperature",
		Long: `Compute <e>, <|m|>, specific heat, susceptibility and the Binder
cumulant for every temperature of a run.

By default the most recent run in the catalog is summarized. With
--from-files the statistics files under the output root are read instead,
using the lattice size and schedule from the configuration.

Examples:
  ising summarize
  ising summarize --run 3 --json
  ising summarize --from-files --L 16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			runID, _ := cmd.Flags().GetInt64("run")
			fromFiles, _ := cmd.Flags().GetBool("from-files")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("L") {
				cfg.Lattice.Size, _ = cmd.Flags().GetInt("L")
				cfg.Lattice.Width, cfg.Lattice.Height = 0, 0
			}
			if cmd.Flags().Changed("suffix") {
				cfg.Output.Suffix, _ = cmd.Flags().GetString("suffix")
			}

			var summaries []analysis.Summary
			if fromFiles {
				summaries, err = summarizeFiles(cfg)
			} else {
				summaries, runID, err = summarizeCatalog(cmd.Context(), outputRoot(cfg), runID)
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"run_id":       runID,
					"temperatures": summaries,
				})
			}
			printSummaries(cmd.OutOrStdout(), runID, summaries)
			return nil
		},
	}
	cmd.Flags().Int64("run", 0, "Run ID (default: most recent)")
	cmd.Flags().Bool("from-files", false, "Read statistics files instead of the catalog")
	cmd.Flags().Int("L", 0, "Lattice side length for --from-files")
	cmd.Flags().String("suffix", "", "Output file suffix for --from-files")
	return cmd
}

func summarizeCatalog(ctx context.Context, root string, runID int64) ([]analysis.Summary, int64, error) {
	path := filepath.Join(root, constants.CatalogFile)
	if _, err := os.Stat(path); err != nil {
		return nil, 0, fmt.Errorf("no run catalog at %s: %w", pathutil.RedactPath(path), err)
	}
	catalog, err := store.Open(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	defer catalog.Close()

	var run *store.Run
	if runID == 0 {
		runs, err := catalog.ListRuns(ctx, 1)
		if err != nil {
			return nil, 0, err
		}
		if len(runs) == 0 {
			return nil, 0, store.ErrRunNotFound
		}
		run = &runs[0]
	} else if run, err = catalog.GetRun(ctx, runID); err != nil {
		return nil, 0, err
	}

	temps, err := catalog.Temperatures(ctx, run.ID)
	if err != nil {
		return nil, 0, err
	}
	sites := run.Width * run.Height
	var out []analysis.Summary
	for _, t := range temps {
		rows, err := catalog.Samples(ctx, run.ID, t.Temperature)
		if err != nil {
			return nil, 0, err
		}
		if len(rows) == 0 {
			continue
		}
		sum, err := analysis.Summarize(t.Temperature, sites, analysis.FromSampleRows(rows))
		if err != nil {
			return nil, 0, fmt.Errorf("T=%.4f: %w", t.Temperature, err)
		}
		out = append(out, sum)
	}
	return out, run.ID, nil
}

func summarizeFiles(cfg *config.IsingConfig) ([]analysis.Summary, error) {
	root := outputRoot(cfg)
	w, h := cfg.Lattice.Dimensions()
	temps, err := cfg.Temperatures()
	if err != nil {
		return nil, err
	}

	var out []analysis.Summary
	for _, t := range temps {
		path := pathutil.FilePath(root, pathutil.KindStat, w, h, t, cfg.Output.Suffix, cfg.Output.StatsBinary)
		series, err := analysis.ReadStatFile(path, cfg.Output.StatsBinary)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if series.Len() == 0 {
			continue
		}
		sum, err := analysis.Summarize(t, w*h, series)
		if err != nil {
			return nil, fmt.Errorf("T=%.4f: %w", t, err)
		}
		out = append(out, sum)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no statistics files found under %s for L=%s", root, sizeString(w, h))
	}
	return out, nil
}

func printSummaries(w io.Writer, runID int64, summaries []analysis.Summary) {
	if runID != 0 {
		fmt.Fprintf(w, "Run %d\n", runID)
	}
	fmt.Fprintf(w, "%-8s  %8s  %9s  %9s  %9s  %9s  %8s\n", "T", "samples", "<e>", "<|m|>", "C", "chi", "U")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-8.4f  %8d  %9.5f  %9.5f  %9.4f  %9.4f  %8.4f\n",
			s.Temperature, s.Samples, s.Energy, s.AbsMagnet, s.SpecificHeat, s.Susceptibility, s.Binder)
	}
}
