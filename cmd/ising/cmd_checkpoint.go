package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/ising/internal/checkpoint"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage resumable checkpoints",
		Long: `Checkpoints are written to <root>/checkpoints after every completed
temperature. Resume an interrupted run with 'ising run --resume latest'.

Examples:
  ising checkpoint list
  ising checkpoint verify checkpoints/ckpt-20261017-101500-t0004.ckpt
  ising checkpoint prune --keep 2 --max-age 7d`,
	}
	cmd.AddCommand(
		newCheckpointListCmd(),
		newCheckpointVerifyCmd(),
		newCheckpointPruneCmd(),
	)
	return cmd
}

func checkpointDir(cmd *cobra.Command) (string, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", "", err
	}
	root := outputRoot(cfg)
	return root, checkpoint.Dir(root), nil
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			_, dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}

			infos, err := checkpoint.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				type jsonEntry struct {
					Path      string `json:"path"`
					Size      int64  `json:"size_bytes"`
					CreatedAt string `json:"created_at"`
					RunID     int64  `json:"run_id,omitempty"`
					NextIndex int    `json:"next_index"`
					Total     int    `json:"temperatures"`
					Checksum  string `json:"checksum,omitempty"`
					Valid     bool   `json:"header_valid"`
				}
				entries := make([]jsonEntry, 0, len(infos))
				for _, c := range infos {
					e := jsonEntry{
						Path:      c.Path,
						Size:      c.Size,
						CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					}
					if c.Header != nil {
						e.RunID = c.Header.RunID
						e.NextIndex = c.Header.NextIndex
						e.Total = c.Header.Temperatures
						e.Checksum = c.Header.Checksum
						e.Valid = true
					}
					entries = append(entries, e)
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"checkpoints": entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			if len(infos) == 0 {
				fmt.Fprintf(out, "No checkpoints found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(out, "Checkpoints in %s:\n", dir)
			var total int64
			for _, c := range infos {
				total += c.Size
				progressStr := "unreadable header"
				if h := c.Header; h != nil {
					progressStr = fmt.Sprintf("run #%d  L=%s  %d/%d temperatures", h.RunID,
						sizeString(h.Width, h.Height), h.NextIndex, h.Temperatures)
				}
				fmt.Fprintf(out, "  %s  %8s  %s  %s\n",
					c.CreatedAt.Format("2006-01-02 15:04"),
					humanize.Bytes(uint64(c.Size)),
					progressStr,
					filepath.Base(c.Path),
				)
			}
			fmt.Fprintf(out, "Total: %d checkpoints, %s\n", len(infos), humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func newCheckpointVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify checkpoint integrity",
		Long: `Verify the SHA-256 checksum of a checkpoint payload and decode it.

Examples:
  ising checkpoint verify checkpoints/ckpt-20261017-101500-t0004.ckpt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			path := args[0]
			out := cmd.OutOrStdout()

			c, err := checkpoint.Load(root, path)
			if err != nil {
				if jsonOut {
					json.NewEncoder(out).Encode(map[string]any{
						"file":    path,
						"valid":   false,
						"error":   err.Error(),
						"message": "Checkpoint verification FAILED",
					})
				} else {
					fmt.Fprintf(out, "FAILED: %v\n", err)
					fmt.Fprintf(out, "  File: %s\n", path)
				}
				return fmt.Errorf("checkpoint verification failed")
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"file":       path,
					"valid":      true,
					"run_id":     c.RunID,
					"next_index": c.Snapshot.NextIndex,
					"message":    "Checksum OK",
				})
			}
			fmt.Fprintln(out, "OK: checksum verified")
			fmt.Fprintf(out, "  File: %s\n", path)
			fmt.Fprintf(out, "  Next: temperature %d of %d\n", c.Snapshot.NextIndex, len(c.Snapshot.Temperatures))
			return nil
		},
	}
}

func newCheckpointPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old checkpoints",
		Long: `Delete checkpoints not kept by any of the given policies. A checkpoint
survives if it is among the --keep newest, younger than --max-age, or
within the --max-size budget.

Examples:
  ising checkpoint prune --keep 3
  ising checkpoint prune --keep 1 --max-age 2w
  ising checkpoint prune --max-size 50MB`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxSize, _ := cmd.Flags().GetString("max-size")

			_, dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}

			policy := &checkpoint.CompositePolicy{}
			if keep >= 0 {
				policy.Policies = append(policy.Policies, &checkpoint.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := checkpoint.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policy.Policies = append(policy.Policies, &checkpoint.AgePolicy{MaxAge: d})
			}
			if maxSize != "" {
				n, err := checkpoint.ParseSize(maxSize)
				if err != nil {
					return err
				}
				policy.Policies = append(policy.Policies, &checkpoint.SizePolicy{MaxTotalBytes: n})
			}
			if len(policy.Policies) == 0 {
				return fmt.Errorf("at least one of --keep, --max-age, --max-size is required")
			}

			deleted, err := checkpoint.ApplyRetention(dir, policy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return json.NewEncoder(out).Encode(map[string]any{"deleted": deleted})
			}
			for _, p := range deleted {
				fmt.Fprintf(out, "  removed %s\n", filepath.Base(p))
			}
			fmt.Fprintf(out, "Pruned %d checkpoints\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep", -1, "Keep the N newest checkpoints")
	cmd.Flags().String("max-age", "", "Keep checkpoints younger than this (e.g. 36h, 7d, 2w)")
	cmd.Flags().String("max-size", "", "Keep newest checkpoints within this total size (e.g. 50MB)")
	return cmd
}
