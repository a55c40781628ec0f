// Package checkpoint stores resumable annealing snapshots as a JSON header
// line followed by a gzip-compressed payload.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/pathutil"
)

const (
	filePrefix = "ckpt-"
	fileExt    = ".ckpt"
)

// ErrNoCheckpoint is returned by Latest when the directory holds none.
var ErrNoCheckpoint = errors.New("checkpoint: no checkpoint found")

// IsCheckpointFile reports whether name looks like a checkpoint file.
func IsCheckpointFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt)
}

// FileName returns the checkpoint name for a run at the given time and
// next temperature index. Names sort newest-first in reverse lexical order.
func FileName(at time.Time, next int) string {
	return fmt.Sprintf("%s%s-t%04d%s", filePrefix, at.UTC().Format("20060102-150405"), next, fileExt)
}

// Dir returns the checkpoint directory under an output root.
func Dir(root string) string {
	return filepath.Join(root, constants.CheckpointDir)
}

// Checkpointer writes snapshots into a directory and rotates old ones.
type Checkpointer struct {
	root       string
	runID      int64
	seed       uint64
	configYAML string
	keep       int
	logger     *slog.Logger
	now        func() time.Time

	last string
}

// CheckpointerOption configures a Checkpointer.
type CheckpointerOption func(*Checkpointer)

// WithRun records the catalog run ID and seed in every checkpoint.
func WithRun(runID int64, seed uint64) CheckpointerOption {
	return func(c *Checkpointer) { c.runID, c.seed = runID, seed }
}

// WithConfigYAML embeds the resolved configuration.
func WithConfigYAML(y string) CheckpointerOption {
	return func(c *Checkpointer) { c.configYAML = y }
}

// WithKeep sets how many checkpoints survive rotation. Negative keeps all.
func WithKeep(n int) CheckpointerOption {
	return func(c *Checkpointer) { c.keep = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CheckpointerOption {
	return func(c *Checkpointer) { c.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CheckpointerOption {
	return func(c *Checkpointer) { c.now = now }
}

// NewCheckpointer returns a Checkpointer writing under <root>/checkpoints.
func NewCheckpointer(root string, opts ...CheckpointerOption) *Checkpointer {
	c := &Checkpointer{
		root:   root,
		keep:   constants.DefaultCheckpointKeep,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Last returns the path of the most recently written checkpoint.
func (c *Checkpointer) Last() string { return c.last }

// SaveSnapshot implements anneal.Checkpointer.
func (c *Checkpointer) SaveSnapshot(ctx context.Context, s anneal.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := c.now()
	dir := Dir(c.root)
	path := filepath.Join(dir, FileName(now, s.NextIndex))

	ckpt := &Checkpoint{
		CreatedAt:  now,
		RunID:      c.runID,
		Seed:       c.seed,
		ConfigYAML: c.configYAML,
		Snapshot:   s,
	}
	if err := Write(path, ckpt); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", pathutil.RedactPath(path), err)
	}
	c.last = path
	c.logger.Debug("checkpoint saved", "path", pathutil.RedactPath(path), "next_index", s.NextIndex)

	if c.keep >= 0 {
		deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: max(c.keep, 1)})
		if err != nil {
			return fmt.Errorf("rotating checkpoints: %w", err)
		}
		for _, p := range deleted {
			c.logger.Debug("checkpoint rotated out", "path", pathutil.RedactPath(p))
		}
	}
	return nil
}

// Load reads a checkpoint from path, which must live under the
// checkpoint directory of root.
func Load(root, path string) (*Checkpoint, error) {
	resolved, err := Resolve(root, path)
	if err != nil {
		return nil, err
	}
	return Read(resolved)
}

// Latest returns the newest readable checkpoint under root.
func Latest(root string) (*Checkpoint, string, error) {
	infos, err := List(Dir(root))
	if err != nil {
		return nil, "", err
	}
	var errs []error
	for _, info := range infos {
		c, err := Read(info.Path)
		if err == nil {
			return c, info.Path, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(info.Path), err))
	}
	if len(errs) > 0 {
		return nil, "", fmt.Errorf("%w: %w", ErrNoCheckpoint, errors.Join(errs...))
	}
	return nil, "", ErrNoCheckpoint
}
