package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/ising/internal/pathutil"
)

// ErrOutsideDir is returned when a checkpoint path does not name a file
// directly inside the checkpoint directory of the output root.
var ErrOutsideDir = errors.New("checkpoint: path is not inside the checkpoint directory")

// Resolve checks that path names a checkpoint file directly inside
// Dir(root) and returns it with symlinks in its directory resolved.
// Relative paths are taken relative to the working directory.
func Resolve(root, path string) (string, error) {
	if path == "" || strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, path)
	}
	if !IsCheckpointFile(filepath.Base(path)) {
		return "", fmt.Errorf("checkpoint: %s is not a checkpoint file name", pathutil.RedactPath(path))
	}

	dir, err := realDir(Dir(root))
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	parent, err := realDir(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	if parent != dir {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, pathutil.RedactPath(abs))
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}

// realDir returns the absolute form of dir with symlinks evaluated. A
// directory that does not exist yet is returned cleaned but unresolved.
func realDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}
	return resolved, err
}
