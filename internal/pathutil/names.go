// Package pathutil builds the per-(L, T) output paths.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/sanitize"
)

// Kind identifies one of the per-(L, T) output files.
type Kind int

const (
	KindStat Kind = iota
	KindSpin
	KindEnergy
)

func (k Kind) dir() string {
	switch k {
	case KindSpin:
		return constants.ConfigDir
	case KindEnergy:
		return constants.EnergyDir
	default:
		return constants.StatDir
	}
}

func (k Kind) stem() string {
	switch k {
	case KindSpin:
		return constants.SpinName
	case KindEnergy:
		return constants.EnergyName
	default:
		return constants.StatName
	}
}

// AcceptableRoot returns root, or "" when root is empty or begins with an
// underscore or a shell redirection character.
func AcceptableRoot(root string) string {
	if root == "" || root[0] == '_' || sanitize.IsRedirect(root) {
		return ""
	}
	return root
}

// SizeLabel renders the lattice size used in directory and file names:
// "L=16" for square lattices, "L=16x8" otherwise.
func SizeLabel(width, height int) string {
	if width == height {
		return fmt.Sprintf("L=%d", width)
	}
	return fmt.Sprintf("L=%dx%d", width, height)
}

// KindDir returns <root>/<kind-dir>/L=<L>.
func KindDir(root string, kind Kind, width, height int) string {
	return filepath.Join(AcceptableRoot(root), kind.dir(), SizeLabel(width, height))
}

// FileName returns <stem>(L=<L>,T=<T>)<suffix><ext> with T in fixed
// four-decimal notation. The suffix is sanitized.
func FileName(kind Kind, width, height int, t float64, suffix string, binary bool) string {
	ext := constants.TextExt
	if binary {
		ext = constants.BinaryExt
	}
	return fmt.Sprintf("%s(%s,T=%.4f)%s%s", kind.stem(), SizeLabel(width, height), t, sanitize.Suffix(suffix), ext)
}

// FilePath joins KindDir and FileName.
func FilePath(root string, kind Kind, width, height int, t float64, suffix string, binary bool) string {
	return filepath.Join(KindDir(root, kind, width, height), FileName(kind, width, height, t, suffix, binary))
}

// EnsureDirs creates the directories for the given kinds.
func EnsureDirs(root string, width, height int, kinds ...Kind) error {
	for _, k := range kinds {
		dir := KindDir(root, k, width, height)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", RedactPath(dir), err)
		}
	}
	return nil
}

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}
