package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Info holds metadata for listing and retention decisions.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	Header    *Header // nil when the header could not be read
}

// RetentionPolicy decides which checkpoints to keep.
type RetentionPolicy interface {
	Apply(infos []Info) (keep []Info)
}

// CountPolicy keeps the N most recent checkpoints.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount entries (assumed sorted newest-first).
func (p *CountPolicy) Apply(infos []Info) []Info {
	if p.MaxCount < 0 || len(infos) <= p.MaxCount {
		return infos
	}
	return infos[:p.MaxCount]
}

// AgePolicy keeps checkpoints newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// Apply keeps entries whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(infos []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, c := range infos {
		if c.CreatedAt.After(cutoff) {
			keep = append(keep, c)
		}
	}
	return keep
}

// SizePolicy keeps checkpoints until their total size exceeds MaxTotalBytes.
type SizePolicy struct {
	MaxTotalBytes int64
}

// Apply keeps entries (newest-first) until adding the next would exceed the limit.
func (p *SizePolicy) Apply(infos []Info) []Info {
	var keep []Info
	var total int64
	for _, c := range infos {
		if total+c.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, c)
		total += c.Size
	}
	return keep
}

// CompositePolicy keeps a checkpoint if ANY sub-policy wants it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of entries kept by any sub-policy.
func (p *CompositePolicy) Apply(infos []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, c := range policy.Apply(infos) {
			kept[c.Path] = true
		}
	}

	var result []Info
	for _, c := range infos {
		if kept[c.Path] {
			result = append(result, c)
		}
	}
	return result
}

// List scans dir for checkpoint files and returns them sorted newest-first.
// A missing directory is not an error.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !IsCheckpointFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}

		info := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.Header = h
			if !h.CreatedAt.IsZero() {
				info.CreatedAt = h.CreatedAt
			}
		}
		infos = append(infos, info)
	}

	// Sort newest first by filename (timestamp is embedded)
	sort.Slice(infos, func(i, j int) bool {
		return filepath.Base(infos[i].Path) > filepath.Base(infos[j].Path)
	})
	return infos, nil
}

// ApplyRetention deletes checkpoints not kept by the policy.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	infos, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := policy.Apply(infos)
	keepSet := make(map[string]bool, len(keep))
	for _, c := range keep {
		keepSet[c.Path] = true
	}

	for _, c := range infos {
		if !keepSet[c.Path] {
			if err := os.Remove(c.Path); err != nil {
				return deleted, fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
			}
			deleted = append(deleted, c.Path)
		}
	}
	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses sizes like "100MB", "1GiB" or "500 kB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q: %w", s, err)
	}
	return int64(n), nil
}
