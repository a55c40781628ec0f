// Package progress renders a single-line, in-place progress indicator for
// long sweep phases and the run banner.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/logging"
)

// Bar prints "N %. done: ... todo: ... total: ..." on one line, rewriting
// it with a carriage return. A line is only printed when the integer
// percentage changes.
type Bar struct {
	w       io.Writer
	prefix  string
	enabled bool
	now     func() time.Time
	pct     lipgloss.Style

	total int
	prev  int
	start time.Time
}

// Option configures a Bar.
type Option func(*Bar)

// WithPrefix sets the indentation printed before every line.
func WithPrefix(p string) Option {
	return func(b *Bar) { b.prefix = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bar) { b.now = now }
}

// Force enables output even when w is not a terminal.
func Force() Option {
	return func(b *Bar) { b.enabled = true }
}

// New returns a Bar writing to w. It is silent unless w is a terminal or
// Force is given. A nil writer yields a silent Bar.
func New(w io.Writer, opts ...Option) *Bar {
	b := &Bar{
		w:       w,
		enabled: w != nil && logging.IsTerminal(w),
		now:     time.Now,
		prev:    -1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if w == nil {
		b.enabled = false
	}
	if b.enabled {
		b.pct = lipgloss.NewRenderer(w).NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	}
	return b
}

// Enabled reports whether the bar prints anything.
func (b *Bar) Enabled() bool { return b.enabled }

// Reset starts a new run of total iterations.
func (b *Bar) Reset(total int) {
	b.total = max(total, 1)
	b.prev = -1
	b.start = b.now()
}

// Next reports that iteration idx (0-based) has completed.
func (b *Bar) Next(idx int) {
	if !b.enabled || b.total == 0 {
		return
	}
	curr := (idx + 1) * 100 / b.total
	if curr == b.prev {
		return
	}
	b.prev = curr

	elapsed := b.now().Sub(b.start)
	done := float64(idx + 1)
	todo := time.Duration(float64(b.total-idx-1) / done * float64(elapsed))
	total := time.Duration(float64(b.total) / done * float64(elapsed))

	var sb strings.Builder
	sb.WriteString("\r")
	sb.WriteString(b.prefix)
	sb.WriteString(b.pct.Render(fmt.Sprintf("%d %%", curr)))
	fmt.Fprintf(&sb, ". done: %s. todo: %s. total: %s.        ",
		FormatDuration(elapsed), FormatDuration(todo), FormatDuration(total))
	if curr >= 100 {
		sb.WriteString("\n")
	}
	io.WriteString(b.w, sb.String())
}

// SweepHook returns an anneal.SweepHook that drives the bar through every
// sampling phase.
func (b *Bar) SweepHook() anneal.SweepHook {
	return func(s anneal.SweepInfo) {
		if s.Phase.Phase != anneal.PhaseSampling {
			return
		}
		if s.PhaseStep == 1 {
			b.Reset(s.Phase.EndStep - s.Phase.StartStep + 1)
		}
		b.Next(s.PhaseStep - 1)
	}
}

// FormatDuration renders d as "1 d 2 h 3 m 4 s", omitting zero units.
// Durations under a second render as "0 s".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0 s"
	}
	units := []struct {
		n    int64
		name string
	}{
		{secs / 86400, "d"},
		{secs % 86400 / 3600, "h"},
		{secs % 3600 / 60, "m"},
		{secs % 60, "s"},
	}
	var parts []string
	for _, u := range units {
		if u.n != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", u.n, u.name))
		}
	}
	return strings.Join(parts, " ")
}
