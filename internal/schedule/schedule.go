// Package schedule generates temperature lists and log-spaced step schedules.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidStep indicates a non-positive spacing for a non-degenerate range.
var ErrInvalidStep = errors.New("schedule: step must be positive")

// Linear returns the points down, down+step, ... not exceeding up. The
// endpoints are swapped if given in reverse. A degenerate range yields a
// single point and ignores step.
func Linear(down, up, step float64) ([]float64, error) {
	if down > up {
		down, up = up, down
	}
	if down == up {
		return []float64{down}, nil
	}
	if !(step > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidStep, step)
	}

	n := int((up-down)/step) + 1
	if n == 1 {
		return []float64{down}, nil
	}
	return floats.Span(make([]float64, n), down, down+float64(n-1)*step), nil
}

// WithCritical returns ts with tc appended.
func WithCritical(ts []float64, tc float64) []float64 {
	out := make([]float64, 0, len(ts)+1)
	out = append(out, ts...)
	return append(out, tc)
}

// Descending sorts ts in place from hottest to coldest and returns it.
func Descending(ts []float64) []float64 {
	sort.Sort(sort.Reverse(sort.Float64Slice(ts)))
	return ts
}

// logEpsilon is the tolerance below which a rounded step is considered stuck.
const logEpsilon = 1e-9

// LogSpace returns an increasing integer schedule starting at start. Each
// value is the previous one multiplied by scale; with rounding the product is
// rounded and, if that fails to advance, the previous value plus one is used
// instead. Generation stops at the first value >= stop. With catchEndpoint
// that value is clamped to stop, otherwise values beyond stop are dropped.
// Without rounding the real-valued sequence is truncated and duplicates are
// collapsed.
func LogSpace(start, stop int, scale float64, catchEndpoint, rounding bool) []int {
	if start > stop {
		return nil
	}
	out := []int{start}
	cur, end := float64(start), float64(stop)
	for cur < end {
		if rounding {
			next := math.Round(cur * scale)
			if math.Abs(next-cur) < logEpsilon {
				next = cur + 1
			}
			cur = next
		} else {
			cur *= scale
		}
		if cur > end {
			if !catchEndpoint {
				break
			}
			cur = end
		}
		if v := int(cur); v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
