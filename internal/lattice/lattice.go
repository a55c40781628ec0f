// Package lattice holds the spin configuration of a periodic 2D Ising
// lattice together with its incrementally maintained energy and
// magnetization.
//
// Sites are stored row-major with index i = x*height + y, where x ranges over
// [0, width) and y over [0, height). Both axes wrap around.
package lattice

import (
	"errors"
	"fmt"

	"github.com/nvandessel/ising/internal/rng"
)

// Sentinel errors.
var (
	// ErrInvalidDimension indicates a non-positive width or height.
	ErrInvalidDimension = errors.New("lattice: width and height must be positive")

	// ErrSizeMismatch indicates a configuration whose length differs from the lattice size.
	ErrSizeMismatch = errors.New("lattice: configuration size mismatch")
)

// Spin values.
const (
	SpinUp   int8 = 1
	SpinDown int8 = -1
)

// Lattice is a width x height periodic spin lattice.
//
// Energy and Magnetization always equal a full recomputation after
// RecomputeEnergyMagnetization, and Flip keeps them equal from then on.
// RandomizeSpins and AssignFrom leave them stale until the next recompute.
type Lattice struct {
	width, height int
	size          int
	spins         []int8
	energy        int
	magnetization int
}

// New allocates a width x height lattice with all spins up.
func New(width, height int) (*Lattice, error) {
	l := &Lattice{}
	if err := l.ResetSize(width, height); err != nil {
		return nil, err
	}
	return l, nil
}

// ResetSize reallocates the lattice for the given extents. All spins are set
// up and the cached energy and magnetization are recomputed.
func (l *Lattice) ResetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimension, width, height)
	}
	l.width, l.height = width, height
	l.size = width * height
	l.spins = make([]int8, l.size)
	for i := range l.spins {
		l.spins[i] = SpinUp
	}
	l.RecomputeEnergyMagnetization()
	return nil
}

// Width returns the extent of the x axis.
func (l *Lattice) Width() int { return l.width }

// Height returns the extent of the y axis.
func (l *Lattice) Height() int { return l.height }

// Size returns width*height.
func (l *Lattice) Size() int { return l.size }

// Energy returns the cached total energy.
func (l *Lattice) Energy() int { return l.energy }

// Magnetization returns the cached total magnetization.
func (l *Lattice) Magnetization() int { return l.magnetization }

// Spin returns the spin at site i.
func (l *Lattice) Spin(i int) int8 { return l.spins[i] }

// Spins returns the underlying spin slice. Callers must not modify it.
func (l *Lattice) Spins() []int8 { return l.spins }

// EnergyPerSite returns Energy()/Size().
func (l *Lattice) EnergyPerSite() float64 {
	return float64(l.energy) / float64(l.size)
}

// MagnetizationPerSite returns Magnetization()/Size().
func (l *Lattice) MagnetizationPerSite() float64 {
	return float64(l.magnetization) / float64(l.size)
}

// RandomizeSpins sets every site independently to +1 or -1 with probability
// one half, drawing one real per site in index order.
func (l *Lattice) RandomizeSpins(src rng.Source) {
	for i := range l.spins {
		if src.Float64() < 0.5 {
			l.spins[i] = SpinUp
		} else {
			l.spins[i] = SpinDown
		}
	}
}

// AssignFrom overwrites the spins from a boolean configuration (true = up).
func (l *Lattice) AssignFrom(cfg []bool) error {
	if len(cfg) != l.size {
		return fmt.Errorf("%w: got %d sites, lattice has %d", ErrSizeMismatch, len(cfg), l.size)
	}
	for i, up := range cfg {
		if up {
			l.spins[i] = SpinUp
		} else {
			l.spins[i] = SpinDown
		}
	}
	return nil
}

// ExportAsBoolVector returns a freshly allocated copy of the configuration.
func (l *Lattice) ExportAsBoolVector() []bool {
	out := make([]bool, l.size)
	for i, s := range l.spins {
		out[i] = s == SpinUp
	}
	return out
}

// RecomputeEnergyMagnetization recomputes both observables from scratch.
// Each bond is counted once via the right and down neighbours.
func (l *Lattice) RecomputeEnergyMagnetization() {
	e, m := 0, 0
	for i, s := range l.spins {
		nb := l.Neighbors(i)
		e -= int(s) * (int(l.spins[nb[Right]]) + int(l.spins[nb[Down]]))
		m += int(s)
	}
	l.energy, l.magnetization = e, m
}

// Delta returns the energy change that flipping site i would cause.
// A neighbour equal to i itself (an axis of extent one) is skipped, since
// flipping a spin leaves its self-bond unchanged.
func (l *Lattice) Delta(i int) int {
	sum := 0
	for _, n := range l.Neighbors(i) {
		if n != i {
			sum += int(l.spins[n])
		}
	}
	return 2 * int(l.spins[i]) * sum
}

// Flip negates site i and applies delta, which must equal Delta(i) computed
// immediately before the flip.
func (l *Lattice) Flip(i, delta int) {
	l.spins[i] = -l.spins[i]
	l.energy += delta
	l.magnetization += 2 * int(l.spins[i])
}
