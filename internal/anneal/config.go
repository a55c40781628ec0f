// Package anneal drives the lattice through a descending temperature
// schedule: equilibrating, sampling and handing observables to a Sink.
package anneal

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/metropolis"
)

// Sentinel errors.
var (
	// ErrInvalidConfig indicates a driver configuration that cannot be run.
	ErrInvalidConfig = errors.New("anneal: invalid configuration")

	// ErrWriteFailed wraps every sink failure collected during a run.
	ErrWriteFailed = errors.New("anneal: sink write failed")

	// ErrSnapshotMismatch indicates a resume snapshot that does not fit the configuration.
	ErrSnapshotMismatch = errors.New("anneal: snapshot does not match configuration")
)

// Config is the immutable parameter set of one annealing run.
type Config struct {
	Width  int
	Height int

	// Temperatures are visited in order; callers normally pass them sorted
	// from hottest to coldest.
	Temperatures []float64

	// Critical is the temperature that always receives the long
	// equilibration, even when inheriting a configuration.
	Critical float64

	Realizations int

	// Inherit seeds every realization of each temperature after the first
	// with the configuration left by the last realization of the previous
	// temperature.
	Inherit bool

	EquilibrationLong  int
	EquilibrationShort int

	SweepsPerSample       int
	SamplesPerRealization int

	// Trace enables the log-spaced energy trace.
	Trace bool

	// TraceScale is the growth factor of the trace schedule.
	TraceScale float64
}

// Size returns Width*Height.
func (c Config) Size() int { return c.Width * c.Height }

// SamplingSweeps returns the length of the sampling phase.
func (c Config) SamplingSweeps() int { return c.SweepsPerSample * c.SamplesPerRealization }

// Validate checks everything that must hold before the first sweep.
// Dimension and temperature failures wrap the lattice and metropolis
// sentinels respectively.
func (c Config) Validate() error {
	if len(c.Temperatures) == 0 {
		return fmt.Errorf("%w: empty temperature schedule", ErrInvalidConfig)
	}
	var tbl metropolis.Table
	for i, t := range c.Temperatures {
		if err := tbl.Rebuild(t); err != nil {
			return fmt.Errorf("temperature %d: %w", i, err)
		}
	}
	if c.Realizations < 1 {
		return fmt.Errorf("%w: realizations must be >= 1, got %d", ErrInvalidConfig, c.Realizations)
	}
	if c.EquilibrationLong < 0 || c.EquilibrationShort < 0 {
		return fmt.Errorf("%w: equilibration sweeps must be non-negative", ErrInvalidConfig)
	}
	if c.SweepsPerSample < 1 || c.SamplesPerRealization < 1 {
		return fmt.Errorf("%w: sweeps per sample and samples must be >= 1", ErrInvalidConfig)
	}
	if c.Trace && !(c.TraceScale > 1) {
		return fmt.Errorf("%w: trace scale must be > 1, got %v", ErrInvalidConfig, c.TraceScale)
	}
	return nil
}

// EquilibrationFor returns the equilibration length at schedule index i.
func (c Config) EquilibrationFor(i int) int {
	t := c.Temperatures[i]
	if !c.Inherit || i == 0 || math.Abs(t-c.Critical) < constants.CriticalTolerance {
		return c.EquilibrationLong
	}
	return c.EquilibrationShort
}
