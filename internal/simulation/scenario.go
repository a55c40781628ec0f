package simulation

import (
	"github.com/nvandessel/ising/internal/analysis"
	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/store"
)

// Scenario defines a complete annealing experiment.
type Scenario struct {
	Name         string
	Width        int
	Height       int
	Temperatures []float64
	Realizations int // 0 = 1
	Inherit      bool

	EquilibrationLong     int // 0 = 2000
	EquilibrationShort    int // 0 = 1000
	SweepsPerSample       int // 0 = 10
	SamplesPerRealization int // 0 = 50

	Seed uint64 // 0 = rng.DefaultSeed

	// WriteFiles also routes output through the file sink under the
	// runner's root.
	WriteFiles bool

	// CheckConsistency verifies after every sweep that the incrementally
	// tracked energy and magnetization match a full recomputation.
	CheckConsistency bool
}

// Config converts the scenario into a driver configuration, applying defaults.
func (s Scenario) Config() anneal.Config {
	cfg := anneal.Config{
		Width:                 s.Width,
		Height:                s.Height,
		Temperatures:          s.Temperatures,
		Critical:              constants.CriticalTemperature,
		Realizations:          s.Realizations,
		Inherit:               s.Inherit,
		EquilibrationLong:     s.EquilibrationLong,
		EquilibrationShort:    s.EquilibrationShort,
		SweepsPerSample:       s.SweepsPerSample,
		SamplesPerRealization: s.SamplesPerRealization,
		Trace:                 s.WriteFiles,
		TraceScale:            constants.DefaultTraceScale,
	}
	if cfg.Realizations == 0 {
		cfg.Realizations = 1
	}
	if cfg.EquilibrationLong == 0 {
		cfg.EquilibrationLong = 2000
	}
	if cfg.EquilibrationShort == 0 {
		cfg.EquilibrationShort = 1000
	}
	if cfg.SweepsPerSample == 0 {
		cfg.SweepsPerSample = 10
	}
	if cfg.SamplesPerRealization == 0 {
		cfg.SamplesPerRealization = 50
	}
	return cfg
}

// TemperatureResult captures the outcome at one temperature.
type TemperatureResult struct {
	Index     int
	Summary   analysis.Summary
	Inherited []bool // per realization
}

// Result captures all temperatures of a run.
type Result struct {
	Scenario     Scenario
	Temperatures []TemperatureResult
	Stats        anneal.Stats
	Memory       *anneal.MemorySink
	Catalog      *store.Catalog
	RunID        int64
	Root         string

	// Inconsistencies lists sweeps where tracked and recomputed values
	// disagreed. Only populated with CheckConsistency.
	Inconsistencies []string
}

// At returns the result for temperature t, or false.
func (r Result) At(t float64) (TemperatureResult, bool) {
	for _, tr := range r.Temperatures {
		if tr.Summary.Temperature == t {
			return tr, true
		}
	}
	return TemperatureResult{}, false
}
