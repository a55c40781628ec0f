package anneal

import (
	"context"
	"errors"
)

// PhaseInfo identifies a sweep phase and its global step range.
type PhaseInfo struct {
	TempIndex   int
	Temperature float64
	Realization int
	Phase       Phase

	// StartStep and EndStep are inclusive global step numbers within the
	// realization. Equilibration covers 1..eq, sampling eq+1..eq+sampling.
	StartStep int
	EndStep   int

	// Width and Height describe the lattice the phase runs on.
	Width  int
	Height int
}

// Sample is one captured statistics record.
type Sample struct {
	Step          int
	Energy        int
	Magnetization int
}

// TracePoint is one line of the energy trace.
type TracePoint struct {
	Step                 int
	EnergyPerSite        float64
	MagnetizationPerSite float64
}

// Sink receives everything the driver records. The spins slice passed to
// Capture is only valid for the duration of the call.
type Sink interface {
	BeginPhase(p PhaseInfo) error
	Capture(p PhaseInfo, s Sample, spins []int8) error
	Trace(p PhaseInfo, tp TracePoint) error
	EndPhase(p PhaseInfo) error
}

// Snapshot is the driver state after a completed temperature. Restoring the
// random stream from RNG and resuming at NextIndex reproduces the rest of an
// uninterrupted run.
type Snapshot struct {
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Temperatures []float64 `json:"temperatures"`
	NextIndex    int       `json:"next_index"`
	Last         []bool    `json:"last,omitempty"`
	RNG          []byte    `json:"rng,omitempty"`
}

// Checkpointer persists snapshots.
type Checkpointer interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) BeginPhase(PhaseInfo) error { return nil }
func (NopSink) Capture(PhaseInfo, Sample, []int8) error { return nil }
func (NopSink) Trace(PhaseInfo, TracePoint) error { return nil }
func (NopSink) EndPhase(PhaseInfo) error { return nil }

// MultiSink fans every call out to all of its sinks. Every sink is called
// even if an earlier one fails; the failures are joined.
type MultiSink []Sink

func (m MultiSink) BeginPhase(p PhaseInfo) error {
	return m.each(func(s Sink) error { return s.BeginPhase(p) })
}

func (m MultiSink) Capture(p PhaseInfo, smp Sample, spins []int8) error {
	return m.each(func(s Sink) error { return s.Capture(p, smp, spins) })
}

func (m MultiSink) Trace(p PhaseInfo, tp TracePoint) error {
	return m.each(func(s Sink) error { return s.Trace(p, tp) })
}

func (m MultiSink) EndPhase(p PhaseInfo) error {
	return m.each(func(s Sink) error { return s.EndPhase(p) })
}

func (m MultiSink) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
