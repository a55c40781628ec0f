package anneal

import "sync"

// CapturedSample is a Sample together with its phase and spin copy.
type CapturedSample struct {
	Phase  PhaseInfo
	Sample Sample
	Spins  []int8
}

// CapturedTrace is a TracePoint together with its phase.
type CapturedTrace struct {
	Phase PhaseInfo
	Point TracePoint
}

// MemorySink keeps everything in memory. It is used by tests and by dry runs.
type MemorySink struct {
	mu      sync.Mutex
	Phases  []PhaseInfo
	Samples []CapturedSample
	Traces  []CapturedTrace

	// KeepSpins controls whether Capture copies the spin array.
	KeepSpins bool
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink(keepSpins bool) *MemorySink {
	return &MemorySink{KeepSpins: keepSpins}
}

func (m *MemorySink) BeginPhase(p PhaseInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Phases = append(m.Phases, p)
	return nil
}

func (m *MemorySink) Capture(p PhaseInfo, s Sample, spins []int8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := CapturedSample{Phase: p, Sample: s}
	if m.KeepSpins {
		c.Spins = append([]int8(nil), spins...)
	}
	m.Samples = append(m.Samples, c)
	return nil
}

func (m *MemorySink) Trace(p PhaseInfo, tp TracePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Traces = append(m.Traces, CapturedTrace{Phase: p, Point: tp})
	return nil
}

func (m *MemorySink) EndPhase(PhaseInfo) error { return nil }

// SamplesAt returns the samples captured at schedule index i.
func (m *MemorySink) SamplesAt(i int) []CapturedSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CapturedSample
	for _, s := range m.Samples {
		if s.Phase.TempIndex == i {
			out = append(out, s)
		}
	}
	return out
}
