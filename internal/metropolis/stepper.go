package metropolis

import (
	"github.com/nvandessel/ising/internal/lattice"
	"github.com/nvandessel/ising/internal/rng"
)

// WeightSource supplies Boltzmann weights for an energy change.
type WeightSource interface {
	WeightFor(delta int) float64
}

// AcceptanceRule decides whether a proposed flip with energy change delta is
// accepted. Implementations may draw from src but must document when.
type AcceptanceRule interface {
	Accept(delta int, w WeightSource, src rng.Source) bool
}

// Metropolis accepts every non-positive delta without drawing. For positive
// delta it draws one real and accepts when it falls below the weight.
type Metropolis struct{}

// Accept implements AcceptanceRule.
func (Metropolis) Accept(delta int, w WeightSource, src rng.Source) bool {
	if delta <= 0 {
		return true
	}
	return src.Float64() < w.WeightFor(delta)
}

// SweepResult counts the trials of one sweep.
type SweepResult struct {
	Attempts int
	Accepted int
}

// AcceptanceRatio returns Accepted/Attempts, or 0 for an empty sweep.
func (r SweepResult) AcceptanceRatio() float64 {
	if r.Attempts == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Attempts)
}

// Stepper performs Monte Carlo sweeps with a pluggable acceptance rule.
type Stepper struct {
	Rule AcceptanceRule
}

// NewStepper returns a Stepper using the Metropolis rule.
func NewStepper() *Stepper {
	return &Stepper{Rule: Metropolis{}}
}

// RunOneSweep performs Size() single-site trials. Each trial draws a site
// index, then lets the rule decide. Accepted flips update the lattice
// observables incrementally.
func (s *Stepper) RunOneSweep(l *lattice.Lattice, w WeightSource, src rng.Source) SweepResult {
	rule := s.Rule
	if rule == nil {
		rule = Metropolis{}
	}

	n := l.Size()
	res := SweepResult{Attempts: n}
	for trial := 0; trial < n; trial++ {
		site := src.IntN(n)
		delta := l.Delta(site)
		if rule.Accept(delta, w, src) {
			l.Flip(site, delta)
			res.Accepted++
		}
	}
	return res
}
