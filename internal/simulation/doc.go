// Package simulation provides an end-to-end harness for validating the
// physical behavior of annealing runs.
//
// The harness exercises the real Driver, Metropolis stepper, SQLite run
// catalog and file sink with no mocks. Scenarios describe a lattice and a
// temperature schedule; the Runner executes them and returns per-temperature
// summaries for property-based assertions.
//
// Each test gets an isolated catalog and output root via t.TempDir().
//
// Usage:
//
//	func TestOrderedBelowCritical(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:         "cool-down",
//	        Width:        8,
//	        Height:       8,
//	        Temperatures: []float64{3.0, 2.5, 2.0, 1.5},
//	        Inherit:      true,
//	    })
//	    simulation.AssertOrdered(t, result, 1.5, 0.75)
//	}
package simulation
