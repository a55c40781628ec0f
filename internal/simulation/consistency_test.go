package simulation_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/ising/internal/simulation"
)

// TestIncrementalTrackingMatchesRecompute runs short schedules on several
// lattice shapes, including degenerate ones, and compares the tracked
// energy and magnetization against a full recomputation after every sweep.
func TestIncrementalTrackingMatchesRecompute(t *testing.T) {
	shapes := []struct{ w, h int }{
		{1, 1},
		{1, 5},
		{5, 1},
		{2, 2},
		{3, 4},
		{6, 6},
	}
	for _, s := range shapes {
		t.Run(fmt.Sprintf("%dx%d", s.w, s.h), func(t *testing.T) {
			r := simulation.NewRunner(t)
			result := r.Run(simulation.Scenario{
				Name:                  "consistency",
				Width:                 s.w,
				Height:                s.h,
				Temperatures:          []float64{4.0, 2.269, 1.0},
				Realizations:          2,
				Inherit:               true,
				EquilibrationLong:     30,
				EquilibrationShort:    10,
				SweepsPerSample:       3,
				SamplesPerRealization: 5,
				CheckConsistency:      true,
			})
			simulation.AssertConsistent(t, result)
			simulation.AssertPhysicalBounds(t, result)
			simulation.AssertInheritance(t, result)
		})
	}
}

func TestNoInheritanceRestartsEveryRealization(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:                  "fresh-starts",
		Width:                 4,
		Height:                4,
		Temperatures:          []float64{3.0, 2.0},
		Realizations:          3,
		EquilibrationLong:     20,
		EquilibrationShort:    5,
		SweepsPerSample:       2,
		SamplesPerRealization: 4,
	})
	simulation.AssertInheritance(t, result)

	// Without inheritance every temperature gets the long equilibration.
	want := int64(2 * 3 * (20 + 8))
	if result.Stats.Sweeps != want {
		t.Errorf("Sweeps = %d, want %d", result.Stats.Sweeps, want)
	}
}

func TestFileOutputAlongsideCatalog(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:                  "files",
		Width:                 3,
		Height:                3,
		Temperatures:          []float64{2.5},
		Realizations:          2,
		EquilibrationLong:     10,
		SweepsPerSample:       2,
		SamplesPerRealization: 3,
		WriteFiles:            true,
	})
	simulation.AssertCatalogMatchesMemory(t, result)

	stat := filepath.Join(result.Root, "stat-files", "L=3", "stat(L=3,T=2.5000).dat")
	data, err := os.ReadFile(stat)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 6 {
		t.Errorf("stat file has %d lines, want 6", lines)
	}
}
