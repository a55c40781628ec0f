package simulation_test

import (
	"testing"

	"github.com/nvandessel/ising/internal/simulation"
)

// TestCoolDownOrders anneals an 8x8 lattice from the disordered phase
// through the critical region. Below Tc the inherited configuration should
// settle into a magnetized state.
func TestCoolDownOrders(t *testing.T) {
	if testing.Short() {
		t.Skip("physics scenario")
	}
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:                  "cool-down",
		Width:                 8,
		Height:                8,
		Temperatures:          []float64{3.0, 2.5, 2.0, 1.5},
		Realizations:          2,
		Inherit:               true,
		EquilibrationLong:     5000,
		EquilibrationShort:    3000,
		SweepsPerSample:       10,
		SamplesPerRealization: 100,
		Seed:                  2024,
	})

	simulation.AssertOrdered(t, result, 1.5, 0.75)
	simulation.AssertDisordered(t, result, 3.0, 0.5)
	simulation.AssertEnergyIncreasesWithTemperature(t, result)
	simulation.AssertPhysicalBounds(t, result)
	simulation.AssertInheritance(t, result)
	simulation.AssertCatalogMatchesMemory(t, result)
}

// TestHotLatticeDisordered checks that far above Tc the magnetization
// averages out.
func TestHotLatticeDisordered(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:                  "hot",
		Width:                 8,
		Height:                8,
		Temperatures:          []float64{6.0},
		EquilibrationLong:     500,
		SweepsPerSample:       5,
		SamplesPerRealization: 200,
	})

	simulation.AssertDisordered(t, result, 6.0, 0.35)
	simulation.AssertPhysicalBounds(t, result)

	tr, _ := result.At(6.0)
	if tr.Summary.Energy > 0 || tr.Summary.Energy < -1 {
		t.Errorf("<e>(6.0) = %.4f, want in [-1, 0]", tr.Summary.Energy)
	}
}
