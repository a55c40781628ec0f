package simulation

import (
	"context"
	"testing"
)

// AssertOrdered asserts that the mean |m| per site at temperature t is at
// least minAbsM.
func AssertOrdered(t *testing.T, result Result, temp, minAbsM float64) {
	t.Helper()
	tr, ok := result.At(temp)
	if !ok {
		t.Errorf("AssertOrdered: temperature %v not in run", temp)
		return
	}
	if tr.Summary.AbsMagnet < minAbsM {
		t.Errorf("AssertOrdered: T=%v: <|m|> = %.4f < %.4f", temp, tr.Summary.AbsMagnet, minAbsM)
	}
}

// AssertDisordered asserts that the mean |m| per site at temperature t is
// at most maxAbsM.
func AssertDisordered(t *testing.T, result Result, temp, maxAbsM float64) {
	t.Helper()
	tr, ok := result.At(temp)
	if !ok {
		t.Errorf("AssertDisordered: temperature %v not in run", temp)
		return
	}
	if tr.Summary.AbsMagnet > maxAbsM {
		t.Errorf("AssertDisordered: T=%v: <|m|> = %.4f > %.4f", temp, tr.Summary.AbsMagnet, maxAbsM)
	}
}

// AssertEnergyIncreasesWithTemperature asserts that the mean energy per
// site grows strictly with temperature across the run.
func AssertEnergyIncreasesWithTemperature(t *testing.T, result Result) {
	t.Helper()
	for i := range result.Temperatures {
		for j := range result.Temperatures {
			a, b := result.Temperatures[i].Summary, result.Temperatures[j].Summary
			if a.Temperature < b.Temperature && !(a.Energy < b.Energy) {
				t.Errorf("AssertEnergyIncreasesWithTemperature: <e>(%v) = %.4f not below <e>(%v) = %.4f",
					a.Temperature, a.Energy, b.Temperature, b.Energy)
			}
		}
	}
}

// AssertPhysicalBounds asserts -2 <= e <= 2 and |m| <= 1 for every
// captured sample.
func AssertPhysicalBounds(t *testing.T, result Result) {
	t.Helper()
	for _, c := range result.Memory.Samples {
		n := float64(c.Phase.Width * c.Phase.Height)
		e := float64(c.Sample.Energy) / n
		m := float64(c.Sample.Magnetization) / n
		if e < -2 || e > 2 {
			t.Errorf("AssertPhysicalBounds: T=%v step %d: e = %v", c.Phase.Temperature, c.Sample.Step, e)
		}
		if m < -1 || m > 1 {
			t.Errorf("AssertPhysicalBounds: T=%v step %d: m = %v", c.Phase.Temperature, c.Sample.Step, m)
		}
	}
}

// AssertConsistent asserts that tracked energy and magnetization never
// drifted from a full recomputation.
func AssertConsistent(t *testing.T, result Result) {
	t.Helper()
	if !result.Scenario.CheckConsistency {
		t.Error("AssertConsistent: scenario did not enable CheckConsistency")
		return
	}
	for i, msg := range result.Inconsistencies {
		if i == 10 {
			t.Errorf("AssertConsistent: %d more", len(result.Inconsistencies)-i)
			break
		}
		t.Errorf("AssertConsistent: %s", msg)
	}
}

// AssertInheritance asserts which realizations started from the previous
// temperature's configuration: none at index 0, and all at later indices
// when the scenario inherits.
func AssertInheritance(t *testing.T, result Result) {
	t.Helper()
	for _, tr := range result.Temperatures {
		want := result.Scenario.Inherit && tr.Index > 0
		for r, got := range tr.Inherited {
			if got != want {
				t.Errorf("AssertInheritance: index %d realization %d inherited = %v, want %v",
					tr.Index, r+1, got, want)
			}
		}
	}
}

// AssertCatalogMatchesMemory asserts that the catalog recorded exactly the
// samples the in-memory sink captured, in order.
func AssertCatalogMatchesMemory(t *testing.T, result Result) {
	t.Helper()
	ctx := context.Background()
	for _, tr := range result.Temperatures {
		rows, err := result.Catalog.Samples(ctx, result.RunID, tr.Summary.Temperature)
		if err != nil {
			t.Errorf("AssertCatalogMatchesMemory: T=%v: %v", tr.Summary.Temperature, err)
			continue
		}
		mem := result.Memory.SamplesAt(tr.Index)
		if len(rows) != len(mem) {
			t.Errorf("AssertCatalogMatchesMemory: T=%v: catalog has %d samples, memory %d",
				tr.Summary.Temperature, len(rows), len(mem))
			continue
		}
		for i := range rows {
			if rows[i].Energy != mem[i].Sample.Energy || rows[i].Magnetization != mem[i].Sample.Magnetization ||
				rows[i].Step != mem[i].Sample.Step || rows[i].Realization != mem[i].Phase.Realization {
				t.Errorf("AssertCatalogMatchesMemory: T=%v sample %d: catalog %+v, memory %+v",
					tr.Summary.Temperature, i, rows[i], mem[i].Sample)
				break
			}
		}
	}
}
