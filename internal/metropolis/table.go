// Package metropolis implements single-spin-flip Metropolis updates for the
// periodic Ising lattice.
package metropolis

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTemperature indicates a temperature that is not a finite positive number.
var ErrInvalidTemperature = errors.New("metropolis: temperature must be positive and finite")

// MaxDelta is the largest energy change a single flip can produce on a
// lattice with coordination number four.
const MaxDelta = 8

const tableLen = MaxDelta + 1

// Table caches exp(-delta/T) for every reachable delta in {-8, -6, ..., 8}.
// The zero value is unbuilt; call Rebuild before WeightFor.
type Table struct {
	temperature float64
	built       bool
	weights     [tableLen]float64
}

// NewTable returns a table built for temperature t.
func NewTable(t float64) (*Table, error) {
	tbl := &Table{}
	if err := tbl.Rebuild(t); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Rebuild recomputes the weights for temperature t. On error the previous
// contents are left unchanged.
func (tbl *Table) Rebuild(t float64) error {
	if !(t > 0) || math.IsInf(t, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, t)
	}
	for k := range tbl.weights {
		delta := 2*k - MaxDelta
		if delta == 0 {
			tbl.weights[k] = 1
			continue
		}
		tbl.weights[k] = math.Exp(-float64(delta) / t)
	}
	tbl.temperature = t
	tbl.built = true
	return nil
}

// Temperature returns the temperature of the last successful Rebuild.
func (tbl *Table) Temperature() float64 { return tbl.temperature }

// WeightFor returns exp(-delta/T). It panics if the table has not been built
// or delta is not an even value in [-8, 8].
func (tbl *Table) WeightFor(delta int) float64 {
	if !tbl.built {
		panic("metropolis: weight table used before Rebuild")
	}
	if delta < -MaxDelta || delta > MaxDelta || delta%2 != 0 {
		panic(fmt.Sprintf("metropolis: delta %d outside weight table", delta))
	}
	return tbl.weights[(delta+MaxDelta)/2]
}
