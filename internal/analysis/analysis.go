// Package analysis reduces captured (E, M) samples to thermodynamic
// estimates for one temperature.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/nvandessel/ising/internal/output"
	"github.com/nvandessel/ising/internal/store"
)

// ErrNoSamples is returned when there is nothing to summarize.
var ErrNoSamples = errors.New("analysis: no samples")

// Summary holds per-temperature estimates. Energies and magnetizations are
// per site.
type Summary struct {
	Temperature    float64 `json:"temperature"`
	Sites          int     `json:"sites"`
	Samples        int     `json:"samples"`
	Energy         float64 `json:"energy"`
	EnergyErr      float64 `json:"energy_err"`
	AbsMagnet      float64 `json:"abs_magnetization"`
	AbsMagnetErr   float64 `json:"abs_magnetization_err"`
	SpecificHeat   float64 `json:"specific_heat"`
	Susceptibility float64 `json:"susceptibility"`
	Binder         float64 `json:"binder"`
}

// Series is a set of total energy and magnetization samples.
type Series struct {
	Energy        []float64
	Magnetization []float64
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Energy) }

// FromStatRecords converts decoded stat file records.
func FromStatRecords(recs []output.StatRecord) Series {
	s := Series{
		Energy:        make([]float64, len(recs)),
		Magnetization: make([]float64, len(recs)),
	}
	for i, r := range recs {
		s.Energy[i] = float64(r.Energy)
		s.Magnetization[i] = float64(r.Magnetization)
	}
	return s
}

// FromSampleRows converts catalog samples.
func FromSampleRows(rows []store.SampleRow) Series {
	s := Series{
		Energy:        make([]float64, len(rows)),
		Magnetization: make([]float64, len(rows)),
	}
	for i, r := range rows {
		s.Energy[i] = float64(r.Energy)
		s.Magnetization[i] = float64(r.Magnetization)
	}
	return s
}

// ReadStatFile decodes a stat file written by the output sink.
func ReadStatFile(path string, asBinary bool) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()

	recs, err := output.ReadStats(f, asBinary)
	if err != nil {
		return Series{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return FromStatRecords(recs), nil
}

// Summarize computes
//
//	C = (<E^2> - <E>^2) / (N T^2)
//	chi = (<M^2> - <|M|>^2) / (N T)
//	U = 1 - <m^4> / (3 <m^2>^2)
//
// with population variances. U is 0 when <m^2> is 0.
func Summarize(t float64, sites int, s Series) (Summary, error) {
	n := s.Len()
	if n == 0 {
		return Summary{}, ErrNoSamples
	}
	if len(s.Magnetization) != n {
		return Summary{}, fmt.Errorf("analysis: %d energies but %d magnetizations", n, len(s.Magnetization))
	}
	if sites < 1 {
		return Summary{}, fmt.Errorf("analysis: invalid site count %d", sites)
	}
	if !(t > 0) {
		return Summary{}, fmt.Errorf("analysis: invalid temperature %v", t)
	}

	N := float64(sites)
	e := make([]float64, n)
	absM := make([]float64, n)
	m2 := make([]float64, n)
	m4 := make([]float64, n)
	for i := range n {
		e[i] = s.Energy[i] / N
		m := s.Magnetization[i] / N
		absM[i] = math.Abs(m)
		m2[i] = m * m
		m4[i] = m2[i] * m2[i]
	}

	sum := Summary{
		Temperature: t,
		Sites:       sites,
		Samples:     n,
	}
	var eVar, mVar float64
	sum.Energy, eVar = stat.PopMeanVariance(e, nil)
	sum.AbsMagnet, mVar = stat.PopMeanVariance(absM, nil)

	// Per-site variances scale by N^2 back to totals; divide by N once more.
	sum.SpecificHeat = eVar * N / (t * t)
	sum.Susceptibility = mVar * N / t

	if n > 1 {
		sum.EnergyErr = stat.StdErr(stat.StdDev(e, nil), float64(n))
		sum.AbsMagnetErr = stat.StdErr(stat.StdDev(absM, nil), float64(n))
	}

	if mean2 := stat.Mean(m2, nil); mean2 > 0 {
		sum.Binder = 1 - stat.Mean(m4, nil)/(3*mean2*mean2)
	}
	return sum, nil
}
