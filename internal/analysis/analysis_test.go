package analysis

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/ising/internal/output"
	"github.com/nvandessel/ising/internal/store"
)

func TestSummarize_Constant(t *testing.T) {
	// Fully ordered 4x4 lattice: E = -32, M = 16 every sample.
	s := Series{
		Energy:        []float64{-32, -32, -32},
		Magnetization: []float64{16, 16, 16},
	}
	sum, err := Summarize(1.5, 16, s)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Samples)
	assert.InDelta(t, -2.0, sum.Energy, 1e-12)
	assert.InDelta(t, 1.0, sum.AbsMagnet, 1e-12)
	assert.InDelta(t, 0.0, sum.SpecificHeat, 1e-12)
	assert.InDelta(t, 0.0, sum.Susceptibility, 1e-12)
	assert.InDelta(t, 2.0/3.0, sum.Binder, 1e-12)
	assert.InDelta(t, 0.0, sum.EnergyErr, 1e-12)
}

func TestSummarize_Fluctuations(t *testing.T) {
	// N = 4, T = 2. E in {-8, 0}: <E^2>-<E>^2 = 16 -> C = 16/(4*4) = 1.
	// M in {4, -4}: <M^2>-<|M|>^2 = 0 -> chi = 0.
	s := Series{
		Energy:        []float64{-8, 0},
		Magnetization: []float64{4, -4},
	}
	sum, err := Summarize(2, 4, s)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, sum.Energy, 1e-12)
	assert.InDelta(t, 1.0, sum.SpecificHeat, 1e-12)
	assert.InDelta(t, 0.0, sum.Susceptibility, 1e-12)
	assert.InDelta(t, 1.0, sum.AbsMagnet, 1e-12)

	// M in {4, 0}: <M^2> = 8, <|M|> = 2 -> chi = (8-4)/(4*2) = 0.5.
	s.Magnetization = []float64{4, 0}
	sum, err = Summarize(2, 4, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sum.Susceptibility, 1e-12)
}

func TestSummarize_ZeroMagnetizationBinder(t *testing.T) {
	sum, err := Summarize(3, 4, Series{Energy: []float64{0, 0}, Magnetization: []float64{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum.Binder)
	assert.False(t, math.IsNaN(sum.Binder))
}

func TestSummarize_Errors(t *testing.T) {
	_, err := Summarize(2, 4, Series{})
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = Summarize(2, 4, Series{Energy: []float64{1}, Magnetization: nil})
	assert.Error(t, err)

	_, err = Summarize(0, 4, Series{Energy: []float64{1}, Magnetization: []float64{1}})
	assert.Error(t, err)

	_, err = Summarize(2, 0, Series{Energy: []float64{1}, Magnetization: []float64{1}})
	assert.Error(t, err)
}

func TestFromSampleRows(t *testing.T) {
	s := FromSampleRows([]store.SampleRow{
		{Energy: -18, Magnetization: 9},
		{Energy: -10, Magnetization: -3},
	})
	assert.Equal(t, []float64{-18, -10}, s.Energy)
	assert.Equal(t, []float64{9, -3}, s.Magnetization)
}

func TestReadStatFile(t *testing.T) {
	for _, asBinary := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, output.WriteStat(&buf, output.StatRecord{Energy: -18, Magnetization: 9}, asBinary))
		require.NoError(t, output.WriteStat(&buf, output.StatRecord{Energy: -2, Magnetization: 1}, asBinary))

		path := filepath.Join(t.TempDir(), "stat.dat")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

		s, err := ReadStatFile(path, asBinary)
		require.NoError(t, err)
		assert.Equal(t, []float64{-18, -2}, s.Energy)
		assert.Equal(t, []float64{9, 1}, s.Magnetization)
	}

	_, err := ReadStatFile(filepath.Join(t.TempDir(), "missing.dat"), false)
	assert.Error(t, err)
}
