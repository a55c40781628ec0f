package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "ising.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "ising.db")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	id, err := c.BeginRun(ctx, NewRun{Width: 4, Height: 4, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	run, err := c.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
}

func TestBeginFinishRun(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	id, err := c.BeginRun(ctx, NewRun{Label: "sweep", Width: 8, Height: 4, Seed: 1 << 63, ConfigYAML: "lattice: {}"})
	require.NoError(t, err)

	require.NoError(t, c.FinishRun(ctx, id, StatusFailed, errors.New("disk full")))

	run, err := c.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sweep", run.Label)
	assert.Equal(t, 8, run.Width)
	assert.Equal(t, 4, run.Height)
	assert.Equal(t, uint64(1<<63), run.Seed)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "disk full", run.Error)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, "lattice: {}", run.ConfigYAML)
}

func TestFinishRun_NotFound(t *testing.T) {
	c := openTestCatalog(t)
	err := c.FinishRun(context.Background(), 42, StatusCompleted, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = c.GetRun(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	for i := 0; i < 3; i++ {
		_, err := c.BeginRun(ctx, NewRun{Width: 2, Height: 2, Seed: uint64(i)})
		require.NoError(t, err)
	}

	runs, err := c.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Greater(t, runs[0].ID, runs[1].ID, "newest first")

	runs, err = c.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRecordTemperatures(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)
	id, err := c.BeginRun(ctx, NewRun{Width: 2, Height: 2})
	require.NoError(t, err)

	rows := []TemperatureRow{
		{Index: 0, Temperature: 3, Equilibration: 1000, Realizations: 2},
		{Index: 1, Temperature: 2.5, Equilibration: 100, Realizations: 2},
	}
	require.NoError(t, c.RecordTemperatures(ctx, id, rows))

	got, err := c.Temperatures(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestCatalogSink_WithDriver(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)
	id, err := c.BeginRun(ctx, NewRun{Width: 4, Height: 4, Seed: 9})
	require.NoError(t, err)

	cfg := anneal.Config{
		Width: 4, Height: 4,
		Temperatures:          []float64{3.0, 2.0},
		Critical:              2.26918531421,
		Realizations:          2,
		Inherit:               true,
		EquilibrationLong:     10,
		EquilibrationShort:    5,
		SweepsPerSample:       2,
		SamplesPerRealization: 3,
	}
	mem := anneal.NewMemorySink(false)
	d, err := anneal.NewDriver(cfg, rng.New(9), anneal.WithSink(anneal.MultiSink{c.NewSink(ctx, id), mem}))
	require.NoError(t, err)
	require.NoError(t, d.Run(ctx))
	require.NoError(t, c.FinishRun(ctx, id, StatusCompleted, nil))

	for i, temp := range cfg.Temperatures {
		got, err := c.Samples(ctx, id, temp)
		require.NoError(t, err)
		want := mem.SamplesAt(i)
		require.Len(t, got, len(want))
		for k := range want {
			assert.Equal(t, want[k].Sample.Energy, got[k].Energy)
			assert.Equal(t, want[k].Sample.Magnetization, got[k].Magnetization)
			assert.Equal(t, want[k].Sample.Step, got[k].Step)
			assert.Equal(t, want[k].Phase.Realization, got[k].Realization)
		}
	}

	run, err := c.GetRun(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 12, run.Samples)
	assert.Equal(t, StatusCompleted, run.Status)
}

func TestCatalogSink_CaptureWithoutPhase(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)
	sink := c.NewSink(ctx, 1)
	err := sink.Capture(anneal.PhaseInfo{}, anneal.Sample{}, nil)
	assert.Error(t, err)
}

func TestDeleteRun_Cascades(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)
	id, err := c.BeginRun(ctx, NewRun{Width: 2, Height: 2})
	require.NoError(t, err)

	sink := c.NewSink(ctx, id)
	p := anneal.PhaseInfo{Phase: anneal.PhaseSampling, Temperature: 2, Realization: 1}
	require.NoError(t, sink.BeginPhase(p))
	require.NoError(t, sink.Capture(p, anneal.Sample{Step: 1, Energy: -8, Magnetization: 4}, nil))
	require.NoError(t, sink.EndPhase(p))

	require.NoError(t, c.DeleteRun(ctx, id))
	samples, err := c.Samples(ctx, id, 2)
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.ErrorIs(t, c.DeleteRun(ctx, id), ErrRunNotFound)
}
