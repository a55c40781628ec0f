package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nvandessel/ising/internal/analysis"
	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/lattice"
	"github.com/nvandessel/ising/internal/output"
	"github.com/nvandessel/ising/internal/rng"
	"github.com/nvandessel/ising/internal/store"
)

// Runner orchestrates annealing experiments against a real catalog and
// output root.
type Runner struct {
	t       *testing.T
	root    string
	catalog *store.Catalog
}

// NewRunner creates a runner with an isolated output root and catalog.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	root := t.TempDir()

	c, err := store.Open(context.Background(), filepath.Join(root, constants.CatalogFile))
	if err != nil {
		t.Fatalf("NewRunner: failed to open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return &Runner{t: t, root: root, catalog: c}
}

// Root returns the output root used for file output.
func (r *Runner) Root() string { return r.root }

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(sc Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	cfg := sc.Config()
	seed := sc.Seed
	if seed == 0 {
		seed = rng.DefaultSeed
	}

	// Phase 1: register the run.
	runID, err := r.catalog.BeginRun(ctx, store.NewRun{
		Label:  sc.Name,
		Width:  cfg.Width,
		Height: cfg.Height,
		Seed:   seed,
	})
	if err != nil {
		r.t.Fatalf("Run(%s): BeginRun: %v", sc.Name, err)
	}
	rows := make([]store.TemperatureRow, len(cfg.Temperatures))
	for i, t := range cfg.Temperatures {
		rows[i] = store.TemperatureRow{
			Index:         i,
			Temperature:   t,
			Equilibration: cfg.EquilibrationFor(i),
			Realizations:  cfg.Realizations,
		}
	}
	if err := r.catalog.RecordTemperatures(ctx, runID, rows); err != nil {
		r.t.Fatalf("Run(%s): RecordTemperatures: %v", sc.Name, err)
	}

	// Phase 2: assemble sinks and hooks.
	mem := anneal.NewMemorySink(false)
	sinks := anneal.MultiSink{mem, r.catalog.NewSink(ctx, runID)}
	if sc.WriteFiles {
		sinks = append(sinks, output.NewFileSink(output.Options{
			Root:  r.root,
			Stats: true,
			Spins: true,
			Trace: true,
		}))
	}

	inherited := make(map[int][]bool)
	opts := []anneal.Option{
		anneal.WithSink(sinks),
		anneal.WithObserver(func(e anneal.Event) {
			if e.State == anneal.StateForRealization {
				inherited[e.TempIndex] = append(inherited[e.TempIndex], e.Inherited)
			}
		}),
	}

	var d *anneal.Driver
	var inconsistencies []string
	if sc.CheckConsistency {
		opts = append(opts, anneal.WithSweepHook(func(s anneal.SweepInfo) {
			l := d.Lattice()
			e, m := Recompute(l)
			if e != l.Energy() || m != l.Magnetization() {
				inconsistencies = append(inconsistencies, fmt.Sprintf(
					"T=%.4f r=%d step=%d: tracked (E=%d, M=%d), recomputed (E=%d, M=%d)",
					s.Phase.Temperature, s.Phase.Realization, s.Step, l.Energy(), l.Magnetization(), e, m))
			}
		}))
	}

	d, err = anneal.NewDriver(cfg, rng.New(seed), opts...)
	if err != nil {
		r.t.Fatalf("Run(%s): NewDriver: %v", sc.Name, err)
	}

	// Phase 3: run and close the catalog entry.
	runErr := d.Run(ctx)
	status := store.StatusCompleted
	if runErr != nil {
		status = store.StatusFailed
	}
	if err := r.catalog.FinishRun(ctx, runID, status, runErr); err != nil {
		r.t.Fatalf("Run(%s): FinishRun: %v", sc.Name, err)
	}
	if runErr != nil {
		r.t.Fatalf("Run(%s): %v", sc.Name, runErr)
	}

	// Phase 4: summarize every temperature.
	sites := cfg.Width * cfg.Height
	temps := make([]TemperatureResult, len(cfg.Temperatures))
	for i, t := range cfg.Temperatures {
		captured := mem.SamplesAt(i)
		series := analysis.Series{
			Energy:        make([]float64, len(captured)),
			Magnetization: make([]float64, len(captured)),
		}
		for j, c := range captured {
			series.Energy[j] = float64(c.Sample.Energy)
			series.Magnetization[j] = float64(c.Sample.Magnetization)
		}
		sum, err := analysis.Summarize(t, sites, series)
		if err != nil {
			r.t.Fatalf("Run(%s): summarize T=%v: %v", sc.Name, t, err)
		}
		temps[i] = TemperatureResult{Index: i, Summary: sum, Inherited: inherited[i]}
	}

	return Result{
		Scenario:        sc,
		Temperatures:    temps,
		Stats:           d.Stats(),
		Memory:          mem,
		Catalog:         r.catalog,
		RunID:           runID,
		Root:            r.root,
		Inconsistencies: inconsistencies,
	}
}

// Recompute returns the energy and magnetization of l computed from scratch
// over right and down bonds, without touching the tracked values.
func Recompute(l *lattice.Lattice) (energy, magnetization int) {
	for i := range l.Size() {
		s := int(l.Spin(i))
		nb := l.Neighbors(i)
		energy -= s * (int(l.Spin(nb[lattice.Right])) + int(l.Spin(nb[lattice.Down])))
		magnetization += s
	}
	return energy, magnetization
}
