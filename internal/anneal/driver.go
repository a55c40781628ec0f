package anneal

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/ising/internal/lattice"
	"github.com/nvandessel/ising/internal/logging"
	"github.com/nvandessel/ising/internal/metropolis"
	"github.com/nvandessel/ising/internal/rng"
	"github.com/nvandessel/ising/internal/schedule"
)

// maxKeptWriteErrors bounds how many sink failures are retained for the
// final error; the rest are only counted.
const maxKeptWriteErrors = 16

// SweepInfo describes a completed sweep.
type SweepInfo struct {
	Phase     PhaseInfo
	Step      int // global step within the realization
	PhaseStep int // 1-based step within the phase
	Result    metropolis.SweepResult
	Duration  time.Duration
}

// SweepHook is called after every sweep.
type SweepHook func(SweepInfo)

// Stats summarizes a run.
type Stats struct {
	Temperatures  int
	Realizations  int
	Sweeps        int64
	Attempts      int64
	Accepted      int64
	Captures      int64
	TracePoints   int64
	WriteFailures int64
}

// RunError locates a failure that aborted the run.
type RunError struct {
	TempIndex   int
	Temperature float64
	Realization int
	Step        int
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("anneal: T=%.4f (index %d) realization %d step %d: %v",
		e.Temperature, e.TempIndex, e.Realization, e.Step, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Option configures a Driver.
type Option func(*Driver)

// WithSink sets the sink that receives captures and trace points.
func WithSink(s Sink) Option {
	return func(d *Driver) { d.sink = s }
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

// WithSweepHook registers a per-sweep callback.
func WithSweepHook(h SweepHook) Option {
	return func(d *Driver) { d.sweepHooks = append(d.sweepHooks, h) }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithStepper replaces the default Metropolis stepper.
func WithStepper(s *metropolis.Stepper) Option {
	return func(d *Driver) { d.stepper = s }
}

// WithCheckpointer saves a snapshot after every completed temperature.
func WithCheckpointer(c Checkpointer) Option {
	return func(d *Driver) { d.checkpointer = c }
}

// WithResume starts the run from a snapshot. The random source passed to
// NewDriver must already be restored from the snapshot.
func WithResume(s Snapshot) Option {
	return func(d *Driver) { d.resume = &s }
}

// Driver runs the annealing schedule. It is not safe for concurrent use.
type Driver struct {
	cfg     Config
	lat     *lattice.Lattice
	table   metropolis.Table
	stepper *metropolis.Stepper
	src     rng.Source

	sink         Sink
	observers    []Observer
	sweepHooks   []SweepHook
	logger       *slog.Logger
	checkpointer Checkpointer
	resume       *Snapshot

	start int
	last  []bool
	state State
	stats Stats

	writeErrs []error
}

// NewDriver validates cfg and prepares a driver. No sweep is performed.
func NewDriver(cfg Config, src rng.Source, opts ...Option) (*Driver, error) {
	lat, err := lattice.New(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}

	cfg.Temperatures = append([]float64(nil), cfg.Temperatures...)
	d := &Driver{
		cfg:     cfg,
		lat:     lat,
		stepper: metropolis.NewStepper(),
		src:     src,
		sink:    NopSink{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.resume != nil {
		if err := d.applySnapshot(*d.resume); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) applySnapshot(s Snapshot) error {
	if s.Width != d.cfg.Width || s.Height != d.cfg.Height {
		return fmt.Errorf("%w: lattice %dx%d, snapshot %dx%d",
			ErrSnapshotMismatch, d.cfg.Width, d.cfg.Height, s.Width, s.Height)
	}
	if len(s.Temperatures) != len(d.cfg.Temperatures) {
		return fmt.Errorf("%w: schedule length %d, snapshot %d",
			ErrSnapshotMismatch, len(d.cfg.Temperatures), len(s.Temperatures))
	}
	for i, t := range s.Temperatures {
		if t != d.cfg.Temperatures[i] {
			return fmt.Errorf("%w: temperature %d differs", ErrSnapshotMismatch, i)
		}
	}
	if s.NextIndex < 0 || s.NextIndex > len(d.cfg.Temperatures) {
		return fmt.Errorf("%w: next index %d out of range", ErrSnapshotMismatch, s.NextIndex)
	}
	if s.Last != nil && len(s.Last) != d.lat.Size() {
		return fmt.Errorf("%w: configuration has %d sites", lattice.ErrSizeMismatch, len(s.Last))
	}
	d.start = s.NextIndex
	d.last = append([]bool(nil), s.Last...)
	if s.Last == nil {
		d.last = nil
	}
	return nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() Config { return d.cfg }

// Lattice exposes the lattice for inspection after or between runs.
func (d *Driver) Lattice() *lattice.Lattice { return d.lat }

// State returns the current state.
func (d *Driver) State() State { return d.state }

// Stats returns the counters accumulated so far.
func (d *Driver) Stats() Stats { return d.stats }

// TotalSweeps returns the number of sweeps the remaining schedule will run.
func (d *Driver) TotalSweeps() int64 {
	var n int64
	for i := d.start; i < len(d.cfg.Temperatures); i++ {
		per := d.cfg.EquilibrationFor(i) + d.cfg.SamplingSweeps()
		n += int64(per) * int64(d.cfg.Realizations)
	}
	return n
}

// Run executes the schedule. Sink failures do not stop the run; they are
// returned together, wrapped in ErrWriteFailed, once the schedule completes.
// Cancelling ctx stops the run between sweeps.
func (d *Driver) Run(ctx context.Context) error {
	d.writeErrs = nil

	for i := d.start; i < len(d.cfg.Temperatures); i++ {
		if err := d.runTemperature(ctx, i); err != nil {
			return err
		}
		d.stats.Temperatures++

		if d.checkpointer != nil {
			d.saveSnapshot(ctx, i+1)
		}
	}

	d.transition(Event{State: StateDone})
	d.logger.Info("annealing complete",
		"temperatures", d.stats.Temperatures,
		"sweeps", d.stats.Sweeps,
		"captures", d.stats.Captures,
		"write_failures", d.stats.WriteFailures)

	if d.stats.WriteFailures > 0 {
		return fmt.Errorf("%w: %d failures: %w", ErrWriteFailed, d.stats.WriteFailures, errors.Join(d.writeErrs...))
	}
	return nil
}

func (d *Driver) runTemperature(ctx context.Context, i int) error {
	t := d.cfg.Temperatures[i]
	if err := d.table.Rebuild(t); err != nil {
		return &RunError{TempIndex: i, Temperature: t, Err: err}
	}

	eq := d.cfg.EquilibrationFor(i)
	sampling := d.cfg.SamplingSweeps()
	d.transition(Event{State: StateForTemperature, TempIndex: i, Temperature: t, Sweeps: eq})
	d.logger.Info("temperature started",
		"index", i, "T", t, "equilibration", eq, "sampling", sampling,
		"realizations", d.cfg.Realizations)

	for r := 1; r <= d.cfg.Realizations; r++ {
		inherited, err := d.prepareRealization(i)
		if err != nil {
			return &RunError{TempIndex: i, Temperature: t, Realization: r, Err: err}
		}
		d.transition(Event{State: StateForRealization, TempIndex: i, Temperature: t, Realization: r, Inherited: inherited})
		d.logger.Debug("realization started", "T", t, "realization", r, "inherited", inherited,
			"E", d.lat.Energy(), "M", d.lat.Magnetization())

		base := PhaseInfo{
			TempIndex:   i,
			Temperature: t,
			Realization: r,
			Width:       d.cfg.Width,
			Height:      d.cfg.Height,
		}

		eqPhase := base
		eqPhase.Phase = PhaseEquilibration
		eqPhase.StartStep, eqPhase.EndStep = 1, eq
		d.transition(Event{State: StateEquilibrating, TempIndex: i, Temperature: t, Realization: r, Sweeps: eq})
		if err := d.runPhase(ctx, eqPhase); err != nil {
			return err
		}

		smPhase := base
		smPhase.Phase = PhaseSampling
		smPhase.StartStep, smPhase.EndStep = eq+1, eq+sampling
		d.transition(Event{State: StateSampling, TempIndex: i, Temperature: t, Realization: r, Sweeps: sampling})
		if err := d.runPhase(ctx, smPhase); err != nil {
			return err
		}
		d.stats.Realizations++
	}

	if d.cfg.Inherit {
		d.last = d.lat.ExportAsBoolVector()
	}
	return nil
}

// prepareRealization initializes the lattice for a realization at index i
// and reports whether the inherited configuration was used.
func (d *Driver) prepareRealization(i int) (bool, error) {
	inherit := d.cfg.Inherit && i > 0 && d.last != nil
	if inherit {
		if err := d.lat.AssignFrom(d.last); err != nil {
			return false, err
		}
	} else {
		d.lat.RandomizeSpins(d.src)
	}
	d.lat.RecomputeEnergyMagnetization()
	return inherit, nil
}

func (d *Driver) runPhase(ctx context.Context, p PhaseInfo) error {
	d.sinkErr(p, "begin phase", d.sink.BeginPhase(p))
	defer func() { d.sinkErr(p, "end phase", d.sink.EndPhase(p)) }()

	var desired []int
	if d.cfg.Trace {
		desired = schedule.LogSpace(p.StartStep, p.EndStep, d.cfg.TraceScale, true, true)
	}

	capture := p.Phase == PhaseSampling
	ie := 0
	for step, t := p.StartStep, 1; step <= p.EndStep; step, t = step+1, t+1 {
		if err := ctx.Err(); err != nil {
			return &RunError{TempIndex: p.TempIndex, Temperature: p.Temperature,
				Realization: p.Realization, Step: step, Err: err}
		}

		began := time.Now()
		res := d.stepper.RunOneSweep(d.lat, &d.table, d.src)
		elapsed := time.Since(began)

		d.stats.Sweeps++
		d.stats.Attempts += int64(res.Attempts)
		d.stats.Accepted += int64(res.Accepted)

		if ie < len(desired) && step == desired[ie] {
			tp := TracePoint{
				Step:                 step,
				EnergyPerSite:        d.lat.EnergyPerSite(),
				MagnetizationPerSite: d.lat.MagnetizationPerSite(),
			}
			d.sinkErr(p, "trace", d.sink.Trace(p, tp))
			d.stats.TracePoints++
			ie++
		}

		if capture && (t%d.cfg.SweepsPerSample == 0 || step == p.EndStep) {
			s := Sample{Step: step, Energy: d.lat.Energy(), Magnetization: d.lat.Magnetization()}
			d.sinkErr(p, "capture", d.sink.Capture(p, s, d.lat.Spins()))
			d.stats.Captures++
		}

		for _, h := range d.sweepHooks {
			h(SweepInfo{Phase: p, Step: step, PhaseStep: t, Result: res, Duration: elapsed})
		}
		if d.logger.Enabled(ctx, logging.LevelTrace) {
			d.logger.Log(ctx, logging.LevelTrace, "sweep",
				"T", p.Temperature, "step", step, "accepted", res.Accepted,
				"E", d.lat.Energy(), "M", d.lat.Magnetization())
		}
	}
	return nil
}

func (d *Driver) saveSnapshot(ctx context.Context, next int) {
	s := Snapshot{
		Width:        d.cfg.Width,
		Height:       d.cfg.Height,
		Temperatures: append([]float64(nil), d.cfg.Temperatures...),
		NextIndex:    next,
		Last:         append([]bool(nil), d.last...),
	}
	if d.last == nil {
		s.Last = nil
	}
	if m, ok := d.src.(encoding.BinaryMarshaler); ok {
		state, err := m.MarshalBinary()
		if err != nil {
			d.recordWriteErr(fmt.Errorf("snapshot rng state: %w", err))
			return
		}
		s.RNG = state
	}
	if err := d.checkpointer.SaveSnapshot(ctx, s); err != nil {
		d.logger.Warn("checkpoint failed", "next_index", next, "error", err)
		d.recordWriteErr(fmt.Errorf("checkpoint before index %d: %w", next, err))
		return
	}
	d.logger.Debug("checkpoint saved", "next_index", next)
}

func (d *Driver) sinkErr(p PhaseInfo, op string, err error) {
	if err == nil {
		return
	}
	d.logger.Warn("sink write failed",
		"op", op, "T", p.Temperature, "realization", p.Realization,
		"phase", p.Phase.String(), "error", err)
	d.recordWriteErr(fmt.Errorf("%s at T=%.4f realization %d: %w", op, p.Temperature, p.Realization, err))
}

func (d *Driver) recordWriteErr(err error) {
	d.stats.WriteFailures++
	if len(d.writeErrs) < maxKeptWriteErrors {
		d.writeErrs = append(d.writeErrs, err)
	}
}

func (d *Driver) transition(e Event) {
	d.state = e.State
	for _, o := range d.observers {
		o(e)
	}
}
