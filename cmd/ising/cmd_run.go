package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/checkpoint"
	"github.com/nvandessel/ising/internal/config"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/logging"
	"github.com/nvandessel/ising/internal/metrics"
	"github.com/nvandessel/ising/internal/output"
	"github.com/nvandessel/ising/internal/progress"
	"github.com/nvandessel/ising/internal/rng"
	"github.com/nvandessel/ising/internal/sanitize"
	"github.com/nvandessel/ising/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [L [realizations [t_up [t_down [dt [tc y/n [inherit y/n [eq_long [eq_short [sweeps_per_sample [samples [suffix [root]]]]]]]]]]]]]",
		Short: "Anneal a lattice through a temperature schedule",
		Long: `Run the annealing schedule from t_up down to t_down in steps of dt,
optionally including the critical temperature. Each temperature runs the
configured number of realizations: an equilibration phase followed by a
sampling phase that records (E, M) every sweeps_per_sample sweeps.

Parameters come from defaults, ./ising.yaml (or --config), ISING_*
environment variables, positional arguments and finally flags. Positional
arguments are ignored when the first one starts with a shell redirection
character.

Examples:
  ising run --L 32 --realizations 4 --t-up 3.0 --t-down 1.5 --dt 0.1
  ising run 16 2 3 1.5 0.05 y y 10000 2000 10 100 run1 out
  ising run --resume latest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyPositional(cfg, args); err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			resume, _ := cmd.Flags().GetString("resume")
			quiet, _ := cmd.Flags().GetBool("quiet")
			label, _ := cmd.Flags().GetString("label")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			logger := newLogger(cfg)
			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logger.Warn("interrupted, stopping after the current sweep", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			report, runErr := executeRun(ctx, runOptions{
				cfg:     cfg,
				resume:  resume,
				label:   label,
				console: !quiet && !jsonOut,
				stdout:  cmd.OutOrStdout(),
				logger:  logger,
			})
			if report == nil {
				return runErr
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(report); err != nil {
					return err
				}
			} else if !quiet {
				printReport(cmd.OutOrStdout(), report)
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.Int("L", 0, "Lattice side length (square lattice)")
	f.Int("width", 0, "Lattice width (overrides --L for rectangular lattices)")
	f.Int("height", 0, "Lattice height (overrides --L for rectangular lattices)")
	f.Int("realizations", 0, "Realizations per temperature")
	f.Float64("t-up", 0, "Highest temperature")
	f.Float64("t-down", 0, "Lowest temperature")
	f.Float64("dt", 0, "Temperature step")
	f.Bool("critical", true, "Include the critical temperature in the schedule")
	f.Bool("inherit", true, "Start each temperature from the previous temperature's final configuration")
	f.Int("eq-long", 0, "Equilibration sweeps for fresh starts and the critical temperature")
	f.Int("eq-short", 0, "Equilibration sweeps for inherited starts")
	f.Int("sweeps-per-sample", 0, "Sweeps between captured samples")
	f.Int("samples", 0, "Samples per realization")
	f.String("suffix", "", "Suffix appended to output file names")
	f.Uint64("seed", 0, "Random seed")
	f.Bool("random-seed", false, "Seed from the clock instead of --seed")
	f.Bool("no-stats", false, "Do not write (E, M) statistics files")
	f.Bool("text-stats", false, "Write statistics as text instead of binary")
	f.Bool("no-spins", false, "Do not write spin configuration files")
	f.String("spin-layout", "", "Spin file layout: binary, line, grid")
	f.Bool("no-trace", false, "Do not write the log-spaced energy trace")
	f.Bool("no-catalog", false, "Do not record the run in the SQLite catalog")
	f.Bool("no-checkpoints", false, "Do not write checkpoints after each temperature")
	f.Int("checkpoint-keep", -1, "Checkpoints to keep (default from config)")
	f.String("metrics-file", "", "Write Prometheus metrics to this textfile at the end of the run")
	f.String("resume", "", "Resume from a checkpoint file, or \"latest\"")
	f.String("label", "", "Label stored with the run in the catalog")
	f.Bool("quiet", false, "Suppress banner, progress and summary")
	return cmd
}

// applyPositional maps the legacy positional parameter list onto cfg.
func applyPositional(cfg *config.IsingConfig, args []string) error {
	if len(args) == 0 || sanitize.IsRedirect(args[0]) {
		return nil
	}
	if len(args) > 13 {
		return fmt.Errorf("too many positional arguments: %d (max 13)", len(args))
	}

	atoi := func(i int, dst *int) error {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		*dst = n
		return nil
	}
	atof := func(i int, dst *float64) error {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		*dst = v
		return nil
	}
	yes := func(s string) bool { return s != "" && (s[0] == 'y' || s[0] == 'Y') }

	for i := range args {
		var err error
		switch i {
		case 0:
			err = atoi(i, &cfg.Lattice.Size)
			cfg.Lattice.Width, cfg.Lattice.Height = 0, 0
		case 1:
			err = atoi(i, &cfg.Sampling.Realizations)
		case 2:
			err = atof(i, &cfg.Schedule.Up)
		case 3:
			err = atof(i, &cfg.Schedule.Down)
		case 4:
			err = atof(i, &cfg.Schedule.Step)
		case 5:
			cfg.Schedule.IncludeCritical = yes(args[i])
		case 6:
			cfg.Schedule.Inherit = yes(args[i])
		case 7:
			err = atoi(i, &cfg.Sampling.EquilibrationLong)
		case 8:
			err = atoi(i, &cfg.Sampling.EquilibrationShort)
		case 9:
			err = atoi(i, &cfg.Sampling.SweepsPerSample)
		case 10:
			err = atoi(i, &cfg.Sampling.SamplesPerRealization)
		case 11:
			cfg.Output.Suffix = args[i]
		case 12:
			cfg.Output.Root = args[i]
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.IsingConfig) error {
	f := cmd.Flags()
	setInt := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	setFloat := func(name string, dst *float64) {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	// --no-* flags clear the matching setting.
	clearBool := func(name string, dst *bool) {
		if on, _ := f.GetBool(name); on {
			*dst = false
		}
	}

	if f.Changed("L") {
		cfg.Lattice.Size, _ = f.GetInt("L")
		cfg.Lattice.Width, cfg.Lattice.Height = 0, 0
	}
	setInt("width", &cfg.Lattice.Width)
	setInt("height", &cfg.Lattice.Height)
	setInt("realizations", &cfg.Sampling.Realizations)
	setFloat("t-up", &cfg.Schedule.Up)
	setFloat("t-down", &cfg.Schedule.Down)
	setFloat("dt", &cfg.Schedule.Step)
	setBool("critical", &cfg.Schedule.IncludeCritical)
	setBool("inherit", &cfg.Schedule.Inherit)
	setInt("eq-long", &cfg.Sampling.EquilibrationLong)
	setInt("eq-short", &cfg.Sampling.EquilibrationShort)
	setInt("sweeps-per-sample", &cfg.Sampling.SweepsPerSample)
	setInt("samples", &cfg.Sampling.SamplesPerRealization)
	setBool("random-seed", &cfg.Sampling.RandomSeed)
	if f.Changed("seed") {
		cfg.Sampling.Seed, _ = f.GetUint64("seed")
		cfg.Sampling.RandomSeed = false
	}
	if f.Changed("suffix") {
		cfg.Output.Suffix, _ = f.GetString("suffix")
	}
	if f.Changed("spin-layout") {
		layout, _ := f.GetString("spin-layout")
		cfg.Output.SpinLayout = constants.SpinLayout(layout)
	}
	if f.Changed("metrics-file") {
		cfg.Output.MetricsFile, _ = f.GetString("metrics-file")
	}
	if f.Changed("checkpoint-keep") {
		cfg.Output.CheckpointKeep, _ = f.GetInt("checkpoint-keep")
	}
	clearBool("no-stats", &cfg.Output.Stats)
	clearBool("no-spins", &cfg.Output.Spins)
	clearBool("no-trace", &cfg.Output.Trace)
	clearBool("no-catalog", &cfg.Output.Catalog)
	clearBool("no-checkpoints", &cfg.Output.Checkpoints)
	clearBool("text-stats", &cfg.Output.StatsBinary)
	return nil
}

type runOptions struct {
	cfg     *config.IsingConfig
	resume  string
	label   string
	console bool
	stdout  io.Writer
	logger  *slog.Logger
}

// runReport is the outcome of a run as printed or encoded as JSON.
type runReport struct {
	RunID        int64         `json:"run_id,omitempty"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Root         string        `json:"root"`
	Seed         uint64        `json:"seed"`
	Width        int           `json:"width"`
	Height       int           `json:"height"`
	Temperatures []float64     `json:"temperatures"`
	StartIndex   int           `json:"start_index"`
	ResumedFrom  string        `json:"resumed_from,omitempty"`
	Checkpoint   string        `json:"checkpoint,omitempty"`
	Stats        anneal.Stats  `json:"stats"`
	Duration     time.Duration `json:"duration_ns"`
}

// executeRun wires the driver to its sinks and observers and runs it. A
// non-nil report is returned whenever the driver was constructed, even if
// the run failed.
func executeRun(ctx context.Context, ro runOptions) (*runReport, error) {
	cfg := ro.cfg
	logger := ro.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stdout := ro.stdout
	if stdout == nil {
		stdout = io.Discard
	}
	root := outputRoot(cfg)

	// Random source: fresh, or restored from a checkpoint together with the
	// simulation parameters it was taken under.
	var (
		src         *rng.Stream
		snapshot    *anneal.Snapshot
		resumedFrom string
		parentRun   int64
	)
	if ro.resume != "" {
		ckpt, path, err := loadResume(root, ro.resume)
		if err != nil {
			return nil, err
		}
		if ckpt.ConfigYAML != "" {
			saved, err := config.Parse([]byte(ckpt.ConfigYAML))
			if err != nil {
				return nil, fmt.Errorf("decoding configuration from %s: %w", filepath.Base(path), err)
			}
			cfg.AdoptSimulation(saved)
		}
		if src, err = rng.Restore(ckpt.Snapshot.RNG); err != nil {
			return nil, fmt.Errorf("restoring random stream from %s: %w", filepath.Base(path), err)
		}
		snapshot = &ckpt.Snapshot
		resumedFrom = path
		parentRun = ckpt.RunID
	} else if cfg.Sampling.RandomSeed {
		src = rng.NewFromEntropy()
	} else {
		src = rng.New(cfg.Sampling.Seed)
	}

	dcfg, err := cfg.DriverConfig()
	if err != nil {
		return nil, err
	}

	cfgYAML, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}

	report := &runReport{
		Status:       store.StatusRunning,
		Root:         root,
		Seed:         src.Seed(),
		Width:        dcfg.Width,
		Height:       dcfg.Height,
		Temperatures: dcfg.Temperatures,
		ResumedFrom:  resumedFrom,
	}
	if snapshot != nil {
		report.StartIndex = snapshot.NextIndex
	}

	// Catalog
	var catalog *store.Catalog
	if cfg.Output.Catalog {
		catalog, err = store.Open(ctx, filepath.Join(root, constants.CatalogFile))
		if err != nil {
			return nil, err
		}
		defer catalog.Close()

		report.RunID, err = catalog.BeginRun(ctx, store.NewRun{
			Label:       sanitize.Label(ro.label),
			Width:       dcfg.Width,
			Height:      dcfg.Height,
			Seed:        src.Seed(),
			ConfigYAML:  string(cfgYAML),
			ResumedFrom: parentRun,
		})
		if err != nil {
			return nil, err
		}
		rows := make([]store.TemperatureRow, len(dcfg.Temperatures))
		for i, t := range dcfg.Temperatures {
			rows[i] = store.TemperatureRow{
				Index:         i,
				Temperature:   t,
				Equilibration: dcfg.EquilibrationFor(i),
				Realizations:  dcfg.Realizations,
			}
		}
		if err := catalog.RecordTemperatures(ctx, report.RunID, rows); err != nil {
			return nil, err
		}
	}

	// Sinks
	var sinks anneal.MultiSink
	if cfg.Output.Stats || cfg.Output.Spins || cfg.Output.Trace {
		sinks = append(sinks, output.NewFileSink(output.Options{
			Root:        root,
			Suffix:      cfg.Output.Suffix,
			Stats:       cfg.Output.Stats,
			StatsBinary: cfg.Output.StatsBinary,
			Spins:       cfg.Output.Spins,
			SpinLayout:  cfg.Output.SpinLayout,
			Trace:       cfg.Output.Trace,
		}))
	}
	if catalog != nil {
		sinks = append(sinks, catalog.NewSink(ctx, report.RunID))
	}

	m := metrics.New()
	events := logging.NewEventLogger(root, constants.EventsFile, cfg.Logging.Level)
	defer events.Close()

	opts := []anneal.Option{
		anneal.WithSink(sinks),
		anneal.WithLogger(logger),
		anneal.WithSweepHook(m.ObserveSweep),
		anneal.WithObserver(m.ObserveEvent),
		anneal.WithObserver(func(e anneal.Event) {
			events.Log(map[string]any{
				"event":       e.State.String(),
				"index":       e.TempIndex,
				"T":           e.Temperature,
				"realization": e.Realization,
				"inherited":   e.Inherited,
				"sweeps":      e.Sweeps,
			})
		}),
	}
	var ckpt *checkpoint.Checkpointer
	if cfg.Output.Checkpoints {
		ckpt = checkpoint.NewCheckpointer(root,
			checkpoint.WithRun(report.RunID, src.Seed()),
			checkpoint.WithConfigYAML(string(cfgYAML)),
			checkpoint.WithKeep(cfg.Output.CheckpointKeep),
			checkpoint.WithLogger(logger))
		opts = append(opts, anneal.WithCheckpointer(ckpt))
	}
	if snapshot != nil {
		opts = append(opts, anneal.WithResume(*snapshot))
	}
	if ro.console {
		bar := progress.New(stdout, progress.WithPrefix("      "))
		opts = append(opts,
			anneal.WithSweepHook(bar.SweepHook()),
			anneal.WithObserver(newConsoleObserver(stdout, dcfg.Realizations)))
	}

	d, err := anneal.NewDriver(dcfg, src, opts...)
	if err != nil {
		if catalog != nil {
			catalog.FinishRun(context.WithoutCancel(ctx), report.RunID, store.StatusFailed, err)
		}
		return nil, err
	}

	if ro.console {
		fmt.Fprint(stdout, banner(stdout, cfg, dcfg, root, src.Seed()))
	}
	logger.Info("run started",
		"run_id", report.RunID, "L", sizeString(dcfg.Width, dcfg.Height),
		"temperatures", len(dcfg.Temperatures), "start_index", report.StartIndex,
		"sweeps", d.TotalSweeps(), "seed", src.Seed())

	started := time.Now()
	runErr := d.Run(ctx)
	report.Duration = time.Since(started)
	report.Stats = d.Stats()
	if ckpt != nil {
		report.Checkpoint = ckpt.Last()
	}

	switch {
	case runErr == nil:
		report.Status = store.StatusCompleted
	case errors.Is(runErr, context.Canceled):
		report.Status = store.StatusCancelled
	case errors.Is(runErr, anneal.ErrWriteFailed):
		report.Status = store.StatusCompleted
	default:
		report.Status = store.StatusFailed
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	// The run context may already be cancelled; bookkeeping still happens.
	bg := context.WithoutCancel(ctx)
	if catalog != nil {
		if err := catalog.FinishRun(bg, report.RunID, report.Status, runErr); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if cfg.Output.MetricsFile != "" {
		m.SetWriteFailures(report.Stats.WriteFailures)
		if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	logger.Info("run finished",
		"run_id", report.RunID, "status", report.Status,
		"sweeps", report.Stats.Sweeps, "duration", report.Duration.Round(time.Millisecond))
	return report, runErr
}

func loadResume(root, ref string) (*checkpoint.Checkpoint, string, error) {
	if ref == "latest" {
		return checkpoint.Latest(root)
	}
	c, err := checkpoint.Load(root, ref)
	if err != nil {
		return nil, "", err
	}
	return c, ref, nil
}

func sizeString(w, h int) string {
	if w == h {
		return strconv.Itoa(w)
	}
	return fmt.Sprintf("%dx%d", w, h)
}

func banner(w io.Writer, cfg *config.IsingConfig, dcfg anneal.Config, root string, seed uint64) string {
	return progress.Banner(w, "2D Ising with PBCs", []progress.Field{
		{Key: "L", Value: sizeString(dcfg.Width, dcfg.Height)},
		{Key: "n_realizations", Value: dcfg.Realizations},
		{Key: "T_up", Value: cfg.Schedule.Up},
		{Key: "T_down", Value: cfg.Schedule.Down},
		{Key: "dT", Value: cfg.Schedule.Step},
		{Key: "Tc", Value: constants.CriticalTemperature},
		{Key: "Tc_is_considered", Value: cfg.Schedule.IncludeCritical},
		{Key: "use_last_config_per_temperature", Value: dcfg.Inherit},
		{Key: "equilib_steps_1st", Value: dcfg.EquilibrationLong},
		{Key: "equilib_steps_2nd", Value: dcfg.EquilibrationShort},
		{Key: "steps_per_sample", Value: dcfg.SweepsPerSample},
		{Key: "n_samples_per_realization", Value: dcfg.SamplesPerRealization},
		{Key: "seed", Value: seed},
		{Key: "out_suffix", Value: sanitize.Suffix(cfg.Output.Suffix)},
		{Key: "init_dir", Value: root},
		{Key: "print_energy_per_step", Value: cfg.Output.Trace},
		{Key: "export_spin_config", Value: cfg.Output.Spins},
		{Key: "export_stat", Value: cfg.Output.Stats},
	})
}

// newConsoleObserver prints the per-temperature and per-realization
// headings and the elapsed time of each temperature.
func newConsoleObserver(w io.Writer, realizations int) anneal.Observer {
	var tempStart time.Time
	inTemp := false
	finishTemp := func() {
		if inTemp {
			fmt.Fprintf(w, "# elapsed_time=%d secs.\n", int(time.Since(tempStart).Seconds()))
			fmt.Fprintln(w, progress.Separator())
		}
	}
	return func(e anneal.Event) {
		switch e.State {
		case anneal.StateForTemperature:
			finishTemp()
			inTemp = true
			tempStart = time.Now()
			fmt.Fprintf(w, "# T=%v\n", e.Temperature)
		case anneal.StateForRealization:
			fmt.Fprintf(w, " # Realization %d/%d: \n", e.Realization, realizations)
		case anneal.StateEquilibrating:
			fmt.Fprintf(w, " --> Equilibrating (%d steps) ... \n", e.Sweeps)
		case anneal.StateSampling:
			fmt.Fprintf(w, " --> GetSamples (%d steps) ... \n", e.Sweeps)
		case anneal.StateDone:
			finishTemp()
			inTemp = false
		}
	}
}

func printReport(w io.Writer, r *runReport) {
	fmt.Fprintf(w, "Run finished: %s\n", r.Status)
	if r.RunID != 0 {
		fmt.Fprintf(w, "  Run ID:        %d\n", r.RunID)
	}
	fmt.Fprintf(w, "  Lattice:       %s\n", sizeString(r.Width, r.Height))
	fmt.Fprintf(w, "  Temperatures:  %d of %d\n", r.Stats.Temperatures, len(r.Temperatures)-r.StartIndex)
	fmt.Fprintf(w, "  Sweeps:        %s\n", humanize.Comma(r.Stats.Sweeps))
	fmt.Fprintf(w, "  Flip attempts: %s (%.1f%% accepted)\n",
		humanize.Comma(r.Stats.Attempts), acceptance(r.Stats)*100)
	fmt.Fprintf(w, "  Samples:       %s\n", humanize.Comma(r.Stats.Captures))
	if r.Stats.WriteFailures > 0 {
		fmt.Fprintf(w, "  Write errors:  %s\n", humanize.Comma(r.Stats.WriteFailures))
	}
	fmt.Fprintf(w, "  Duration:      %s\n", r.Duration.Round(time.Millisecond))
	if r.Checkpoint != "" {
		fmt.Fprintf(w, "  Checkpoint:    %s\n", r.Checkpoint)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:         %s\n", r.Error)
	}
}

func acceptance(s anneal.Stats) float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Attempts)
}
