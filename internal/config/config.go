// Package config provides unified configuration loading for ising.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/schedule"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no explicit
// config path is given.
const DefaultFileName = "ising.yaml"

// IsingConfig contains all ising configuration settings.
type IsingConfig struct {
	// Lattice contains the lattice geometry.
	Lattice LatticeConfig `json:"lattice" yaml:"lattice"`

	// Schedule contains the temperature schedule.
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`

	// Sampling contains sweep counts and the random seed.
	Sampling SamplingConfig `json:"sampling" yaml:"sampling"`

	// Output contains what is written and where.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LatticeConfig configures the lattice geometry.
type LatticeConfig struct {
	// Size is the side length L of an L x L lattice.
	Size int `json:"size" yaml:"size"`

	// Width and Height override Size for rectangular lattices. Zero means Size.
	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`
}

// Dimensions returns the effective width and height.
func (c LatticeConfig) Dimensions() (int, int) {
	w, h := c.Width, c.Height
	if w == 0 {
		w = c.Size
	}
	if h == 0 {
		h = c.Size
	}
	return w, h
}

// ScheduleConfig configures the temperature schedule.
type ScheduleConfig struct {
	// Down and Up bound the linear range; they are swapped if reversed.
	Down float64 `json:"t_down" yaml:"t_down"`
	Up   float64 `json:"t_up" yaml:"t_up"`

	// Step is the spacing of the linear range.
	Step float64 `json:"dt" yaml:"dt"`

	// IncludeCritical appends the critical temperature to the schedule.
	IncludeCritical bool `json:"include_critical" yaml:"include_critical"`

	// Inherit carries the final configuration of each temperature into the next.
	Inherit bool `json:"inherit" yaml:"inherit"`
}

// SamplingConfig configures sweep counts.
type SamplingConfig struct {
	Realizations          int `json:"realizations" yaml:"realizations"`
	EquilibrationLong     int `json:"equilibration_long" yaml:"equilibration_long"`
	EquilibrationShort    int `json:"equilibration_short" yaml:"equilibration_short"`
	SweepsPerSample       int `json:"sweeps_per_sample" yaml:"sweeps_per_sample"`
	SamplesPerRealization int `json:"samples_per_realization" yaml:"samples_per_realization"`

	// Seed fixes the random stream. Zero together with RandomSeed=true
	// seeds from the clock.
	Seed       uint64 `json:"seed" yaml:"seed"`
	RandomSeed bool   `json:"random_seed" yaml:"random_seed"`
}

// OutputConfig configures what is written and where.
type OutputConfig struct {
	// Root is the directory under which all output directories are created.
	Root string `json:"root" yaml:"root"`

	// Suffix is appended to every output file name before the extension.
	Suffix string `json:"suffix" yaml:"suffix"`

	Stats       bool `json:"stats" yaml:"stats"`
	StatsBinary bool `json:"stats_binary" yaml:"stats_binary"`

	Spins      bool                 `json:"spins" yaml:"spins"`
	SpinLayout constants.SpinLayout `json:"spin_layout" yaml:"spin_layout"`

	Trace      bool    `json:"trace" yaml:"trace"`
	TraceScale float64 `json:"trace_scale" yaml:"trace_scale"`

	// Catalog records runs and samples in the SQLite catalog.
	Catalog bool `json:"catalog" yaml:"catalog"`

	// Checkpoints writes a resumable snapshot after every temperature.
	Checkpoints bool `json:"checkpoints" yaml:"checkpoints"`

	// CheckpointKeep is how many checkpoints survive rotation. Zero keeps
	// the newest one; a negative value disables rotation.
	CheckpointKeep int `json:"checkpoint_keep" yaml:"checkpoint_keep"`

	// MetricsFile, if set, receives Prometheus text metrics at the end of a run.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to <root>/events.jsonl.
	// "trace" additionally logs every sweep.
	Level string `json:"level" yaml:"level"`
}

// Default returns an IsingConfig with the reference parameters.
func Default() *IsingConfig {
	return &IsingConfig{
		Lattice: LatticeConfig{
			Size: constants.DefaultLatticeSize,
		},
		Schedule: ScheduleConfig{
			Down:            constants.DefaultTemperatureDown,
			Up:              constants.DefaultTemperatureUp,
			Step:            constants.DefaultTemperatureStep,
			IncludeCritical: true,
			Inherit:         true,
		},
		Sampling: SamplingConfig{
			Realizations:          constants.DefaultRealizations,
			EquilibrationLong:     constants.DefaultEquilibrationLong,
			EquilibrationShort:    constants.DefaultEquilibrationShort,
			SweepsPerSample:       constants.DefaultSweepsPerSample,
			SamplesPerRealization: constants.DefaultSamplesPerRealization,
			Seed:                  12345,
		},
		Output: OutputConfig{
			Root:           ".",
			Stats:          true,
			StatsBinary:    true,
			Spins:          true,
			SpinLayout:     constants.SpinLayoutBinary,
			Trace:          true,
			TraceScale:     constants.DefaultTraceScale,
			Catalog:        true,
			Checkpoints:    true,
			CheckpointKeep: constants.DefaultCheckpointKeep,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from defaults, then a YAML file, then environment
// variables. An empty path falls back to ./ising.yaml when it exists; a
// non-empty path must exist.
func Load(path string) (*IsingConfig, error) {
	config := Default()

	if path == "" {
		if _, statErr := os.Stat(DefaultFileName); statErr == nil {
			path = DefaultFileName
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Keys absent from the file keep their defaults.
func LoadFromFile(path string) (*IsingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.Output.Root = expandEnvVars(config.Output.Root)

	return config, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*IsingConfig, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// AdoptSimulation copies the lattice, schedule and sampling sections of
// other into c, leaving output and logging untouched.
func (c *IsingConfig) AdoptSimulation(other *IsingConfig) {
	c.Lattice = other.Lattice
	c.Schedule = other.Schedule
	c.Sampling = other.Sampling
	c.Output.Trace = other.Output.Trace
	c.Output.TraceScale = other.Output.TraceScale
}

// Marshal renders the configuration as YAML.
func (c *IsingConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is valid.
func (c *IsingConfig) Validate() error {
	var errs []error

	w, h := c.Lattice.Dimensions()
	if w <= 0 || h <= 0 {
		errs = append(errs, fmt.Errorf("lattice dimensions must be positive, got %dx%d", w, h))
	}

	if c.Schedule.Down <= 0 || c.Schedule.Up <= 0 {
		errs = append(errs, fmt.Errorf("temperatures must be positive, got t_down=%v t_up=%v", c.Schedule.Down, c.Schedule.Up))
	}
	if c.Schedule.Down != c.Schedule.Up && c.Schedule.Step <= 0 {
		errs = append(errs, fmt.Errorf("dt must be positive for a temperature range, got %v", c.Schedule.Step))
	}

	s := c.Sampling
	if s.Realizations < 1 {
		errs = append(errs, fmt.Errorf("realizations must be >= 1, got %d", s.Realizations))
	}
	if s.EquilibrationLong < 0 || s.EquilibrationShort < 0 {
		errs = append(errs, fmt.Errorf("equilibration sweeps must be non-negative, got %d/%d", s.EquilibrationLong, s.EquilibrationShort))
	}
	if s.SweepsPerSample < 1 {
		errs = append(errs, fmt.Errorf("sweeps_per_sample must be >= 1, got %d", s.SweepsPerSample))
	}
	if s.SamplesPerRealization < 1 {
		errs = append(errs, fmt.Errorf("samples_per_realization must be >= 1, got %d", s.SamplesPerRealization))
	}

	if !c.Output.SpinLayout.Valid() {
		errs = append(errs, fmt.Errorf("invalid spin_layout: %s (valid: binary, line, grid)", c.Output.SpinLayout))
	}
	if c.Output.Trace && c.Output.TraceScale <= 1 {
		errs = append(errs, fmt.Errorf("trace_scale must be > 1, got %v", c.Output.TraceScale))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Temperatures builds the descending temperature schedule.
func (c *IsingConfig) Temperatures() ([]float64, error) {
	ts, err := schedule.Linear(c.Schedule.Down, c.Schedule.Up, c.Schedule.Step)
	if err != nil {
		return nil, err
	}
	if c.Schedule.IncludeCritical {
		ts = schedule.WithCritical(ts, constants.CriticalTemperature)
	}
	return schedule.Descending(ts), nil
}

// DriverConfig converts the configuration into the driver's parameter set.
func (c *IsingConfig) DriverConfig() (anneal.Config, error) {
	ts, err := c.Temperatures()
	if err != nil {
		return anneal.Config{}, fmt.Errorf("building temperature schedule: %w", err)
	}
	w, h := c.Lattice.Dimensions()
	return anneal.Config{
		Width:                 w,
		Height:                h,
		Temperatures:          ts,
		Critical:              constants.CriticalTemperature,
		Realizations:          c.Sampling.Realizations,
		Inherit:               c.Schedule.Inherit,
		EquilibrationLong:     c.Sampling.EquilibrationLong,
		EquilibrationShort:    c.Sampling.EquilibrationShort,
		SweepsPerSample:       c.Sampling.SweepsPerSample,
		SamplesPerRealization: c.Sampling.SamplesPerRealization,
		Trace:                 c.Output.Trace,
		TraceScale:            c.Output.TraceScale,
	}, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *IsingConfig) {
	if v := os.Getenv("ISING_L"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Lattice.Size = n
		}
	}
	if v := os.Getenv("ISING_REALIZATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Sampling.Realizations = n
		}
	}
	if v := os.Getenv("ISING_T_DOWN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Schedule.Down = f
		}
	}
	if v := os.Getenv("ISING_T_UP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Schedule.Up = f
		}
	}
	if v := os.Getenv("ISING_DT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Schedule.Step = f
		}
	}
	if v := os.Getenv("ISING_INHERIT"); v != "" {
		config.Schedule.Inherit = isTrue(v)
	}
	if v := os.Getenv("ISING_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Sampling.Seed = n
			config.Sampling.RandomSeed = false
		}
	}
	if v := os.Getenv("ISING_OUTPUT_ROOT"); v != "" {
		config.Output.Root = v
	}
	if v := os.Getenv("ISING_SUFFIX"); v != "" {
		config.Output.Suffix = v
	}
	if v := os.Getenv("ISING_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "y", "yes":
		return true
	}
	return false
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
