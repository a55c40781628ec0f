package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
	"github.com/nvandessel/ising/internal/pathutil"
)

// Options selects which files a FileSink writes.
type Options struct {
	Root   string
	Suffix string

	Stats       bool
	StatsBinary bool

	Spins      bool
	SpinLayout constants.SpinLayout

	Trace bool
}

// file is a buffered output file.
type file struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func openFile(path string, appendMode bool) (*file, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", pathutil.RedactPath(path), err)
	}
	return &file{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (f *file) close() error {
	if f == nil {
		return nil
	}
	flushErr := f.w.Flush()
	closeErr := f.f.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("failed to close %s: %w", pathutil.RedactPath(f.path), err)
	}
	return nil
}

// FileSink writes one statistics, spin and trace file per (L, T).
//
// Statistics and spin files are truncated by the first realization and
// appended to by later ones. The trace file is truncated only by the
// equilibration phase of the first realization.
type FileSink struct {
	opts Options

	stat  *file
	spin  *file
	trace *file
}

// NewFileSink returns a FileSink. Output directories are created lazily.
func NewFileSink(opts Options) *FileSink {
	if opts.SpinLayout == "" {
		opts.SpinLayout = constants.SpinLayoutBinary
	}
	return &FileSink{opts: opts}
}

// Path returns the file a kind would be written to for phase p.
func (s *FileSink) Path(kind pathutil.Kind, p anneal.PhaseInfo) string {
	binary := false
	switch kind {
	case pathutil.KindStat:
		binary = s.opts.StatsBinary
	case pathutil.KindSpin:
		binary = s.opts.SpinLayout.Binary()
	}
	return pathutil.FilePath(s.opts.Root, kind, p.Width, p.Height, p.Temperature, s.opts.Suffix, binary)
}

func (s *FileSink) BeginPhase(p anneal.PhaseInfo) error {
	var errs []error

	if s.opts.Trace {
		appendMode := p.Realization > 1 || p.StartStep > 1
		f, err := s.open(pathutil.KindEnergy, p, appendMode)
		s.trace = f
		errs = append(errs, err)
	}

	if p.Phase == anneal.PhaseSampling {
		appendMode := p.Realization > 1
		if s.opts.Stats {
			f, err := s.open(pathutil.KindStat, p, appendMode)
			s.stat = f
			errs = append(errs, err)
		}
		if s.opts.Spins {
			f, err := s.open(pathutil.KindSpin, p, appendMode)
			s.spin = f
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileSink) open(kind pathutil.Kind, p anneal.PhaseInfo, appendMode bool) (*file, error) {
	if err := pathutil.EnsureDirs(s.opts.Root, p.Width, p.Height, kind); err != nil {
		return nil, err
	}
	return openFile(s.Path(kind, p), appendMode)
}

func (s *FileSink) Capture(p anneal.PhaseInfo, smp anneal.Sample, spins []int8) error {
	var errs []error
	if s.opts.Stats {
		if s.stat == nil {
			errs = append(errs, fmt.Errorf("statistics file for T=%.4f is not open", p.Temperature))
		} else {
			rec := StatRecord{Energy: int32(smp.Energy), Magnetization: int32(smp.Magnetization)}
			errs = append(errs, WriteStat(s.stat.w, rec, s.opts.StatsBinary))
		}
	}
	if s.opts.Spins {
		if s.spin == nil {
			errs = append(errs, fmt.Errorf("spin file for T=%.4f is not open", p.Temperature))
		} else {
			errs = append(errs, WriteSpins(s.spin.w, spins, p.Height, s.opts.SpinLayout))
		}
	}
	return errors.Join(errs...)
}

func (s *FileSink) Trace(p anneal.PhaseInfo, tp anneal.TracePoint) error {
	if !s.opts.Trace {
		return nil
	}
	if s.trace == nil {
		return fmt.Errorf("trace file for T=%.4f is not open", p.Temperature)
	}
	return WriteTrace(s.trace.w, tp)
}

func (s *FileSink) EndPhase(anneal.PhaseInfo) error {
	err := errors.Join(s.stat.close(), s.spin.close(), s.trace.close())
	s.stat, s.spin, s.trace = nil, nil, nil
	return err
}
