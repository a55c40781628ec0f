// Package output serializes statistics, spin snapshots and energy traces
// to the per-(L, T) files and reads statistics back for analysis.
package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nvandessel/ising/internal/anneal"
	"github.com/nvandessel/ising/internal/constants"
)

// StatRecordSize is the size in bytes of one binary statistics record.
const StatRecordSize = 8

// ErrTruncated indicates a binary statistics file whose length is not a
// multiple of StatRecordSize.
var ErrTruncated = errors.New("output: truncated statistics record")

// StatRecord is one (E, M) pair as stored on disk.
type StatRecord struct {
	Energy        int32
	Magnetization int32
}

// WriteStat writes one statistics record, either as "E\tM\n" or as two
// little-endian int32 values.
func WriteStat(w io.Writer, r StatRecord, asBinary bool) error {
	if asBinary {
		var buf [StatRecordSize]byte
		binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Energy))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Magnetization))
		_, err := w.Write(buf[:])
		return err
	}
	_, err := fmt.Fprintf(w, "%d\t%d\n", r.Energy, r.Magnetization)
	return err
}

// WriteSpins writes one spin snapshot. height is the row length of the grid layout.
func WriteSpins(w io.Writer, spins []int8, height int, layout constants.SpinLayout) error {
	switch layout {
	case constants.SpinLayoutBinary:
		buf := make([]byte, len(spins))
		for i, s := range spins {
			buf[i] = byte(s)
		}
		_, err := w.Write(buf)
		return err

	case constants.SpinLayoutLine:
		buf := make([]byte, 0, len(spins)+1)
		for _, s := range spins {
			buf = append(buf, spinChar(s))
		}
		buf = append(buf, '\n')
		_, err := w.Write(buf)
		return err

	case constants.SpinLayoutGrid:
		if height <= 0 || len(spins)%height != 0 {
			return fmt.Errorf("output: %d spins do not form rows of %d", len(spins), height)
		}
		buf := make([]byte, 0, len(spins)+len(spins)/height+2)
		for i, s := range spins {
			buf = append(buf, spinChar(s))
			if (i+1)%height == 0 {
				buf = append(buf, '\n')
			}
		}
		buf = append(buf, '#', '\n')
		_, err := w.Write(buf)
		return err
	}
	return fmt.Errorf("output: unknown spin layout %q", layout)
}

// spinChar maps -1/+1 to '0'/'1'.
func spinChar(s int8) byte {
	return byte('0' + (int(s)+1)/2)
}

// WriteTrace writes "step\tE\tM\n" with six significant digits.
func WriteTrace(w io.Writer, tp anneal.TracePoint) error {
	buf := make([]byte, 0, 48)
	buf = strconv.AppendInt(buf, int64(tp.Step), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, tp.EnergyPerSite, 'g', 6, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, tp.MagnetizationPerSite, 'g', 6, 64)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// ReadStats reads every record from a statistics file.
func ReadStats(r io.Reader, asBinary bool) ([]StatRecord, error) {
	if asBinary {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read statistics: %w", err)
		}
		if len(data)%StatRecordSize != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(data)%StatRecordSize)
		}
		out := make([]StatRecord, 0, len(data)/StatRecordSize)
		for off := 0; off < len(data); off += StatRecordSize {
			out = append(out, StatRecord{
				Energy:        int32(binary.LittleEndian.Uint32(data[off : off+4])),
				Magnetization: int32(binary.LittleEndian.Uint32(data[off+4 : off+8])),
			})
		}
		return out, nil
	}

	var out []StatRecord
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		var rec StatRecord
		if _, err := fmt.Sscanf(text, "%d\t%d", &rec.Energy, &rec.Magnetization); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse statistics record %q: %w", line, text, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statistics: %w", err)
	}
	return out, nil
}
