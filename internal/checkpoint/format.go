package checkpoint

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/ising/internal/anneal"
)

// FormatVersion is the current checkpoint file version.
const FormatVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (256MB).
const MaxDecompressedSize = 256 * 1024 * 1024

// ErrChecksumMismatch indicates a payload that does not match its header.
var ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch")

// Header is the plain-text first line of a checkpoint file.
type Header struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Checksum     string    `json:"checksum"`
	RunID        int64     `json:"run_id"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	NextIndex    int       `json:"next_index"`
	Temperatures int       `json:"temperatures"`
	Compressed   bool      `json:"compressed"`
}

// Checkpoint is the full content of a checkpoint file.
type Checkpoint struct {
	CreatedAt  time.Time       `json:"created_at"`
	RunID      int64           `json:"run_id"`
	Seed       uint64          `json:"seed"`
	ConfigYAML string          `json:"config_yaml"`
	Snapshot   anneal.Snapshot `json:"snapshot"`
}

// Write stores c at path as a header line followed by a gzip payload.
func Write(path string, c *Checkpoint) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:      FormatVersion,
		CreatedAt:    c.CreatedAt,
		Checksum:     checksum(compressed.Bytes()),
		RunID:        c.RunID,
		Width:        c.Snapshot.Width,
		Height:       c.Snapshot.Height,
		NextIndex:    c.Snapshot.NextIndex,
		Temperatures: len(c.Snapshot.Temperatures),
		Compressed:   true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write to a temporary file and rename so a crash never leaves a
	// truncated checkpoint under the final name.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := errors.Join(w.Flush(), f.Close()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	return nil
}

// Read reads a checkpoint file, verifies the checksum and decodes the payload.
func Read(path string) (*Checkpoint, error) {
	header, compressed, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if err := verify(header, compressed); err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var c Checkpoint
	if err := json.Unmarshal(decompressed, &c); err != nil {
		return nil, fmt.Errorf("parsing checkpoint data: %w", err)
	}
	return &c, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return parseHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of a checkpoint without decompressing it.
func VerifyChecksum(path string) error {
	header, compressed, err := readRaw(path)
	if err != nil {
		return err
	}
	return verify(header, compressed)
}

func readRaw(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, compressed, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", header.Version)
	}
	return &header, nil
}

func verify(h *Header, compressed []byte) error {
	if actual := checksum(compressed); actual != h.Checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, h.Checksum, actual)
	}
	return nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
