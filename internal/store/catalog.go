package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("store: run not found")

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one row of the runs table.
type Run struct {
	ID          int64      `json:"id"`
	Label       string     `json:"label,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Seed        uint64     `json:"seed"`
	ConfigYAML  string     `json:"-"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ResumedFrom int64      `json:"resumed_from,omitempty"`
	Samples     int64      `json:"samples"`
}

// NewRun describes a run about to start.
type NewRun struct {
	Label       string
	Width       int
	Height      int
	Seed        uint64
	ConfigYAML  string
	ResumedFrom int64
}

// TemperatureRow is one row of the temperatures table.
type TemperatureRow struct {
	Index         int     `json:"index"`
	Temperature   float64 `json:"temperature"`
	Equilibration int     `json:"equilibration"`
	Realizations  int     `json:"realizations"`
}

// SampleRow is one captured sample.
type SampleRow struct {
	Temperature   float64 `json:"temperature"`
	Realization   int     `json:"realization"`
	Step          int     `json:"step"`
	Energy        int     `json:"energy"`
	Magnetization int     `json:"magnetization"`
}

// Catalog is the SQLite run catalog.
type Catalog struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Catalog{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.dbPath }

// Close closes the database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// BeginRun inserts a run in the running state and returns its id.
func (c *Catalog) BeginRun(ctx context.Context, r NewRun) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resumed any
	if r.ResumedFrom > 0 {
		resumed = r.ResumedFrom
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (label, started_at, width, height, seed, config_yaml, status, resumed_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Label, time.Now().UTC().Format(time.RFC3339Nano), r.Width, r.Height,
		int64(r.Seed), r.ConfigYAML, StatusRunning, resumed)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// RecordTemperatures stores the schedule of a run.
func (c *Catalog) RecordTemperatures(ctx context.Context, runID int64, rows []TemperatureRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO temperatures (run_id, idx, temperature, equilibration, realizations)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare temperature insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Index, r.Temperature, r.Equilibration, r.Realizations); err != nil {
			return fmt.Errorf("failed to insert temperature %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

// FinishRun records the final status of a run. runErr may be nil.
func (c *Catalog) FinishRun(ctx context.Context, runID int64, status string, runErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var msg any
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns one run.
func (c *Catalog) GetRun(ctx context.Context, runID int64) (*Run, error) {
	runs, err := c.queryRuns(ctx, `WHERE r.id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first. limit <= 0 means no limit.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return c.queryRuns(ctx, `ORDER BY r.id DESC`)
	}
	return c.queryRuns(ctx, `ORDER BY r.id DESC LIMIT ?`, limit)
}

func (c *Catalog) queryRuns(ctx context.Context, tail string, args ...any) ([]Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT r.id, COALESCE(r.label, ''), r.started_at, r.finished_at, r.width, r.height, r.seed,
		       COALESCE(r.config_yaml, ''), r.status, COALESCE(r.error, ''), COALESCE(r.resumed_from, 0),
		       (SELECT COUNT(*) FROM samples s WHERE s.run_id = r.id)
		FROM runs r `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			seed     int64
		)
		if err := rows.Scan(&r.ID, &r.Label, &started, &finished, &r.Width, &r.Height, &seed,
			&r.ConfigYAML, &r.Status, &r.Error, &r.ResumedFrom, &r.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Seed = uint64(seed)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			if ft, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
				r.FinishedAt = &ft
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Temperatures returns the schedule of a run ordered by index.
func (c *Catalog) Temperatures(ctx context.Context, runID int64) ([]TemperatureRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT idx, temperature, equilibration, realizations
		FROM temperatures WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query temperatures: %w", err)
	}
	defer rows.Close()

	var out []TemperatureRow
	for rows.Next() {
		var r TemperatureRow
		if err := rows.Scan(&r.Index, &r.Temperature, &r.Equilibration, &r.Realizations); err != nil {
			return nil, fmt.Errorf("failed to scan temperature: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Samples returns the samples of a run at temperature t in capture order.
func (c *Catalog) Samples(ctx context.Context, runID int64, t float64) ([]SampleRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT temperature, realization, step, energy, magnetization
		FROM samples WHERE run_id = ? AND abs(temperature - ?) < 1e-9
		ORDER BY realization, step`, runID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		var s SampleRow
		if err := rows.Scan(&s.Temperature, &s.Realization, &s.Step, &s.Energy, &s.Magnetization); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through cascading keys, its samples.
func (c *Catalog) DeleteRun(ctx context.Context, runID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}
