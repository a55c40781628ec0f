package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nvandessel/ising/internal/anneal"
)

// CatalogSink records captured samples of one run. Samples of a sampling
// phase are written in a single transaction committed at the end of the phase.
type CatalogSink struct {
	catalog *Catalog
	runID   int64
	ctx     context.Context

	tx   *sql.Tx
	stmt *sql.Stmt
}

// NewSink returns a sink recording into run runID.
func (c *Catalog) NewSink(ctx context.Context, runID int64) *CatalogSink {
	return &CatalogSink{catalog: c, runID: runID, ctx: ctx}
}

func (s *CatalogSink) BeginPhase(p anneal.PhaseInfo) error {
	if p.Phase != anneal.PhaseSampling {
		return nil
	}
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()

	tx, err := s.catalog.db.BeginTx(s.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sample transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(s.ctx, `
		INSERT OR REPLACE INTO samples (run_id, temperature, realization, step, energy, magnetization)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *CatalogSink) Capture(p anneal.PhaseInfo, smp anneal.Sample, _ []int8) error {
	if s.stmt == nil {
		return errors.New("store: sample transaction not open")
	}
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()

	if _, err := s.stmt.ExecContext(s.ctx, s.runID, p.Temperature, p.Realization,
		smp.Step, smp.Energy, smp.Magnetization); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (s *CatalogSink) Trace(anneal.PhaseInfo, anneal.TracePoint) error { return nil }

func (s *CatalogSink) EndPhase(p anneal.PhaseInfo) error {
	if s.tx == nil {
		return nil
	}
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()

	s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("failed to commit samples for T=%.4f: %w", p.Temperature, err)
	}
	return nil
}
