package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tessellae/loopforge/internal/ir"
)

// RunStatus marks how a recipe application ended.
type RunStatus string

const (
	RunApplied RunStatus = "applied"
	RunFailed  RunStatus = "failed"
)

// Run is one recorded recipe application.
type Run struct {
	Token      string
	KernelName string
	CreatedAt  string
	Status     RunStatus
	Error      string

	// Canonical is the canonical JSON of the model after the run: the
	// final model for an applied run, the last good model for a failed
	// one.
	Canonical []byte

	// Ops are the operations that were applied, in order.
	Ops []ir.OpRecord
}

// ErrRunNotFound is returned by GetRun for unknown tokens.
var ErrRunNotFound = errors.New("run not found")

// RecordRun writes a run and its operations atomically.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_token, kernel_name, status, error, kernel_canonical)
		 VALUES (?, ?, ?, ?, ?)`,
		run.Token, run.KernelName, string(run.Status), run.Error, run.Canonical,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.Token, err)
	}
	for _, op := range run.Ops {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_ops (run_token, seq, op, iname, factor, tag, combine)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.Token, op.Seq, op.Op, op.Iname, op.Factor, op.Tag, string(op.Combine),
		); err != nil {
			return fmt.Errorf("insert run op %d: %w", op.Seq, err)
		}
	}
	return tx.Commit()
}

// GetRun loads one run with its operations.
func (s *Store) GetRun(ctx context.Context, token string) (*Run, error) {
	run := &Run{Token: token}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT kernel_name, created_at, status, error, kernel_canonical
		 FROM runs WHERE run_token = ?`, token,
	).Scan(&run.KernelName, &run.CreatedAt, &status, &run.Error, &run.Canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", token, err)
	}
	run.Status = RunStatus(status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, iname, factor, tag, combine
		 FROM run_ops WHERE run_token = ? ORDER BY seq`, token)
	if err != nil {
		return nil, fmt.Errorf("load run ops %s: %w", token, err)
	}
	defer rows.Close()
	for rows.Next() {
		var op ir.OpRecord
		var combine string
		if err := rows.Scan(&op.Seq, &op.Op, &op.Iname, &op.Factor, &op.Tag, &combine); err != nil {
			return nil, fmt.Errorf("scan run op: %w", err)
		}
		op.Combine = ir.CombineStrategy(combine)
		run.Ops = append(run.Ops, op)
	}
	return run, rows.Err()
}

// ListRuns returns run tokens for a kernel, oldest first.
func (s *Store) ListRuns(ctx context.Context, kernelName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_token FROM runs WHERE kernel_name = ? ORDER BY created_at, run_token`,
		kernelName)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", kernelName, err)
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan run token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}
