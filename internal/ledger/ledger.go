// Package ledger keeps a history of refinement runs in SQLite: what was
// run, with which settings, how it ended and which pairs failed to score.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - runs and failures
const currentSchemaVersion = 1

// Status of a run.
type Status string

const (
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

// Counts of a run's stages.
type Counts struct {
	Records    int
	Candidates int
	Scored     int
	Failed     int
	Edges      int
	Clusters   int
	Merged     int
}

// Run is a row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     Status
	Stage      string
	Message    string
	SchemaDir  string
	OutputDir  string
	Settings   string
	Counts
}

// Ledger is the run history database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Begin records the start of a run and returns its id, a UUIDv7 so ids sort
// by start time.
func (l *Ledger) Begin(ctx context.Context, schemaDir, outputDir, settings string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status, schema_dir, output_dir, settings)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, l.now().UTC().Format(time.RFC3339Nano), string(Running), schemaDir, outputDir, settings)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordFailures stores pairs that failed to score. Recording a pair twice
// is a no-op.
func (l *Ledger) RecordFailures(ctx context.Context, run string, failures []*bsr.ScoringFailure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record failures: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (run_id, a, b, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, a, b) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record failures: %w", err)
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, run, f.Pair.A, f.Pair.B, f.Error()); err != nil {
			return fmt.Errorf("record failure %s: %w", f.Pair, err)
		}
	}
	return tx.Commit()
}

// Finish records how a run ended. A nil err is a success; otherwise stage
// names where it failed.
func (l *Ledger) Finish(ctx context.Context, run string, c Counts, stage string, runErr error) error {
	status, message := Succeeded, ""
	if runErr != nil {
		status, message = Failed, runErr.Error()
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, status = ?, stage = ?, message = ?,
			records = ?, candidates = ?, scored = ?, failed = ?,
			edges = ?, clusters = ?, merged = ?
		WHERE id = ?
	`,
		l.now().UTC().Format(time.RFC3339Nano), string(status), stage, message,
		c.Records, c.Candidates, c.Scored, c.Failed,
		c.Edges, c.Clusters, c.Merged,
		run,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: no run %s", run)
	}
	return nil
}

// Runs lists the most recent runs first, at most limit of them when limit is
// positive.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `
		SELECT id, started_at, finished_at, status, stage, message,
			schema_dir, output_dir, settings,
			records, candidates, scored, failed, edges, clusters, merged
		FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			status   string
		)
		if err := rows.Scan(
			&r.ID, &started, &finished, &status, &r.Stage, &r.Message,
			&r.SchemaDir, &r.OutputDir, &r.Settings,
			&r.Records, &r.Candidates, &r.Scored, &r.Failed, &r.Edges, &r.Clusters, &r.Merged,
		); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}

		r.Status = Status(status)
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("list runs: bad start time of %s: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("list runs: bad finish time of %s: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Failures returns the recorded failures of a run ordered by pair.
func (l *Ledger) Failures(ctx context.Context, run string) ([]*bsr.ScoringFailure, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT a, b, reason FROM failures WHERE run_id = ? ORDER BY a, b
	`, run)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var failures []*bsr.ScoringFailure
	for rows.Next() {
		f := &bsr.ScoringFailure{}
		if err := rows.Scan(&f.Pair.A, &f.Pair.B, &f.Reason); err != nil {
			return nil, fmt.Errorf("list failures: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
