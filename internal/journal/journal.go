// Package journal persists the raw inbound frames of every negotiation run
// in SQLite so a run can be listed and replayed later.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/session"
)

// ErrRunNotFound is returned when no run with the requested id was recorded.
var ErrRunNotFound = errors.New("journal: run not found")

const timeLayout = "2006-01-02T15:04:05.000Z"

// Run is the stored header of one negotiation run.
type Run struct {
	ID    string
	Input string
	Order map[string]any
	// Attribution names the fan-out attribution the run was reduced with.
	// Empty means FirstPending.
	Attribution string
	Status      session.Status
	Err         string
	StartedAt   time.Time
	FinishedAt  time.Time
	Frames      int
}

// Journal records runs and their frames. It implements session.Recorder.
type Journal struct {
	db    *sql.DB
	clock func() time.Time
}

var _ session.Recorder = (*Journal)(nil)

// Open creates the parent directory of path if needed, opens the database
// and applies pending migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, clock: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) now() string {
	return j.clock().UTC().Format(timeLayout)
}

// BeginRun stores the run header with status running.
func (j *Journal) BeginRun(ctx context.Context, run session.RunInfo) error {
	var order sql.NullString
	if run.Order != nil {
		encoded, err := json.Marshal(run.Order)
		if err != nil {
			return fmt.Errorf("journal: encode order: %w", err)
		}
		order = sql.NullString{String: string(encoded), Valid: true}
	}
	started := run.StartedAt
	if started.IsZero() {
		started = j.clock()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, order_json, attribution, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, order, run.Attribution, string(session.StatusRunning), started.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("journal: begin run %s: %w", run.ID, err)
	}
	return nil
}

// RecordFrame appends one raw frame verbatim, malformed or not.
func (j *Journal) RecordFrame(ctx context.Context, runID string, seq int, frame []byte) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO frames (run_id, seq, data, received_at) VALUES (?, ?, ?, ?)`,
		runID, seq, frame, j.now())
	if err != nil {
		return fmt.Errorf("journal: record frame %s#%d: %w", runID, seq, err)
	}
	return nil
}

// FinishRun stores the outcome of a run. Finishing a run twice keeps the
// first outcome.
func (j *Journal) FinishRun(ctx context.Context, runID string, status session.Status, errText string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ? AND finished_at IS NULL`,
		string(status), errText, j.now(), runID)
	if err != nil {
		return fmt.Errorf("journal: finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := j.Run(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

const runColumns = `r.id, r.input, r.order_json, r.attribution, r.status, r.error, r.started_at, r.finished_at,
	(SELECT COUNT(*) FROM frames f WHERE f.run_id = r.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		order    sql.NullString
		status   string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Input, &order, &run.Attribution, &status, &run.Err, &started, &finished, &run.Frames); err != nil {
		return Run{}, err
	}
	run.Status = session.Status(status)
	if order.Valid && order.String != "" {
		if err := json.Unmarshal([]byte(order.String), &run.Order); err != nil {
			return Run{}, fmt.Errorf("journal: decode order of %s: %w", run.ID, err)
		}
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	if finished.Valid {
		run.FinishedAt, _ = time.Parse(timeLayout, finished.String)
	}
	return run, nil
}

// Run returns the header of one run.
func (j *Journal) Run(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return Run{}, fmt.Errorf("journal: load run %s: %w", runID, err)
	}
	return run, nil
}

// Runs lists the most recent runs first. A limit of zero or less lists all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	return runs, nil
}

// Frames returns the raw frames of a run in arrival order.
func (j *Journal) Frames(ctx context.Context, runID string) ([][]byte, error) {
	if _, err := j.Run(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `SELECT data FROM frames WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: load frames of %s: %w", runID, err)
	}
	defer rows.Close()

	var frames [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("journal: scan frame: %w", err)
		}
		frames = append(frames, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: load frames of %s: %w", runID, err)
	}
	return frames, nil
}

// Replay folds the recorded frames of a run through a fresh reducer using the
// attribution the run was recorded with. When the frames never reached a
// terminal one, the recorded outcome (connection failure, cancellation) is
// applied on top.
func (j *Journal) Replay(ctx context.Context, runID string) (session.Snapshot, error) {
	run, err := j.Run(ctx, runID)
	if err != nil {
		return session.Snapshot{}, err
	}
	frames, err := j.Frames(ctx, runID)
	if err != nil {
		return session.Snapshot{}, err
	}
	attribution, err := progress.ParseAttribution(run.Attribution)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("journal: replay %s: %w", runID, err)
	}
	snap := session.Replay(runID, frames, progress.WithAttribution(attribution))
	if snap.Status == session.StatusRunning && run.Status != session.StatusRunning {
		snap.Status = run.Status
		snap.Running = false
		snap.Err = run.Err
	}
	snap.UpdatedAt = run.FinishedAt
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = run.StartedAt
	}
	return snap, nil
}
