package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus tracks a run through its lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// FrameStatus is the journaled per-frame outcome.
type FrameStatus string

const (
	FrameSucceeded FrameStatus = "succeeded"
	FrameFailed    FrameStatus = "failed"
)

// Run is one journaled registration run.
type Run struct {
	ID             int64
	UUID           string
	InputPath      string
	OutputPath     string
	ServerURL      string
	ServerBranch   string
	ServerRevision string
	StreamID       int64
	FrameCount     int
	Committed      int
	Status         RunStatus
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunInfo seeds a new run record.
type RunInfo struct {
	InputPath      string
	OutputPath     string
	ServerURL      string
	ServerBranch   string
	ServerRevision string
	StreamID       int64
	FrameCount     int
}

// FrameRecord is one journaled frame outcome.
type FrameRecord struct {
	FrameID      int64
	Status       FrameStatus
	Attempts     int
	FOM          float64
	Displacement float64
	Error        string
}

// RunStats aggregates a run's frame outcomes.
type RunStats struct {
	Succeeded        int
	Failed           int
	MeanFOM          float64
	MeanDisplacement float64
}

// ErrNoRuns reports an empty journal.
var ErrNoRuns = errors.New("no journaled runs")

// BeginRun inserts a running run record and returns its id.
func (s *Store) BeginRun(ctx context.Context, info RunInfo) (int64, error) {
	res, err := s.execWithRetry(ctx, `
		INSERT INTO runs (uuid, input_path, output_path, server_url,
			server_branch, server_revision, stream_id, frame_count,
			status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), info.InputPath, info.OutputPath, info.ServerURL,
		info.ServerBranch, info.ServerRevision, info.StreamID, info.FrameCount,
		string(RunRunning), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run id: %w", err)
	}
	return id, nil
}

// RecordFrame journals one frame outcome for a run.
func (s *Store) RecordFrame(ctx context.Context, runID int64, rec FrameRecord) error {
	_, err := s.execWithRetry(ctx, `
		INSERT INTO run_frames (run_id, frame_id, status, attempts, fom,
			displacement_m, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.FrameID, string(rec.Status), rec.Attempts, rec.FOM,
		rec.Displacement, rec.Error)
	if err != nil {
		return fmt.Errorf("record frame %d: %w", rec.FrameID, err)
	}
	return nil
}

// FinishRun finalizes a run record with its committed frame count and
// terminal status.
func (s *Store) FinishRun(ctx context.Context, runID int64, committed int, status RunStatus, errMsg string) error {
	_, err := s.execWithRetry(ctx, `
		UPDATE runs SET committed = ?, status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		committed, string(status), errMsg,
		time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT id, uuid, input_path, output_path, server_url,
			server_branch, server_revision, stream_id, frame_count,
			committed, status, error, started_at, COALESCE(finished_at, '')
		FROM runs ORDER BY id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	return run, err
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT id, uuid, input_path, output_path, server_url,
			server_branch, server_revision, stream_id, frame_count,
			committed, status, error, started_at, COALESCE(finished_at, '')
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d", ErrNoRuns, runID)
	}
	return run, err
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status, started, finished string
	err := row.Scan(&run.ID, &run.UUID, &run.InputPath, &run.OutputPath,
		&run.ServerURL, &run.ServerBranch, &run.ServerRevision,
		&run.StreamID, &run.FrameCount, &run.Committed, &status,
		&run.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished != "" {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return &run, nil
}

// RunFrames returns a run's frame outcomes ordered by frame id.
func (s *Store) RunFrames(ctx context.Context, runID int64) ([]FrameRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
		SELECT frame_id, status, attempts, fom, displacement_m, error
		FROM run_frames WHERE run_id = ? ORDER BY frame_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		var status string
		if err := rows.Scan(&rec.FrameID, &status, &rec.Attempts,
			&rec.FOM, &rec.Displacement, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan run frame: %w", err)
		}
		rec.Status = FrameStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats aggregates a run's frame outcomes. Means cover succeeded
// frames only.
func (s *Store) Stats(ctx context.Context, runID int64) (RunStats, error) {
	var stats RunStats
	row := s.db.QueryRowContext(ensureContext(ctx), `
		SELECT
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COALESCE(AVG(CASE WHEN status = ? THEN fom END), 0),
			COALESCE(AVG(CASE WHEN status = ? THEN displacement_m END), 0)
		FROM run_frames WHERE run_id = ?`,
		string(FrameSucceeded), string(FrameFailed),
		string(FrameSucceeded), string(FrameSucceeded), runID)
	if err := row.Scan(&stats.Succeeded, &stats.Failed,
		&stats.MeanFOM, &stats.MeanDisplacement); err != nil {
		return stats, fmt.Errorf("run stats: %w", err)
	}
	return stats, nil
}
