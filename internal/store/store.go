package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/posealign/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store manages the PostgreSQL connection for alignment runs.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS media (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			registered_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS align_runs (
			id UUID PRIMARY KEY,
			ref_id TEXT NOT NULL REFERENCES media(id),
			video_id TEXT NOT NULL REFERENCES media(id),
			skip_frames INT NOT NULL,
			max_frames INT NOT NULL,
			status TEXT NOT NULL,
			scales JSONB,
			offset_x DOUBLE PRECISION,
			offset_y DOUBLE PRECISION,
			frames_read INT NOT NULL DEFAULT 0,
			frames_aligned INT NOT NULL DEFAULT 0,
			skipped_frames INT[] NOT NULL DEFAULT '{}',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS aligned_frames (
			run_id UUID NOT NULL REFERENCES align_runs(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			pose JSONB NOT NULL,
			PRIMARY KEY (run_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS align_runs_pair_idx ON align_runs (ref_id, video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureMedia registers a reference image or driving video. If it exists, it updates the timestamp.
func (s *Store) EnsureMedia(ctx context.Context, id, path, kind string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO media (id, path, kind, registered_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET registered_at = NOW(), path = EXCLUDED.path
	`, id, path, kind)
	return err
}

// CreateRun starts a run for the reference/video pair. Earlier runs of the
// pair stay until this one finishes.
func (s *Store) CreateRun(ctx context.Context, refID, videoID string, skipFrames, maxFrames int) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO align_runs (id, ref_id, video_id, skip_frames, max_frames, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, refID, videoID, skipFrames, maxFrames, StatusRunning)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SaveCalibration records the per-limb scales and root offset once calibration succeeds.
func (s *Store) SaveCalibration(ctx context.Context, runID string, scales map[string]float64, offsetX, offsetY float64) error {
	raw, err := json.Marshal(scales)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE align_runs SET scales = $2, offset_x = $3, offset_y = $4 WHERE id = $1
	`, runID, raw, offsetX, offsetY)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// InsertAlignedFrame saves one aligned pose in the detector's wire format.
func (s *Store) InsertAlignedFrame(ctx context.Context, runID string, index int, res types.PoseResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO aligned_frames (run_id, frame_index, pose) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, frame_index) DO UPDATE SET pose = EXCLUDED.pose
	`, runID, index, raw)
	return err
}

// Summary is the final accounting of a run.
type Summary struct {
	Read    int
	Aligned int
	Skipped []int
}

// FinishRun marks the run done and removes the earlier runs of the same
// reference/video pair, so re-running stays idempotent.
func (s *Store) FinishRun(ctx context.Context, runID string, sum Summary) error {
	skipped := make([]int32, len(sum.Skipped))
	for i, v := range sum.Skipped {
		skipped[i] = int32(v)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE align_runs
		SET status = $2, frames_read = $3, frames_aligned = $4, skipped_frames = $5, finished_at = NOW()
		WHERE id = $1
	`, runID, StatusDone, sum.Read, sum.Aligned, skipped)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM align_runs old
		USING align_runs cur
		WHERE cur.id = $1 AND old.id <> cur.id
		  AND old.ref_id = cur.ref_id AND old.video_id = cur.video_id
	`, runID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FailRun marks the run failed and keeps the error text.
func (s *Store) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.conn.Exec(ctx, `
		UPDATE align_runs SET status = $2, error = $3, finished_at = NOW() WHERE id = $1
	`, runID, StatusFailed, msg)
	return err
}

// Run is one row of the run listing.
type Run struct {
	ID            string    `db:"id"`
	RefPath       string    `db:"ref_path"`
	VideoPath     string    `db:"video_path"`
	Status        string    `db:"status"`
	FramesRead    int32     `db:"frames_read"`
	FramesAligned int32     `db:"frames_aligned"`
	Skipped       []int32   `db:"skipped_frames"`
	Error         string    `db:"error"`
	CreatedAt     time.Time `db:"created_at"`
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id::text AS id, ref.path AS ref_path, vid.path AS video_path, r.status,
		       r.frames_read, r.frames_aligned, r.skipped_frames, r.error, r.created_at
		FROM align_runs r
		JOIN media ref ON ref.id = r.ref_id
		JOIN media vid ON vid.id = r.video_id
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Run])
}

// GetScales returns the stored scale table of a run.
func (s *Store) GetScales(ctx context.Context, runID string) (map[string]float64, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	var raw []byte
	err := s.conn.QueryRow(ctx, "SELECT scales FROM align_runs WHERE id = $1", runID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	scales := map[string]float64{}
	if len(raw) == 0 {
		return scales, nil
	}
	if err := json.Unmarshal(raw, &scales); err != nil {
		return nil, err
	}
	return scales, nil
}

// StoredFrame is one aligned frame read back from the database.
type StoredFrame struct {
	Index int
	Pose  types.PoseResult
}

// GetAlignedFrames returns the frames of a run in index order.
func (s *Store) GetAlignedFrames(ctx context.Context, runID string) ([]StoredFrame, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, pose FROM aligned_frames WHERE run_id = $1 ORDER BY frame_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []StoredFrame
	for rows.Next() {
		var idx int32
		var raw []byte
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, err
		}
		var f StoredFrame
		f.Index = int(idx)
		if err := json.Unmarshal(raw, &f.Pose); err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS aligned_frames CASCADE;
		DROP TABLE IF EXISTS align_runs CASCADE;
		DROP TABLE IF EXISTS media CASCADE;
	`)
	return err
}
