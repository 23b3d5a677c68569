package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore starts a Postgres container and connects a Store to it.
// It requires Docker to be running.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("posealign_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	t.Cleanup(func() { s.Close(ctx) })
	return s
}

func TestStoreIntegration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.EnsureMedia(ctx, "ref-1", "/data/dancer.png", "reference"); err != nil {
		t.Fatalf("EnsureMedia failed: %v", err)
	}
	if err := s.EnsureMedia(ctx, "vid-1", "/data/moves.mp4", "video"); err != nil {
		t.Fatalf("EnsureMedia failed: %v", err)
	}
	// Re-registering is an upsert
	if err := s.EnsureMedia(ctx, "vid-1", "/data/moves.mp4", "video"); err != nil {
		t.Fatalf("EnsureMedia upsert failed: %v", err)
	}

	runID, err := s.CreateRun(ctx, "ref-1", "vid-1", 0, 300)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	scales := map[string]float64{"scale_neck": 1.359, "scale_hand": 0.9}
	if err := s.SaveCalibration(ctx, runID, scales, 0.1, -0.05); err != nil {
		t.Fatalf("SaveCalibration failed: %v", err)
	}

	var rec pose.Record
	for i := range rec.Body {
		rec.Body[i] = pose.Pt(0.5, float64(i)/20)
	}
	rec.Body[pose.LAnkle] = pose.Absent()
	for _, idx := range []int{4, 0, 2} {
		if err := s.InsertAlignedFrame(ctx, runID, idx, pose.ToWire(rec)); err != nil {
			t.Fatalf("InsertAlignedFrame(%d) failed: %v", idx, err)
		}
	}

	if err := s.FinishRun(ctx, runID, Summary{Read: 5, Aligned: 3, Skipped: []int{1, 3}}); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	// Frames come back ordered, with absent joints still absent
	frames, err := s.GetAlignedFrames(ctx, runID)
	if err != nil {
		t.Fatalf("GetAlignedFrames failed: %v", err)
	}
	if len(frames) != 3 || frames[0].Index != 0 || frames[2].Index != 4 {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	back := pose.FromWire(frames[1].Pose)
	if back.Body[pose.LAnkle].Valid {
		t.Error("absent joint came back present")
	}
	if back.Body[pose.Root] != rec.Body[pose.Root] {
		t.Errorf("root = %+v, want %+v", back.Body[pose.Root], rec.Body[pose.Root])
	}

	gotScales, err := s.GetScales(ctx, runID)
	if err != nil {
		t.Fatalf("GetScales failed: %v", err)
	}
	if gotScales["scale_neck"] != 1.359 || gotScales["scale_hand"] != 0.9 {
		t.Errorf("scales = %v", gotScales)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID != runID || r.Status != StatusDone || r.FramesRead != 5 || r.FramesAligned != 3 {
		t.Errorf("unexpected run row %+v", r)
	}
	if len(r.Skipped) != 2 || r.Skipped[0] != 1 || r.Skipped[1] != 3 {
		t.Errorf("skipped = %v, want [1 3]", r.Skipped)
	}
	if r.RefPath != "/data/dancer.png" || r.VideoPath != "/data/moves.mp4" {
		t.Errorf("paths = %q, %q", r.RefPath, r.VideoPath)
	}

	// A failed re-run of the same pair keeps the last good result
	runID2, err := s.CreateRun(ctx, "ref-1", "vid-1", 2, 10)
	if err != nil {
		t.Fatalf("CreateRun (second) failed: %v", err)
	}
	if err := s.FailRun(ctx, runID2, errors.New("calibration failed at frame 2")); err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}
	runs, _ = s.ListRuns(ctx)
	if len(runs) != 2 {
		t.Fatalf("expected both runs after a failed re-run, got %+v", runs)
	}
	for _, r := range runs {
		if r.ID == runID2 && (r.Status != StatusFailed || r.Error == "") {
			t.Errorf("unexpected failed run row %+v", r)
		}
	}
	if frames, _ := s.GetAlignedFrames(ctx, runID); len(frames) != 3 {
		t.Errorf("frames of the good run = %d, want 3", len(frames))
	}

	// A successful re-run replaces every earlier run and cascades its frames
	runID3, err := s.CreateRun(ctx, "ref-1", "vid-1", 0, 300)
	if err != nil {
		t.Fatalf("CreateRun (third) failed: %v", err)
	}
	if err := s.FinishRun(ctx, runID3, Summary{Read: 2, Aligned: 2}); err != nil {
		t.Fatalf("FinishRun (third) failed: %v", err)
	}
	runs, _ = s.ListRuns(ctx)
	if len(runs) != 1 || runs[0].ID != runID3 || runs[0].Status != StatusDone {
		t.Errorf("unexpected runs after re-run: %+v", runs)
	}
	if frames, _ := s.GetAlignedFrames(ctx, runID); len(frames) != 0 {
		t.Errorf("frames of the replaced run survived: %d", len(frames))
	}
	if err := s.FinishRun(ctx, "00000000-0000-0000-0000-000000000000", Summary{}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	if _, err := s.GetScales(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := s.SaveCalibration(ctx, "00000000-0000-0000-0000-000000000000", scales, 0, 0); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.GetAlignedFrames(ctx, "not-a-uuid"); err == nil {
		t.Error("expected an error for a malformed run id")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx); err == nil {
		t.Error("expected ListRuns to fail after Reset dropped the tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
