// Package pipeline drives a whole alignment run: calibration on the first
// usable frame, then per-frame detection, alignment and re-centering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/posealign/internal/align"
	"github.com/andresmejia3/posealign/internal/pose"
)

// ErrNoCalibrationFrame is returned when the input ends before the
// calibration frame is reached.
var ErrNoCalibrationFrame = errors.New("input ended before the calibration frame")

// Detector turns one encoded frame into a pose record in the detector's
// normalized coordinates.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (pose.Record, error)
}

// FrameSource yields encoded frames in order and io.EOF at the end.
type FrameSource interface {
	Next() ([]byte, error)
}

// State is the driver's position in a run.
type State int

const (
	StateCalibrating State = iota
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibration"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StageError reports which stage of a run failed and on which frame.
type StageError struct {
	Stage State
	Frame int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed at frame %d: %v", e.Stage, e.Frame, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config holds the per-run parameters.
type Config struct {
	// SkipFrames is the number of leading frames discarded before calibration.
	SkipFrames int
	// MaxFrames bounds the raw frame index, skipped frames included.
	MaxFrames int
	// RefAspect is the reference image's width / height.
	RefAspect float64
	// VideoAspect is the driving video's width / height.
	VideoAspect float64
}

// Validate checks the configuration before a run starts.
func (c Config) Validate() error {
	if c.SkipFrames < 0 {
		return fmt.Errorf("skip frames must be >= 0, got %d", c.SkipFrames)
	}
	if c.MaxFrames <= c.SkipFrames {
		return fmt.Errorf("max frames (%d) must be greater than skip frames (%d)", c.MaxFrames, c.SkipFrames)
	}
	if c.RefAspect <= 0 || c.VideoAspect <= 0 {
		return fmt.Errorf("aspect ratios must be positive, got ref=%v video=%v", c.RefAspect, c.VideoAspect)
	}
	return nil
}

// AlignedFrame is one emitted frame.
type AlignedFrame struct {
	// Index is the frame's position in the input video.
	Index int
	// Source is the detector's raw record for the frame.
	Source pose.Record
	// Pose is the aligned record in the reference image's normalized space.
	Pose pose.Record
}

// Result is everything a run produced. It is owned by the caller.
type Result struct {
	Calibration align.Calibration
	Frames      []AlignedFrame
	// Skipped holds the indices of frames dropped because the root joint was missing.
	Skipped []int
	// Read is the number of frames pulled from the source.
	Read int
	// Exhausted is set when the source ended before MaxFrames.
	Exhausted bool
}

// Driver runs the Calibrating -> Streaming -> Done state machine.
type Driver struct {
	cfg Config
	det Detector
	ref pose.Record

	state   State
	aligner *align.Aligner

	// Sink, when set, receives every aligned frame together with its encoded
	// source frame as soon as it is produced.
	Sink func(f AlignedFrame, frame []byte) error
	// OnFrame is called for every frame read, skipped ones included.
	OnFrame func(index int)
	// Warn receives per-frame warnings. Nil discards them.
	Warn io.Writer
	// Limit stops the run once this many frames were aligned. Zero means no limit.
	Limit int
}

// NewDriver prepares a run against the reference record as returned by the
// detector.
func NewDriver(det Detector, ref pose.Record, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := ref.Clone()
	r.ScaleX(cfg.RefAspect)
	return &Driver{cfg: cfg, det: det, ref: r, state: StateCalibrating}, nil
}

// State returns the current state.
func (d *Driver) State() State {
	return d.state
}

// Run consumes src until it is exhausted or MaxFrames frames were read.
// Calibration failures and detection failures abort the run; frames whose
// root joint is missing are skipped and reported, before calibration as well
// as after it.
func (d *Driver) Run(ctx context.Context, src FrameSource) (*Result, error) {
	res := &Result{}

	for i := 0; i < d.cfg.MaxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			res.Exhausted = true
			break
		}
		if err != nil {
			return res, &StageError{Stage: d.state, Frame: i, Err: fmt.Errorf("read frame: %w", err)}
		}
		res.Read++
		if d.OnFrame != nil {
			d.OnFrame(i)
		}
		if i < d.cfg.SkipFrames {
			continue
		}

		raw, err := d.det.Detect(ctx, frame)
		if err != nil {
			return res, &StageError{Stage: d.state, Frame: i, Err: fmt.Errorf("pose detection: %w", err)}
		}
		rec := raw.Clone()
		rec.ScaleX(d.cfg.VideoAspect)

		if d.state == StateCalibrating {
			// The calibration frame is the first one with a root joint
			if d.ref.HasRoot() && !rec.HasRoot() {
				d.warnf("⚠️  Frame %d: %v, trying the next frame for calibration\n", i, align.ErrUndefinedPivot)
				res.Skipped = append(res.Skipped, i)
				continue
			}
			cal, err := align.Calibrate(d.ref, rec)
			if err != nil {
				return res, &StageError{Stage: d.state, Frame: i, Err: err}
			}
			for _, l := range cal.Degenerate {
				d.warnf("⚠️  Degenerate %s scale, using mean %.3f\n", l, cal.Scales[l])
			}
			res.Calibration = cal
			d.aligner = align.NewAligner(cal.Scales)
			d.state = StateStreaming
		}

		out, err := d.aligner.Align(rec)
		if errors.Is(err, align.ErrUndefinedPivot) {
			d.warnf("⚠️  Frame %d: %v, skipping\n", i, err)
			res.Skipped = append(res.Skipped, i)
			continue
		}
		if err != nil {
			return res, &StageError{Stage: d.state, Frame: i, Err: err}
		}

		out.Translate(res.Calibration.Offset)
		out.ScaleX(1 / d.cfg.RefAspect)
		out.Sanitize()

		af := AlignedFrame{Index: i, Source: raw, Pose: out}
		if d.Sink != nil {
			if err := d.Sink(af, frame); err != nil {
				return res, &StageError{Stage: d.state, Frame: i, Err: err}
			}
		}
		res.Frames = append(res.Frames, af)
		if d.Limit > 0 && len(res.Frames) >= d.Limit {
			break
		}
	}

	if d.state == StateCalibrating {
		return res, &StageError{Stage: d.state, Frame: res.Read, Err: ErrNoCalibrationFrame}
	}
	d.state = StateDone
	return res, nil
}

func (d *Driver) warnf(format string, args ...interface{}) {
	if d.Warn != nil {
		fmt.Fprintf(d.Warn, format, args...)
	}
}
