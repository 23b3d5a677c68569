package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/andresmejia3/posealign/internal/pipeline"
	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/andresmejia3/posealign/internal/render"
	"github.com/andresmejia3/posealign/internal/store"
	"github.com/andresmejia3/posealign/internal/utils"
)

const megabyte = 1024 * 1024

// encoder is one ffmpeg process fed with PNG frames on stdin.
type encoder struct {
	path   string
	cmd    *utils.SafeCommand
	in     io.WriteCloser
	buf    *bufio.Writer
	closed bool
}

func startEncoder(ctx context.Context, path string, fps float64) (*encoder, error) {
	if err := utils.EnsureParentDir(path); err != nil {
		return nil, err
	}
	cmd := utils.NewFFmpegEncoder(ctx, path, fps)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &encoder{path: path, cmd: cmd, in: in, buf: bufio.NewWriterSize(in, megabyte)}, nil
}

func (e *encoder) WriteFrame(img image.Image) error {
	return render.EncodePNG(e.buf, img)
}

// Close flushes, closes stdin and waits for ffmpeg to finish the file.
func (e *encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	flushErr := e.buf.Flush()
	e.in.Close()
	if err := e.cmd.Wait(); err != nil {
		if e.cmd.Stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", e.path, err, e.cmd.Stderr.String())
		}
		return fmt.Errorf("%s: %w", e.path, err)
	}
	return flushErr
}

// alignSink turns every aligned frame into output: the pose video, the demo
// strip and, when persisting, a database row.
type alignSink struct {
	ctx   context.Context
	style render.Style

	poseW, poseH   int
	frameW, frameH int

	refImage image.Image
	refPose  image.Image

	pose *encoder
	demo *encoder

	db    *store.Store
	runID string
}

func newAlignSink(ctx context.Context, opts Options, fps float64, refImg image.Image, refPose pose.Record, cfg pipeline.Config) (*alignSink, error) {
	style := render.DefaultStyle()
	style.Face = opts.DrawFace

	s := &alignSink{ctx: ctx, style: style, refImage: refImg}
	s.poseW, s.poseH = render.CanvasSize(cfg.RefAspect, opts.ImageResolution)
	s.frameW, s.frameH = render.CanvasSize(cfg.VideoAspect, opts.ImageResolution)
	s.refPose = render.DrawPose(refPose, s.poseW, s.poseH, style)

	var err error
	if s.pose, err = startEncoder(ctx, opts.OutputPath, fps); err != nil {
		return nil, err
	}
	if opts.DemoOutputPath != "" {
		if s.demo, err = startEncoder(ctx, opts.DemoOutputPath, fps); err != nil {
			s.Abort()
			return nil, err
		}
	}
	return s, nil
}

// Write is the driver's Sink.
func (s *alignSink) Write(f pipeline.AlignedFrame, frame []byte) error {
	aligned := render.DrawPose(f.Pose, s.poseW, s.poseH, s.style)
	if err := s.pose.WriteFrame(aligned); err != nil {
		return fmt.Errorf("pose encoder: %w", err)
	}

	if s.demo != nil {
		img, err := render.DecodeFrame(frame)
		if err != nil {
			return err
		}
		src := render.DrawPose(f.Source, s.frameW, s.frameH, s.style)
		strip := render.Demo(render.DemoPanels{
			RefImage:  s.refImage,
			RefPose:   s.refPose,
			Aligned:   aligned,
			Frame:     img,
			FramePose: src,
		})
		if err := s.demo.WriteFrame(strip); err != nil {
			return fmt.Errorf("demo encoder: %w", err)
		}
	}

	if s.db != nil {
		if err := s.db.InsertAlignedFrame(s.ctx, s.runID, f.Index, pose.ToWire(f.Pose)); err != nil {
			return fmt.Errorf("persist frame: %w", err)
		}
	}
	return nil
}

// Close finalizes both videos.
func (s *alignSink) Close() error {
	var errs []error
	if s.pose != nil {
		errs = append(errs, s.pose.Close())
	}
	if s.demo != nil {
		errs = append(errs, s.demo.Close())
	}
	return errors.Join(errs...)
}

// Abort closes whatever is still open, ignoring errors.
func (s *alignSink) Abort() {
	s.Close()
}
