package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/posealign/internal/pipeline"
	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/andresmejia3/posealign/internal/render"
	"github.com/andresmejia3/posealign/internal/utils"
	"github.com/andresmejia3/posealign/internal/worker"
)

// session is the setup align and calibrate share: the reference image and
// its pose, the probed video geometry and a warm pose worker.
type session struct {
	refImg  image.Image
	refPose pose.Record
	fps     float64
	width   int
	height  int
	worker  *worker.PythonPoseWorker
}

// openSession expects opts to be validated already. Failures are reported
// with ShowError before being returned.
func openSession(ctx context.Context, opts Options) (*session, error) {
	timeout, _ := time.ParseDuration(opts.WorkerTimeout)
	s := &session{}

	var err error
	if s.refImg, err = render.LoadImage(opts.RefPath); err != nil {
		utils.ShowError("Failed to load reference image", err, nil)
		return nil, err
	}
	if s.fps, err = utils.GetVideoFPS(ctx, opts.InputPath); err != nil {
		utils.ShowError("Failed to determine video FPS", err, nil)
		return nil, err
	}
	if s.width, s.height, err = utils.GetVideoDimensions(ctx, opts.InputPath); err != nil {
		utils.ShowError("Failed to determine video dimensions", err, nil)
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📼 Video: %dx%d @ %.2f fps\n", s.width, s.height, s.fps)

	fmt.Fprintln(os.Stderr, "🚀 Warming up pose engine...")
	s.worker, err = worker.NewPythonPoseWorker(ctx, 0, worker.Config{
		Script:           opts.WorkerScript,
		DetectResolution: opts.DetectResolution,
		ImageResolution:  opts.ImageResolution,
		ReadTimeout:      timeout,
	})
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return nil, err
	}

	refJPEG, err := render.EncodeJPEG(s.refImg, 95)
	if err != nil {
		s.Close()
		utils.ShowError("Failed to encode reference image", err, nil)
		return nil, err
	}
	if s.refPose, err = s.worker.Detect(ctx, refJPEG); err != nil {
		utils.ShowError("Reference pose detection failed", err, s.worker.Cmd)
		s.Close()
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "🧍 Reference pose: %d joints detected\n", s.refPose.Count())
	return s, nil
}

// config builds the driver configuration for this reference/video pair.
func (s *session) config(opts Options) pipeline.Config {
	return pipeline.Config{
		SkipFrames:  opts.AlignFrame,
		MaxFrames:   opts.MaxFrame,
		RefAspect:   render.Aspect(s.refImg),
		VideoAspect: float64(s.width) / float64(s.height),
	}
}

// newDriver wires the driver to the session's worker.
func (s *session) newDriver(opts Options) (*pipeline.Driver, error) {
	drv, err := pipeline.NewDriver(s.worker, s.refPose, s.config(opts))
	if err != nil {
		utils.ShowError("Invalid run configuration", err, nil)
		return nil, err
	}
	drv.Warn = os.Stderr
	return drv, nil
}

func (s *session) Close() {
	if s.worker != nil {
		s.worker.Close()
	}
}

// decoder is the ffmpeg process streaming MJPEG frames of the input video.
// It runs under its own context so it can be stopped at MaxFrames.
type decoder struct {
	cmd  *utils.SafeCommand
	out  io.ReadCloser
	stop context.CancelFunc
}

func startDecoder(ctx context.Context, path string) (*decoder, error) {
	decCtx, stop := context.WithCancel(ctx)
	cmd := utils.NewFFmpegCmd(decCtx, path)
	out, err := cmd.StdoutPipe()
	if err != nil {
		stop()
		utils.ShowError("Failed to create decoder pipe", err, nil)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stop()
		utils.ShowError("Failed to start decoder", err, nil)
		return nil, err
	}
	return &decoder{cmd: cmd, out: out, stop: stop}, nil
}

// Source returns the frame source reading from the decoder's stdout.
func (d *decoder) Source() *pipeline.JPEGSource {
	return pipeline.NewJPEGSource(d.out)
}

// Finish waits for a decoder that ran to the end of the input.
func (d *decoder) Finish() error {
	defer d.stop()
	if err := d.cmd.Wait(); err != nil {
		utils.ShowError("Decoder process failed", err, d.cmd)
		return err
	}
	return nil
}

// Kill stops a decoder that still has frames to give.
func (d *decoder) Kill() {
	d.stop()
	d.cmd.Wait()
}
