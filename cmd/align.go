package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/posealign/internal/pipeline"
	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/andresmejia3/posealign/internal/store"
	"github.com/andresmejia3/posealign/internal/types"
	"github.com/andresmejia3/posealign/internal/utils"
	"github.com/andresmejia3/posealign/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const (
	defaultOutputDir = "./assets/poses/align"
	defaultDemoDir   = "./assets/poses/align_demo"
)

var (
	alignOpts Options
	noDemo    bool
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Retarget a driving video onto the body proportions of a reference image",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := alignOpts
		if noDemo {
			opts.DemoOutputPath = "-"
		}
		return runAlign(cmd.Context(), opts)
	},
}

func init() {
	addPoseFlags(alignCmd, &alignOpts)
	alignCmd.Flags().StringVarP(&alignOpts.OutputPath, "output", "o", "", "Aligned pose video (default: "+defaultOutputDir+"/img_<ref>_video_<input>.mp4)")
	alignCmd.Flags().StringVar(&alignOpts.DemoOutputPath, "demo-output", "", "Side-by-side demo video (default: "+defaultDemoDir+"/img_<ref>_video_<input>.mp4)")
	alignCmd.Flags().BoolVar(&noDemo, "no-demo", false, "Do not render the demo video")
	alignCmd.Flags().StringVar(&alignOpts.PoseJSONPath, "pose-json", "", "Also write the aligned poses as JSON to this path")
	alignCmd.Flags().IntVar(&alignOpts.MaxFrame, "max-frame", 300, "Stop after this many input frames (skipped frames included)")
	alignCmd.Flags().BoolVar(&alignOpts.DrawFace, "draw-face", false, "Draw face landmarks in the pose videos")
	alignCmd.Flags().BoolVar(&alignOpts.Persist, "persist", false, "Store the run and its aligned frames in PostgreSQL")

	alignCmd.MarkFlagRequired("ref")
	alignCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(alignCmd)
}

// addPoseFlags registers the flags shared by every command that runs the detector.
func addPoseFlags(cmd *cobra.Command, opts *Options) {
	def := worker.DefaultConfig()
	cmd.Flags().StringVarP(&opts.RefPath, "ref", "r", "", "Reference image whose proportions are imposed")
	cmd.Flags().StringVarP(&opts.InputPath, "input", "i", "", "Driving video")
	cmd.Flags().IntVarP(&opts.AlignFrame, "align-frame", "a", 0, "Frames to skip before the calibration frame")
	cmd.Flags().IntVar(&opts.DetectResolution, "detect-resolution", def.DetectResolution, "Detector input resolution")
	cmd.Flags().IntVar(&opts.ImageResolution, "image-resolution", def.ImageResolution, "Short side of the rendered pose frames")
	cmd.Flags().StringVar(&opts.WorkerScript, "worker-script", def.Script, "Python pose worker entry point")
	cmd.Flags().StringVar(&opts.WorkerTimeout, "worker-timeout", def.ReadTimeout.String(), "Maximum time to wait for one detection")
}

// runAlign orchestrates a full run: probing, reference detection, FFmpeg
// streaming through the driver, and the output encoders.
func runAlign(ctx context.Context, opts Options) (err error) {
	if err := validateAlignFlags(&opts); err != nil {
		utils.ShowError("Invalid arguments", err, nil)
		return err
	}

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	drv, err := sess.newDriver(opts)
	if err != nil {
		return err
	}

	var runID string
	if opts.Persist {
		runID, err = registerRun(ctx, opts)
		if err != nil {
			utils.ShowError("Failed to register run", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🗄️  Persisting run %s\n", runID)
		defer func() {
			if err != nil {
				// Background: ctx may be the reason we failed
				DB.FailRun(context.Background(), runID, err)
			}
		}()
	}

	sink, err := newAlignSink(ctx, opts, sess.fps, sess.refImg, sess.refPose, sess.config(opts))
	if err != nil {
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}
	defer sink.Abort()
	if opts.Persist {
		sink.db, sink.runID = DB, runID
	}

	dec, err := startDecoder(ctx, opts.InputPath)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(progressTotal(utils.GetTotalFrames(ctx, opts.InputPath), opts.MaxFrame),
		progressbar.OptionSetDescription("🕺 Aligning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	drv.OnFrame = func(int) { bar.Add(1) }
	drv.Sink = sink.Write

	res, err := drv.Run(ctx, dec.Source())
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		dec.Kill()
		utils.ShowError("Alignment failed", err, sess.worker.Cmd)
		return err
	}

	if res.Exhausted {
		if err := dec.Finish(); err != nil {
			return err
		}
	} else {
		dec.Kill()
	}

	if err := sink.Close(); err != nil {
		utils.ShowError("Encoder process failed", err, nil)
		return err
	}

	if opts.PoseJSONPath != "" {
		if err := writePoseJSON(opts, sess.fps, res); err != nil {
			utils.ShowError("Failed to write pose JSON", err, nil)
			return err
		}
	}

	if opts.Persist {
		cal := res.Calibration
		if err := DB.SaveCalibration(ctx, runID, cal.Scales.Map(), cal.Offset.X, cal.Offset.Y); err != nil {
			utils.ShowError("Failed to persist calibration", err, nil)
			return err
		}
		sum := store.Summary{Read: res.Read, Aligned: len(res.Frames), Skipped: res.Skipped}
		if err := DB.FinishRun(ctx, runID, sum); err != nil {
			utils.ShowError("Failed to finish run", err, nil)
			return err
		}
	}

	printCalibration(os.Stderr, res.Calibration)
	fmt.Fprintf(os.Stderr, "\n🏁 Alignment Complete. Aligned %d frames (%d skipped) out of %d read.\n",
		len(res.Frames), len(res.Skipped), res.Read)
	fmt.Fprintf(os.Stderr, "🎞️  Pose video: %s\n", opts.OutputPath)
	if opts.DemoOutputPath != "" {
		fmt.Fprintf(os.Stderr, "🎞️  Demo video: %s\n", opts.DemoOutputPath)
	}
	return nil
}

// progressTotal bounds the bar by MaxFrames; -1 selects the spinner.
func progressTotal(videoFrames, maxFrames int) int {
	if videoFrames <= 0 {
		return -1
	}
	if videoFrames > maxFrames {
		return maxFrames
	}
	return videoFrames
}

func registerRun(ctx context.Context, opts Options) (string, error) {
	refID, err := utils.Fingerprint(opts.RefPath)
	if err != nil {
		return "", err
	}
	videoID, err := utils.Fingerprint(opts.InputPath)
	if err != nil {
		return "", err
	}
	if err := DB.EnsureMedia(ctx, refID, opts.RefPath, "reference"); err != nil {
		return "", err
	}
	if err := DB.EnsureMedia(ctx, videoID, opts.InputPath, "video"); err != nil {
		return "", err
	}
	return DB.CreateRun(ctx, refID, videoID, opts.AlignFrame, opts.MaxFrame)
}

type poseJSONFrame struct {
	Frame int              `json:"frame"`
	Pose  types.PoseResult `json:"pose"`
}

type poseJSONFile struct {
	Reference string             `json:"reference"`
	Video     string             `json:"video"`
	FPS       float64            `json:"fps"`
	Scales    map[string]float64 `json:"scales"`
	Skipped   []int              `json:"skipped"`
	Frames    []poseJSONFrame    `json:"frames"`
}

// writePoseJSON dumps the aligned records in the detector's own convention.
func writePoseJSON(opts Options, fps float64, res *pipeline.Result) error {
	out := poseJSONFile{
		Reference: opts.RefPath,
		Video:     opts.InputPath,
		FPS:       fps,
		Scales:    res.Calibration.Scales.Map(),
		Skipped:   res.Skipped,
		Frames:    make([]poseJSONFrame, len(res.Frames)),
	}
	if out.Skipped == nil {
		out.Skipped = []int{}
	}
	for i, f := range res.Frames {
		out.Frames[i] = poseJSONFrame{Frame: f.Index, Pose: pose.ToWire(f.Pose)}
	}

	if err := utils.EnsureParentDir(opts.PoseJSONPath); err != nil {
		return err
	}
	f, err := os.Create(opts.PoseJSONPath)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// validateAlignFlags ensures all CLI arguments are valid before starting heavy
// processes, and fills in the default output paths.
func validateAlignFlags(opts *Options) error {
	if err := checkFile("reference image", opts.RefPath); err != nil {
		return err
	}
	if err := checkFile("input video", opts.InputPath); err != nil {
		return err
	}
	if opts.AlignFrame < 0 {
		return fmt.Errorf("align-frame must be >= 0, got %d", opts.AlignFrame)
	}
	if opts.MaxFrame <= opts.AlignFrame {
		return fmt.Errorf("max-frame (%d) must be greater than align-frame (%d)", opts.MaxFrame, opts.AlignFrame)
	}
	if opts.DetectResolution < 64 {
		return fmt.Errorf("detect-resolution must be >= 64, got %d", opts.DetectResolution)
	}
	if opts.ImageResolution < 64 {
		return fmt.Errorf("image-resolution must be >= 64, got %d", opts.ImageResolution)
	}
	if d, err := time.ParseDuration(opts.WorkerTimeout); err != nil || d < 0 {
		return fmt.Errorf("invalid worker-timeout %q (use '30s', '2m')", opts.WorkerTimeout)
	}

	if opts.OutputPath == "" {
		opts.OutputPath = utils.OutputName(defaultOutputDir, opts.RefPath, opts.InputPath)
	}
	switch opts.DemoOutputPath {
	case "":
		opts.DemoOutputPath = utils.OutputName(defaultDemoDir, opts.RefPath, opts.InputPath)
	case "-":
		opts.DemoOutputPath = ""
	}
	if opts.DemoOutputPath != "" && opts.DemoOutputPath == opts.OutputPath {
		return fmt.Errorf("output and demo-output must differ, both are %s", opts.OutputPath)
	}
	return nil
}

func checkFile(what, path string) error {
	if path == "" {
		return fmt.Errorf("%s path is required", what)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %w", what, err)
		}
		return fmt.Errorf("unable to access %s: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", what, path)
	}
	return nil
}
