package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/posealign/internal/align"
	"github.com/andresmejia3/posealign/internal/pipeline"
	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/andresmejia3/posealign/internal/render"
	"github.com/andresmejia3/posealign/internal/utils"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// calibrationSearch bounds how far past align-frame calibrate looks for a frame with a root.
const calibrationSearch = 300

var (
	calibrateOpts Options
	plotPath      string
	previewPath   string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Compute the per-limb scale table without rendering any video",
	Long: "Detects the reference pose and the pose on the calibration frame of the input video, " +
		"then prints the per-limb scales and root offset that align would use.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalibrate(cmd.Context(), calibrateOpts)
	},
}

func init() {
	addPoseFlags(calibrateCmd, &calibrateOpts)
	calibrateCmd.Flags().StringVarP(&plotPath, "plot", "p", "", "Save a bar chart of the scale table to this PNG")
	calibrateCmd.Flags().StringVar(&previewPath, "preview", "", "Save the reference pose beside the aligned calibration frame (.png, .jpg or .webp)")

	calibrateCmd.MarkFlagRequired("ref")
	calibrateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(ctx context.Context, opts Options) error {
	// Only the calibration frame is needed, but it may lie past rootless frames
	opts.MaxFrame = opts.AlignFrame + calibrationSearch
	opts.DemoOutputPath = "-"
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
	drv.Limit = 1
	dec, err := startDecoder(ctx, opts.InputPath)
	if err != nil {
		return err
	}

	res, err := drv.Run(ctx, dec.Source())
	dec.Kill()
	if err != nil {
		utils.ShowError("Calibration failed", err, sess.worker.Cmd)
		return err
	}

	printCalibration(os.Stdout, res.Calibration)

	if plotPath != "" {
		if err := utils.EnsureParentDir(plotPath); err != nil {
			return err
		}
		if err := plotScales(res.Calibration, plotPath); err != nil {
			utils.ShowError("Failed to plot scales", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "📊 Scale chart saved to %s\n", plotPath)
	}

	if previewPath != "" {
		if err := utils.EnsureParentDir(previewPath); err != nil {
			return err
		}
		img := calibrationPreview(sess.refPose, res.Frames[0].Pose, sess.config(opts), opts.ImageResolution)
		if err := render.SaveImage(img, previewPath, 95); err != nil {
			utils.ShowError("Failed to save preview", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖼️  Preview saved to %s\n", previewPath)
	}
	return nil
}

// calibrationPreview shows the reference pose next to the aligned
// calibration frame, both on the reference canvas.
func calibrationPreview(ref, aligned pose.Record, cfg pipeline.Config, resolution int) image.Image {
	w, h := render.CanvasSize(cfg.RefAspect, resolution)
	st := render.DefaultStyle()
	return render.Strip(h, render.DrawPose(ref, w, h, st), render.DrawPose(aligned, w, h, st))
}

// printCalibration writes the scale table and root offset.
func printCalibration(out io.Writer, cal align.Calibration) {
	degenerate := make(map[align.Limb]bool, len(cal.Degenerate))
	for _, l := range cal.Degenerate {
		degenerate[l] = true
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LIMB\tSCALE\tNOTE")
	fmt.Fprintln(w, "----\t-----\t----")
	for l := align.Limb(0); l < align.NumLimbs; l++ {
		note := ""
		if degenerate[l] {
			note = "back-filled"
		}
		fmt.Fprintf(w, "%s\t%.4f\t%s\n", l, cal.Scales[l], note)
	}
	w.Flush()
	fmt.Fprintf(out, "Root offset: (%+.4f, %+.4f)\n", cal.Offset.X, cal.Offset.Y)
}

// plotScales renders the scale table as a bar chart with a reference line at 1.
func plotScales(cal align.Calibration, path string) error {
	values := make(plotter.Values, align.NumLimbs)
	names := make([]string, align.NumLimbs)
	for l := align.Limb(0); l < align.NumLimbs; l++ {
		values[l] = cal.Scales[l]
		names[l] = l.String()
	}

	p := plot.New()
	p.Title.Text = "Per-limb scale (reference / driving)"
	p.Y.Label.Text = "scale"

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	unit, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: 1}, {X: float64(align.NumLimbs) - 0.5, Y: 1}})
	if err != nil {
		return err
	}
	unit.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(unit)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
