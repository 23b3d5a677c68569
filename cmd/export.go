package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresmejia3/posealign/internal/align"
	"github.com/andresmejia3/posealign/internal/utils"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:         "export <run-id>",
	Short:       "Write the aligned poses of a stored run as JSON",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		scales, err := DB.GetScales(ctx, runID)
		if err != nil {
			utils.ShowError("Failed to load run", err, nil)
			return err
		}
		if _, err := align.TableFromMap(scales); err != nil {
			utils.ShowError("Stored scale table is incomplete", err, nil)
			return err
		}
		frames, err := DB.GetAlignedFrames(ctx, runID)
		if err != nil {
			utils.ShowError("Failed to load aligned frames", err, nil)
			return err
		}

		out := poseJSONFile{Scales: scales, Skipped: []int{}, Frames: make([]poseJSONFrame, len(frames))}
		for i, f := range frames {
			out.Frames[i] = poseJSONFrame{Frame: f.Index, Pose: f.Pose}
		}

		dst := os.Stdout
		if exportOutput != "" && exportOutput != "-" {
			if err := utils.EnsureParentDir(exportOutput); err != nil {
				return err
			}
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			dst = f
		}
		if err := json.NewEncoder(dst).Encode(out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "📤 Exported %d frames of run %s\n", len(frames), runID)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "Destination file ('-' for stdout)")
	rootCmd.AddCommand(exportCmd)
}
