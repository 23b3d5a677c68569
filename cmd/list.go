package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/posealign/internal/store"
	"github.com/andresmejia3/posealign/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List stored alignment runs",
	Annotations: map[string]string{annotationDB: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		runs, err := DB.ListRuns(cmd.Context())
		if err != nil {
			utils.Die("Failed to list runs", err, nil)
		}
		printRuns(os.Stdout, runs)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tREFERENCE\tVIDEO\tSTATUS\tALIGNED\tSKIPPED\tCREATED")
	fmt.Fprintln(w, "--\t---------\t-----\t------\t-------\t-------\t-------")

	for _, r := range runs {
		status := r.Status
		if r.Error != "" {
			status = fmt.Sprintf("%s (%s)", r.Status, r.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			r.ID, utils.Stem(r.RefPath), utils.Stem(r.VideoPath), status,
			r.FramesAligned, r.FramesRead, len(r.Skipped), r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
