package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedback-cli/internal/consistency"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a study's codebook and template against an extraction snapshot",
	Long:  "Defaults to the study's latest snapshot. Results are written back to the stored validation audits.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		studyID, _ := cmd.Flags().GetString("study")
		snapshotID, _ := cmd.Flags().GetString("snapshot")
		asJSON, _ := cmd.Flags().GetBool("json")
		if studyID == "" {
			return eris.New("--study is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := consistency.New(st, cfg.Extract.Version)
		var report *consistency.LatestReport
		if snapshotID == "" {
			report, err = checker.CheckLatest(ctx, studyID)
		} else {
			report, err = checker.CheckSnapshot(ctx, studyID, snapshotID)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return printJSON(out, report)
		}
		fmt.Fprintf(out, "snapshot %s\n", report.SnapshotID) //nolint:errcheck
		printResult(out, "codebook", report.Codebook)
		printResult(out, "template", report.Template)
		return nil
	},
}

func printResult(w io.Writer, label string, res *consistency.Result) {
	if res == nil {
		fmt.Fprintf(w, "%s: none\n", label) //nolint:errcheck
		return
	}
	status := string(res.Status)
	if res.Skipped {
		status += " (unchanged)"
	}
	fmt.Fprintf(w, "%s: %s\n", label, status) //nolint:errcheck
	if len(res.MissingKeys) > 0 {
		fmt.Fprintf(w, "  missing: %s\n", strings.Join(res.MissingKeys, ", ")) //nolint:errcheck
	}
	if len(res.ExtraKeys) > 0 {
		fmt.Fprintf(w, "  extra: %s\n", strings.Join(res.ExtraKeys, ", ")) //nolint:errcheck
	}
}

func init() {
	checkCmd.Flags().String("study", "", "study id")
	checkCmd.Flags().String("snapshot", "", "snapshot id (default latest)")
	checkCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(checkCmd)
}
