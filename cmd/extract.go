package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedback-cli/internal/extract"
	"github.com/sells-group/feedback-cli/internal/ingest"
)

var extractCmd = &cobra.Command{
	Use:   "extract <files...>",
	Short: "Extract study variables from component files into a new snapshot",
	Long:  "Each file is one component of a participant result, named after the file. With --dry-run the inferred variables are printed and nothing is stored.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		studyID, _ := cmd.Flags().GetString("study")
		charset, _ := cmd.Flags().GetString("charset")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		res, err := enrichFiles(ctx, args, charset)
		if err != nil {
			return err
		}
		for _, c := range res.ComponentResults {
			if c.ParseError != "" {
				zap.L().Warn("component not parsed", zap.String("name", c.Name), zap.String("error", c.ParseError))
			}
		}

		if dryRun {
			b := extract.NewBuilder("", cfg.Extract.MaxExamples)
			for _, c := range res.ComponentResults {
				if c.ParseError == "" {
					formatVariables(cmd.OutOrStdout(), b.Add(c.Name, extract.Extract(c.ParsedData)))
				}
			}
			return nil
		}

		if studyID == "" {
			return eris.New("--study is required")
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ex, err := ingest.NewService(st, cfg.Extract.Version, cfg.Extract.MaxExamples).Extract(ctx, studyID, res)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "snapshot %s (%s)\n", ex.Snapshot.ID, ex.Snapshot.ExtractorVersion) //nolint:errcheck
		formatVariables(out, ex.Variables)
		return nil
	},
}

func init() {
	extractCmd.Flags().String("study", "", "study id")
	extractCmd.Flags().String("charset", "", "declared charset of the files (default utf-8)")
	extractCmd.Flags().Bool("dry-run", false, "print inferred variables without storing a snapshot")
	rootCmd.AddCommand(extractCmd)
}
