package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedback-cli/internal/codebook"
)

var codebookCmd = &cobra.Command{
	Use:   "codebook",
	Short: "Manage study codebooks",
}

var codebookImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace a study's codebook with the entries in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		studyID, err := studyFlag(cmd)
		if err != nil {
			return err
		}
		entries, err := codebook.LoadFile(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cb, err := st.SaveCodebook(ctx, studyID, entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "codebook %s saved with %d entries\n", cb.ID, len(cb.Entries))
		return err
	},
}

var codebookShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a study's codebook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		studyID, err := studyFlag(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cb, err := st.GetCodebook(ctx, studyID)
		if err != nil {
			return err
		}
		if cb == nil {
			return eris.Errorf("study %s has no codebook", studyID)
		}
		return printJSON(cmd.OutOrStdout(), cb)
	},
}

func studyFlag(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("study")
	if id == "" {
		return "", eris.New("--study is required")
	}
	return id, nil
}

func init() {
	codebookCmd.PersistentFlags().String("study", "", "study id")
	codebookCmd.AddCommand(codebookImportCmd, codebookShowCmd)
	rootCmd.AddCommand(codebookCmd)
}
