package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage study feedback templates",
}

var templateSetCmd = &cobra.Command{
	Use:   "set <file>",
	Short: "Store a study's feedback template",
	Long:  "Saving a new template keeps the previous validation audit until the next consistency check.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		studyID, err := studyFlag(cmd)
		if err != nil {
			return err
		}
		src, err := readTemplate(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ft, err := st.SaveFeedbackTemplate(ctx, studyID, src)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "template %s saved\n", ft.ID)
		return err
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a study's feedback template and its validation audit",
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

		ft, err := st.GetFeedbackTemplate(ctx, studyID)
		if err != nil {
			return err
		}
		if ft == nil {
			return eris.Errorf("study %s has no feedback template", studyID)
		}
		return printJSON(cmd.OutOrStdout(), ft)
	},
}

func init() {
	templateCmd.PersistentFlags().String("study", "", "study id")
	templateCmd.AddCommand(templateSetCmd, templateShowCmd)
	rootCmd.AddCommand(templateCmd)
}
