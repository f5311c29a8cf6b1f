package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedback-cli/internal/dsl"
)

var validateCmd = &cobra.Command{
	Use:   "validate [data files...]",
	Short: "Validate a feedback template",
	Long:  "Checks a template against the variables found in the given data files, or in a stored snapshot with --snapshot. Exits non-zero when the template has errors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tmplPath, _ := cmd.Flags().GetString("template")
		snapshotID, _ := cmd.Flags().GetString("snapshot")
		charset, _ := cmd.Flags().GetString("charset")

		src, err := readTemplate(tmplPath)
		if err != nil {
			return err
		}

		names := dsl.NameSet{}
		switch {
		case snapshotID != "":
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			vars, err := st.GetVariablesBySnapshot(ctx, snapshotID)
			if err != nil {
				return err
			}
			names = dsl.NamesFromVariables(vars)
		case len(args) > 0:
			res, err := enrichFiles(ctx, args, charset)
			if err != nil {
				return err
			}
			names = dsl.AvailableNames(res)
		}

		res := dsl.Validate(src, names, dslOptions())
		out := cmd.OutOrStdout()
		formatDiagnostics(out, src, res.Diagnostics)
		fmt.Fprintf(out, "required variables: %v\n", dsl.RequiredVariableNames(src)) //nolint:errcheck
		if !res.Valid {
			return eris.Errorf("template has %d error(s)", len(res.Errors()))
		}
		fmt.Fprintln(out, "template is valid") //nolint:errcheck
		return nil
	},
}

func init() {
	validateCmd.Flags().String("template", "", "template file")
	validateCmd.Flags().String("snapshot", "", "validate against a stored snapshot's variables")
	validateCmd.Flags().String("charset", "", "declared charset of the data files (default utf-8)")
	rootCmd.AddCommand(validateCmd)
}
