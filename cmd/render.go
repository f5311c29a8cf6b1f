package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedback-cli/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <data files...>",
	Short: "Render a participant's feedback",
	Long:  "The data files are the components of one participant result. Templates that fail validation are refused unless --partial is set.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmplPath, _ := cmd.Flags().GetString("template")
		charset, _ := cmd.Flags().GetString("charset")
		partial, _ := cmd.Flags().GetBool("partial")

		src, err := readTemplate(tmplPath)
		if err != nil {
			return err
		}
		res, err := enrichFiles(cmd.Context(), args, charset)
		if err != nil {
			return err
		}

		out := render.New(renderOptions(partial)).Render(src, res)
		if !out.Rendered {
			formatDiagnostics(cmd.ErrOrStderr(), src, out.Diagnostics)
			return eris.New("template failed validation; use --partial to render anyway")
		}
		for _, f := range out.Failures {
			line, col := position(src, f.Start)
			fmt.Fprintf(cmd.ErrOrStderr(), "%d:%d: render failure: %s\n", line, col, f.Message) //nolint:errcheck
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Output)
		return err
	},
}

func init() {
	renderCmd.Flags().String("template", "", "template file")
	renderCmd.Flags().String("charset", "", "declared charset of the data files (default utf-8)")
	renderCmd.Flags().Bool("partial", false, "render even when the template fails validation")
	rootCmd.AddCommand(renderCmd)
}
