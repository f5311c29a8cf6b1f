package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedback-cli/internal/ingest"
	"github.com/sells-group/feedback-cli/internal/parse"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Detect the format of a raw component payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		charset, _ := cmd.Flags().GetString("charset")
		text, err := parse.DecodeCharset(b, charset)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), parse.Detect(text))
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a raw component payload into structured data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		charset, _ := cmd.Flags().GetString("charset")
		sheet, _ := cmd.Flags().GetString("sheet")

		comps, err := readComponents(args, charset)
		if err != nil {
			return err
		}
		comps[0].Sheet = sheet
		return printJSON(cmd.OutOrStdout(), ingest.EnrichComponent(comps[0]))
	},
}

func init() {
	detectCmd.Flags().String("charset", "", "declared charset of the file (default utf-8)")
	parseCmd.Flags().String("charset", "", "declared charset of the file (default utf-8)")
	parseCmd.Flags().String("sheet", "", "workbook sheet to read (default first)")
	rootCmd.AddCommand(detectCmd, parseCmd)
}
