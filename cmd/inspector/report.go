package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <path>",
	Short: "Print a saved scan report",
	Long: `Print a JSON report written by "inspector scan".

By default the report is echoed as compact JSON. Use --pretty for indented
JSON or --markdown for a human-readable summary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pretty, _ := cmd.Flags().GetBool("pretty")
		markdown, _ := cmd.Flags().GetBool("markdown")

		result, err := report.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		if markdown {
			return report.WriteMarkdown(cmd.OutOrStdout(), result)
		}

		var data []byte
		if pretty {
			data, err = json.MarshalIndent(result, "", "  ")
		} else {
			data, err = json.Marshal(result)
		}
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("pretty", false, "Indent the JSON output")
	reportCmd.Flags().Bool("markdown", false, "Render a markdown summary instead of JSON (takes precedence over --pretty)")
	rootCmd.AddCommand(reportCmd)
}
