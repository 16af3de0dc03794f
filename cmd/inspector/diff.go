package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/diff"
	"github.com/hakim/inspector/internal/report"
)

var diffCmd = &cobra.Command{
	Use:   "diff <previous-report> <current-report>",
	Short: "Compare two scan reports and show what changed",
	Long: `Compare two JSON reports of the same target.

DNS records, HTTP outcomes and banners are compared as sets, so the order in
which probes completed does not matter. The delta is printed as markdown.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := afero.NewOsFs()

		previous, err := report.Load(fs, args[0])
		if err != nil {
			return fmt.Errorf("loading previous report: %w", err)
		}
		current, err := report.Load(fs, args[1])
		if err != nil {
			return fmt.Errorf("loading current report: %w", err)
		}

		if previous.Target != current.Target {
			fmt.Fprintf(cmd.ErrOrStderr(), "[!] Warning: comparing different targets (%s vs %s)\n",
				previous.Target, current.Target)
		}

		return report.WriteDiffMarkdown(cmd.OutOrStdout(), diff.ComputeDiff(current, previous))
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
