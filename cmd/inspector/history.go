package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/models"
	"github.com/hakim/inspector/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show scan history for a target",
	Long: `Display a formatted table of past scans for a target.

Scans are listed newest-first. Each row shows the scan ID (truncated), start
time, completion status, HTTP reachability, captured banners and the report
path. Without --target, the targets that have history are listed instead.

Use --limit to cap the number of rows shown (default: 10).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		target, _ := cmd.Flags().GetString("target")
		limit, _ := cmd.Flags().GetInt("limit")
		out := cmd.OutOrStdout()

		// Step 2: Open bbolt store
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if target == "" {
			return printTargets(out, store)
		}

		// Step 3: List scans (sorted newest-first by store.ListScans)
		scans, err := store.ListScans(target)
		if err != nil {
			return fmt.Errorf("listing scans for %s: %w", target, err)
		}

		if len(scans) == 0 {
			fmt.Fprintf(out, "No scan history found for %s\n", target)
			return nil
		}

		// Step 4: Apply limit
		if limit > 0 && len(scans) > limit {
			scans = scans[:limit]
		}

		printHistory(out, target, scans)
		return nil
	},
}

const separator = "────────────────────────────────────────────────────────────────────────────────"

func printHistory(out io.Writer, target string, scans []*models.ScanMeta) {
	fmt.Fprintf(out, "\nScan History for %s\n", target)
	fmt.Fprintln(out, separator)
	fmt.Fprintf(out, "  %-3s  %-12s  %-17s  %-9s  %-6s  %-8s  %s\n",
		"#", "Scan ID", "Started", "Status", "HTTP", "Banners", "Report")
	fmt.Fprintln(out, separator)

	for i, scan := range scans {
		fmt.Fprintf(out, "  %-3d  %-12s  %-17s  %-9s  %-6s  %-8s  %s\n",
			i+1,
			shortScanID(scan.ID),
			scan.StartedAt.UTC().Format("2006-01-02 15:04"),
			string(scan.Status),
			ratio(scan.HTTPReachable, scan.HTTPCount),
			ratio(scan.BannersCaptured, scan.BannerCount),
			orDash(scan.ReportPath))

		if scan.Error != "" {
			fmt.Fprintf(out, "       error: %s\n", scan.Error)
		}
	}

	fmt.Fprintln(out, separator)
	fmt.Fprintf(out, "Total: %d scan(s)\n\n", len(scans))
}

func printTargets(out io.Writer, store *storage.Store) error {
	targets, err := store.ListTargets()
	if err != nil {
		return fmt.Errorf("listing targets: %w", err)
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No scan history found")
		return nil
	}

	fmt.Fprintln(out, "Targets with scan history:")
	for _, t := range targets {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintln(out, "\nUse --target to see individual scans.")
	return nil
}

// shortScanID returns the first 8 characters of a UUID followed by "..." for
// compact table display. Falls back to the full ID when shorter than 8 chars.
func shortScanID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func ratio(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", n, total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	historyCmd.Flags().StringP("target", "t", "", "Target to show history for")
	historyCmd.Flags().Int("limit", 10, "Maximum number of scans to display")
	rootCmd.AddCommand(historyCmd)
}
