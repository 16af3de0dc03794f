package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hakim/inspector/internal/diff"
)

// WriteDiffMarkdown renders the delta between two scans of the same target
func WriteDiffMarkdown(w io.Writer, result *diff.DiffResult) error {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", result.Target))
	b.WriteString(fmt.Sprintf("**Previous:** %s | **Current:** %s\n\n",
		formatTimestamp(result.PreviousTimestamp), formatTimestamp(result.CurrentTimestamp)))

	// If there are zero changes across all categories, short-circuit.
	if result.IsEmpty() {
		b.WriteString("No changes detected.\n")
		return writeString(w, b.String())
	}

	writeDiffSummaryTable(&b, result)
	writeRecordChanges(&b, "New DNS Records", "+", result.NewRecords)
	writeRecordChanges(&b, "Removed DNS Records", "-", result.RemovedRecords)
	writeHTTPChanges(&b, result.HTTPChanges)
	writeBannerChanges(&b, "Newly Answering Ports", "+", result.OpenedPorts)
	writeBannerChanges(&b, "Silent Ports", "-", result.ClosedPorts)
	writeBannerChanges(&b, "Changed Banners", "~", result.ChangedBanners)

	return writeString(w, b.String())
}

// ---------------------------------------------------------------------------
// Section writers
// ---------------------------------------------------------------------------

// writeDiffSummaryTable writes the two-row comparison table.
func writeDiffSummaryTable(b *strings.Builder, r *diff.DiffResult) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")

	recordChange := formatChange(len(r.NewRecords), len(r.RemovedRecords))
	bannerChange := formatChange(len(r.OpenedPorts), len(r.ClosedPorts))

	b.WriteString(fmt.Sprintf("| DNS Records | %d | %d | %s |\n",
		r.PreviousRecordCount, r.CurrentRecordCount, recordChange))
	b.WriteString(fmt.Sprintf("| Banners | %d | %d | %s |\n",
		r.PreviousBannerCount, r.CurrentBannerCount, bannerChange))

	b.WriteString("\n")
}

// writeRecordChanges renders one list of record changes. Skipped when empty.
func writeRecordChanges(b *strings.Builder, title, sign string, changes []diff.RecordChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(changes)))
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("- %s %s\n", c.Type, c.Value))
	}
	b.WriteString("\n")
}

// writeHTTPChanges renders the HTTP outcome table. Skipped when empty.
func writeHTTPChanges(b *strings.Builder, changes []diff.HTTPChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## HTTP Changes (%d)\n\n", len(changes)))
	b.WriteString("| URL | Previous | Current |\n")
	b.WriteString("|-----|----------|---------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", c.URL, orDash(c.Previous), orDash(c.Current)))
	}
	b.WriteString("\n")
}

// writeBannerChanges is the shared table renderer for banner change slices.
func writeBannerChanges(b *strings.Builder, title, sign string, changes []diff.BannerChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(changes)))
	b.WriteString("| Host | Port | Previous | Current |\n")
	b.WriteString("|------|------|----------|---------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
			c.Host, c.Port, orDash(cell(c.Previous)), orDash(cell(c.Current))))
	}
	b.WriteString("\n")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatChange returns a human-readable change string such as "+3 / -1".
// When there are no additions and no removals it returns "none".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}

func formatTimestamp(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// writeString writes content to w, wrapping any error with context.
func writeString(w io.Writer, content string) error {
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("writing diff report: %w", err)
	}
	return nil
}
