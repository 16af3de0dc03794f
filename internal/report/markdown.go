package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hakim/inspector/internal/models"
)

// WriteMarkdown renders a human-readable summary of result to w
func WriteMarkdown(w io.Writer, result *models.ScanResult) error {
	var b strings.Builder

	// Header
	b.WriteString("# Scan Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", result.Target))
	b.WriteString(fmt.Sprintf("**Date:** %s\n", time.Unix(result.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**DNS records:** %d | **HTTP reachable:** %d/%d | **Banners captured:** %d/%d\n\n",
		recordCount(result.DNS), reachableCount(result.HTTP), len(result.HTTP),
		capturedCount(result.Banners), len(result.Banners)))

	writeDNSSection(&b, result.DNS)
	writeHTTPSection(&b, result.HTTP)
	writeBannerSection(&b, result.Banners)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing markdown report: %w", err)
	}
	return nil
}

// writeDNSSection lists records in the fixed type order
func writeDNSSection(b *strings.Builder, dns models.DNSResult) {
	b.WriteString("## DNS Records\n\n")
	if recordCount(dns) == 0 {
		b.WriteString("None found.\n\n")
		return
	}

	b.WriteString("| Type | Value |\n")
	b.WriteString("|------|-------|\n")
	for _, rt := range models.RecordTypes {
		for _, v := range dns.Records[rt] {
			b.WriteString(fmt.Sprintf("| %s | %s |\n", rt, cell(v)))
		}
	}
	b.WriteString("\n")
}

// writeHTTPSection renders probes sorted by URL
func writeHTTPSection(b *strings.Builder, probes []models.HTTPProbeResult) {
	b.WriteString("## HTTP Reachability\n\n")
	if len(probes) == 0 {
		b.WriteString("No HTTP targets (no A records).\n\n")
		return
	}

	sorted := make([]models.HTTPProbeResult, len(probes))
	copy(sorted, probes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	b.WriteString("| URL | Status | Server | Error |\n")
	b.WriteString("|-----|--------|--------|-------|\n")
	for _, p := range sorted {
		status := "-"
		if p.IsSuccess() {
			status = fmt.Sprintf("%d", p.StatusCode)
		}

		server := p.Headers["server"]
		if server == "" {
			server = "-"
		}

		errMsg := p.Error
		if errMsg == "" {
			errMsg = "-"
		}

		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", p.URL, status, cell(server), cell(errMsg)))
	}
	b.WriteString("\n")
}

// writeBannerSection renders banners sorted by port
func writeBannerSection(b *strings.Builder, banners []models.BannerResult) {
	b.WriteString("## Service Banners\n\n")
	if len(banners) == 0 {
		b.WriteString("No ports probed.\n\n")
		return
	}

	sorted := make([]models.BannerResult, len(banners))
	copy(sorted, banners)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Port < sorted[j].Port })

	b.WriteString("| Port | Banner |\n")
	b.WriteString("|------|--------|\n")
	for _, bn := range sorted {
		banner := bn.Banner
		if banner == "" {
			// closed, filtered and silent ports all look the same
			banner = "-"
		}
		b.WriteString(fmt.Sprintf("| %d | %s |\n", bn.Port, cell(banner)))
	}
	b.WriteString("\n")
}

// cell makes a value safe to place inside a markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

func recordCount(dns models.DNSResult) int {
	n := 0
	for _, values := range dns.Records {
		n += len(values)
	}
	return n
}

func reachableCount(probes []models.HTTPProbeResult) int {
	n := 0
	for _, p := range probes {
		if p.IsSuccess() {
			n++
		}
	}
	return n
}

func capturedCount(banners []models.BannerResult) int {
	n := 0
	for _, bn := range banners {
		if bn.Banner != "" {
			n++
		}
	}
	return n
}
