// Package diff computes the delta between two scan reports.
// Reports store their HTTP and banner results in completion order, so every
// comparison here is done on keyed sets, never on slice positions.
package diff

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hakim/inspector/internal/models"
)

// ---------------------------------------------------------------------------
// DiffResult
// ---------------------------------------------------------------------------

// RecordChange is one DNS record value that appeared or disappeared
type RecordChange struct {
	Type  models.RecordType
	Value string
}

// HTTPChange describes a URL whose probe outcome differs between scans.
// Previous or Current is empty when the URL was not probed in that scan.
type HTTPChange struct {
	URL      string
	Previous string
	Current  string
}

// BannerChange associates a banner event with the port it was read from
type BannerChange struct {
	Host     string
	Port     int
	Previous string
	Current  string
}

// DiffResult holds the complete delta between a current and a previous scan.
// All slice fields are non-nil (empty slices, not nil) so callers can range
// over them unconditionally.
type DiffResult struct {
	Target string

	// DNS changes across all record types
	NewRecords     []RecordChange
	RemovedRecords []RecordChange

	// HTTP status changes keyed by URL
	HTTPChanges []HTTPChange

	// Banner changes keyed by port. A port "opens" when it starts
	// returning a banner and "closes" when it stops.
	OpenedPorts    []BannerChange
	ClosedPorts    []BannerChange
	ChangedBanners []BannerChange

	// Summary counts (convenient for rendering without re-iterating slices)
	CurrentRecordCount  int
	PreviousRecordCount int
	CurrentBannerCount  int
	PreviousBannerCount int
	CurrentTimestamp    int64
	PreviousTimestamp   int64
}

// IsEmpty returns true when no changes exist across all categories.
func (d *DiffResult) IsEmpty() bool {
	return len(d.NewRecords) == 0 &&
		len(d.RemovedRecords) == 0 &&
		len(d.HTTPChanges) == 0 &&
		len(d.OpenedPorts) == 0 &&
		len(d.ClosedPorts) == 0 &&
		len(d.ChangedBanners) == 0
}

// ---------------------------------------------------------------------------
// ComputeDiff
// ---------------------------------------------------------------------------

// ComputeDiff calculates the delta between current and previous results.
// Both arguments must be non-nil; pass an empty ScanResult for the
// "no previous scan" case.
func ComputeDiff(current, previous *models.ScanResult) *DiffResult {
	dr := &DiffResult{
		Target:         current.Target,
		NewRecords:     []RecordChange{},
		RemovedRecords: []RecordChange{},
		HTTPChanges:    []HTTPChange{},
		OpenedPorts:    []BannerChange{},
		ClosedPorts:    []BannerChange{},
		ChangedBanners: []BannerChange{},
	}

	diffRecords(dr, current.DNS, previous.DNS)
	diffHTTP(dr, current.HTTP, previous.HTTP)
	diffBanners(dr, current.Banners, previous.Banners)

	dr.CurrentRecordCount = totalRecordCount(current.DNS)
	dr.PreviousRecordCount = totalRecordCount(previous.DNS)
	dr.CurrentBannerCount = capturedBannerCount(current.Banners)
	dr.PreviousBannerCount = capturedBannerCount(previous.Banners)
	dr.CurrentTimestamp = current.Timestamp
	dr.PreviousTimestamp = previous.Timestamp

	return dr
}

// ---------------------------------------------------------------------------
// DNS diff
// ---------------------------------------------------------------------------

// diffRecords computes added and removed record values per type.
// Key: record type plus the presentation-form value.
func diffRecords(dr *DiffResult, current, previous models.DNSResult) {
	for _, rt := range models.RecordTypes {
		prev := toSet(previous.Records[rt])
		curr := toSet(current.Records[rt])

		for _, v := range sortedKeys(curr) {
			if !prev[v] {
				dr.NewRecords = append(dr.NewRecords, RecordChange{Type: rt, Value: v})
			}
		}
		for _, v := range sortedKeys(prev) {
			if !curr[v] {
				dr.RemovedRecords = append(dr.RemovedRecords, RecordChange{Type: rt, Value: v})
			}
		}
	}
}

func totalRecordCount(d models.DNSResult) int {
	total := 0
	for _, values := range d.Records {
		total += len(values)
	}
	return total
}

// ---------------------------------------------------------------------------
// HTTP diff
// ---------------------------------------------------------------------------

// HTTPOutcome renders a probe result as a single comparable string:
// the status code on success, "error: <text>" on failure.
func HTTPOutcome(r models.HTTPProbeResult) string {
	if r.IsSuccess() {
		return strconv.Itoa(r.StatusCode)
	}
	return "error: " + r.Error
}

// diffHTTP reports every URL whose outcome differs, including URLs probed in
// only one of the two scans.
func diffHTTP(dr *DiffResult, current, previous []models.HTTPProbeResult) {
	prev := make(map[string]string, len(previous))
	for _, r := range previous {
		prev[r.URL] = HTTPOutcome(r)
	}
	curr := make(map[string]string, len(current))
	for _, r := range current {
		curr[r.URL] = HTTPOutcome(r)
	}

	urls := make(map[string]bool, len(prev)+len(curr))
	for u := range prev {
		urls[u] = true
	}
	for u := range curr {
		urls[u] = true
	}

	for _, u := range sortedKeys(urls) {
		if prev[u] != curr[u] {
			dr.HTTPChanges = append(dr.HTTPChanges, HTTPChange{URL: u, Previous: prev[u], Current: curr[u]})
		}
	}
}

// ---------------------------------------------------------------------------
// Banner diff
// ---------------------------------------------------------------------------

// bannerKey uniquely identifies a probed port.
// Format: "host:port" (e.g. "example.com:22")
func bannerKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// diffBanners classifies ports by whether they returned a banner in each scan.
// An empty banner and an unprobed port are treated alike: the probe cannot
// tell a closed port from a silent one.
func diffBanners(dr *DiffResult, current, previous []models.BannerResult) {
	prev := indexBanners(previous)
	curr := indexBanners(current)

	keys := make(map[string]bool, len(prev)+len(curr))
	for k := range prev {
		keys[k] = true
	}
	for k := range curr {
		keys[k] = true
	}

	for _, k := range sortedKeys(keys) {
		p, c := prev[k], curr[k]
		change := BannerChange{Host: c.Host, Port: c.Port, Previous: p.Banner, Current: c.Banner}
		if change.Host == "" {
			change.Host, change.Port = p.Host, p.Port
		}

		switch {
		case p.Banner == "" && c.Banner != "":
			dr.OpenedPorts = append(dr.OpenedPorts, change)
		case p.Banner != "" && c.Banner == "":
			dr.ClosedPorts = append(dr.ClosedPorts, change)
		case p.Banner != c.Banner:
			dr.ChangedBanners = append(dr.ChangedBanners, change)
		}
	}

	sortBannerChanges(dr.OpenedPorts)
	sortBannerChanges(dr.ClosedPorts)
	sortBannerChanges(dr.ChangedBanners)
}

func indexBanners(banners []models.BannerResult) map[string]models.BannerResult {
	m := make(map[string]models.BannerResult, len(banners))
	for _, b := range banners {
		m[bannerKey(b.Host, b.Port)] = b
	}
	return m
}

func capturedBannerCount(banners []models.BannerResult) int {
	n := 0
	for _, b := range banners {
		if b.Banner != "" {
			n++
		}
	}
	return n
}

// sortBannerChanges orders by host, then numerically by port
func sortBannerChanges(changes []BannerChange) {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Host != changes[j].Host {
			return changes[i].Host < changes[j].Host
		}
		return changes[i].Port < changes[j].Port
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
