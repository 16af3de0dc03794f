package models

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ScanConfig bounds the resources a single scan may use
type ScanConfig struct {
	RateLimit      float64       `json:"rate_limit"`
	MaxConcurrency int           `json:"max_concurrency"`
	Timeout        time.Duration `json:"timeout"`
}

// Validate checks that every limit is positive
func (c ScanConfig) Validate() error {
	var errs []error

	switch {
	case math.IsNaN(c.RateLimit) || math.IsInf(c.RateLimit, 0):
		errs = append(errs, errors.New("rate limit must be a finite number"))
	case c.RateLimit <= 0:
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("max concurrency must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ScanResult is the aggregate record of one scan.
//
// HTTP and Banners are filled in completion order, which depends on
// scheduling. Consumers must compare them as sets.
type ScanResult struct {
	Target    string            `json:"target"`
	Timestamp int64             `json:"timestamp"`
	DNS       DNSResult         `json:"dns"`
	HTTP      []HTTPProbeResult `json:"http"`
	Banners   []BannerResult    `json:"banners"`
}

// NewScanResult creates an empty result stamped with startedAt
func NewScanResult(target string, startedAt time.Time) *ScanResult {
	return &ScanResult{
		Target:    target,
		Timestamp: startedAt.Unix(),
		DNS:       NewDNSResult(target),
		HTTP:      []HTTPProbeResult{},
		Banners:   []BannerResult{},
	}
}

// ScanMeta contains metadata about a scan
type ScanMeta struct {
	ID              string     `json:"id"`
	Target          string     `json:"target"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          ScanStatus `json:"status"`
	ReportPath      string     `json:"report_path,omitempty"`
	HTTPCount       int        `json:"http_count"`
	HTTPReachable   int        `json:"http_reachable"`
	BannerCount     int        `json:"banner_count"`
	BannersCaptured int        `json:"banners_captured"`
	Error           string     `json:"error,omitempty"`
}

// NewScanMeta creates a new scan record with a fresh ID
func NewScanMeta(target string) *ScanMeta {
	return &ScanMeta{
		ID:        uuid.New().String(),
		Target:    target,
		StartedAt: time.Now(),
		Status:    StatusPending,
	}
}

// Summarize copies result counters from a finished scan into the record
func (m *ScanMeta) Summarize(result *ScanResult) {
	if result == nil {
		return
	}

	m.HTTPCount = len(result.HTTP)
	m.HTTPReachable = 0
	for _, h := range result.HTTP {
		if h.IsSuccess() {
			m.HTTPReachable++
		}
	}

	m.BannerCount = len(result.Banners)
	m.BannersCaptured = 0
	for _, b := range result.Banners {
		if b.Banner != "" {
			m.BannersCaptured++
		}
	}
}
