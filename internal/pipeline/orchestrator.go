// Package pipeline wraps a single scan in the steps that surround it:
// authorization, scope checks, history bookkeeping, report persistence and
// completion notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hakim/inspector/internal/auth"
	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
)

// StoreInterface is the minimal bbolt contract required by the orchestrator.
// Using an interface keeps the package testable without a real database.
type StoreInterface interface {
	SaveScan(meta *models.ScanMeta) error
}

// Authorizer decides whether a token may start a scan
type Authorizer interface {
	Validate(token string) (bool, error)
}

// Scanner runs the network part of a scan
type Scanner interface {
	Scan(ctx context.Context, target string, cfg models.ScanConfig, ports []int) (*models.ScanResult, error)
}

// ReportSink persists a finished scan and returns where it went
type ReportSink interface {
	Save(result *models.ScanResult) (string, error)
}

// Request describes one scan run.
type Request struct {
	// Target is the domain or address being scanned. Required.
	Target string

	// Token is checked against the Authorizer before anything else happens.
	Token string

	// Config bounds rate, concurrency and per-probe timeout.
	Config models.ScanConfig

	// Ports to banner-probe. Nil means the scanner's default list.
	Ports []int

	// Scope, when set, rejects targets outside the allowed domains or CIDRs.
	Scope *ScopeConfig

	// Notify, when set, receives a webhook after the run ends.
	Notify *NotifyConfig
}

// Result summarises what happened after Run returns.
type Result struct {
	ScanID     string
	Target     string
	ReportPath string
	Scan       *models.ScanResult
	Meta       *models.ScanMeta
	Elapsed    time.Duration
}

// Runner executes Requests. Store may be nil, in which case no history is kept.
type Runner struct {
	auth    Authorizer
	scanner Scanner
	sink    ReportSink
	store   StoreInterface
	logger  *slog.Logger

	// Progress receives operator-facing "[*]" lines. Defaults to io.Discard.
	Progress io.Writer
}

// NewRunner creates a Runner
func NewRunner(auth Authorizer, scanner Scanner, sink ReportSink, store StoreInterface, logger *slog.Logger) *Runner {
	return &Runner{
		auth:     auth,
		scanner:  scanner,
		sink:     sink,
		store:    store,
		logger:   logging.OrDiscard(logger),
		Progress: io.Discard,
	}
}

// Run authorizes and executes one scan.
//
// Authorization and scope are checked before any network activity; a
// failure there returns an error wrapping auth.ErrUnauthorized or
// ErrOutOfScope and nothing is dispatched.
//
// Crash isolation:
//   The scan is wrapped in a deferred recover so a panicking probe is
//   recorded as a failed scan in history instead of killing the process.
//
// The bbolt record is created (StatusRunning) before the scan and updated
// to StatusComplete or StatusFailed once it ends. History and webhook
// failures after the scan are logged as warnings and never fail the run.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {

	// ── 1. Validate required inputs ───────────────────────────────────────────
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, errors.New("pipeline: target is required")
	}

	// ── 2. Authorize ─────────────────────────────────────────────────────────
	ok, err := r.auth.Validate(req.Token)
	if err == nil && !ok {
		err = auth.ErrUnauthorized
	}
	if err != nil {
		r.logger.Warn("authorization failed", "target", target, "error", err)
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// ── 3. Scope guard ───────────────────────────────────────────────────────
	if err := req.Scope.Check(target); err != nil {
		r.logger.Warn("target out of scope", "target", target, "error", err)
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// ── 4. Create the history record ─────────────────────────────────────────
	meta := models.NewScanMeta(target)
	meta.Status = models.StatusRunning
	if r.store != nil {
		if err := r.store.SaveScan(meta); err != nil {
			return nil, fmt.Errorf("pipeline: saving initial scan record: %w", err)
		}
	}
	fmt.Fprintf(r.Progress, "[*] Scan ID: %s (rate %.4g/s, concurrency %d, timeout %s)\n",
		meta.ID, req.Config.RateLimit, req.Config.MaxConcurrency, req.Config.Timeout)
	r.logger.Info("scan started", "scan_id", meta.ID, "target", target,
		"rate", req.Config.RateLimit, "concurrency", req.Config.MaxConcurrency, "timeout", req.Config.Timeout)

	result := &Result{ScanID: meta.ID, Target: target, Meta: meta}
	start := time.Now()

	// ── 5. Scan ──────────────────────────────────────────────────────────────
	scan, err := r.runScanIsolated(ctx, target, req)
	result.Elapsed = time.Since(start)
	if err != nil {
		r.fail(ctx, req, result, err)
		return result, fmt.Errorf("pipeline: scanning %s: %w", target, err)
	}
	result.Scan = scan

	// ── 6. Persist the report ────────────────────────────────────────────────
	path, err := r.sink.Save(scan)
	if err != nil {
		r.fail(ctx, req, result, err)
		return result, fmt.Errorf("pipeline: saving report: %w", err)
	}
	result.ReportPath = path
	fmt.Fprintf(r.Progress, "[+] Report saved: %s\n", path)

	// ── 7. Finalise history ──────────────────────────────────────────────────
	meta.Summarize(scan)
	meta.ReportPath = path
	r.finish(meta, models.StatusComplete)

	fmt.Fprintf(r.Progress, "[*] Scan finished in %s: %d/%d HTTP reachable, %d/%d banners\n",
		result.Elapsed.Round(time.Millisecond), meta.HTTPReachable, meta.HTTPCount,
		meta.BannersCaptured, meta.BannerCount)
	r.logger.Info("scan complete", "scan_id", meta.ID, "report", path, "elapsed", result.Elapsed)

	// ── 8. Notify ────────────────────────────────────────────────────────────
	r.notify(ctx, req.Notify, result)

	return result, nil
}

// runScanIsolated runs the scan inside a deferred recover so that a panic in
// probe code is returned as an error rather than crashing the process.
func (r *Runner) runScanIsolated(ctx context.Context, target string, req Request) (scan *models.ScanResult, retErr error) {
	defer func() {
		if p := recover(); p != nil {
			retErr = fmt.Errorf("scan panicked: %v", p)
		}
	}()
	return r.scanner.Scan(ctx, target, req.Config, req.Ports)
}

// fail records a failed run in history and notifies the webhook.
func (r *Runner) fail(ctx context.Context, req Request, result *Result, cause error) {
	result.Meta.Error = cause.Error()
	r.finish(result.Meta, models.StatusFailed)

	fmt.Fprintf(r.Progress, "[!] Scan failed (%s): %v\n", result.Elapsed.Round(time.Millisecond), cause)
	r.logger.Error("scan failed", "scan_id", result.ScanID, "target", result.Target, "error", cause)

	r.notify(ctx, req.Notify, result)
}

// finish stamps a terminal status and persists the record. Non-fatal.
func (r *Runner) finish(meta *models.ScanMeta, status models.ScanStatus) {
	now := time.Now()
	meta.Status = status
	meta.CompletedAt = &now

	if r.store == nil {
		return
	}
	if err := r.store.SaveScan(meta); err != nil {
		fmt.Fprintf(r.Progress, "[!] Warning: could not update scan record: %v\n", err)
		r.logger.Warn("could not update scan record", "scan_id", meta.ID, "error", err)
	}
}

func (r *Runner) notify(ctx context.Context, n *NotifyConfig, result *Result) {
	if err := n.SendCompletion(ctx, result); err != nil {
		fmt.Fprintf(r.Progress, "[!] Warning: webhook notification failed: %v\n", err)
		r.logger.Warn("webhook notification failed", "scan_id", result.ScanID, "error", err)
	}
}
