// Package scanner drives one reconnaissance scan: DNS first, then a bounded,
// rate-limited fan-out of HTTP and banner probes whose results are gathered
// into a single models.ScanResult.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
)

// DefaultPorts are banner-probed when the caller supplies no port list
var DefaultPorts = []int{22, 80, 443, 3306, 143, 110}

// RecordResolver enumerates DNS records. A returned error aborts the scan.
type RecordResolver interface {
	Resolve(ctx context.Context, domain string, timeout time.Duration) (models.DNSResult, error)
}

// ReachabilityProber issues one HEAD request and reports the outcome as data
type ReachabilityProber interface {
	ProbeHead(ctx context.Context, url string, timeout time.Duration) models.HTTPProbeResult
}

// BannerProber reads a service banner and reports the outcome as data
type BannerProber interface {
	ProbeBanner(ctx context.Context, host string, port int, timeout time.Duration) models.BannerResult
}

// ProbeDoneFunc is called after every probe task finishes, from the task's
// own goroutine.
type ProbeDoneFunc func(kind models.ProbeKind, target string, elapsed time.Duration)

// Scanner composes the probes. A Scanner holds no per-scan state, so
// concurrent Scan calls are independent.
type Scanner struct {
	resolver RecordResolver
	http     ReachabilityProber
	banner   BannerProber
	logger   *slog.Logger
	now      func() time.Time

	// OnProbeDone, when set, observes probe completion.
	OnProbeDone ProbeDoneFunc
}

// New creates a Scanner
func New(resolver RecordResolver, http ReachabilityProber, banner BannerProber, logger *slog.Logger) *Scanner {
	return &Scanner{
		resolver: resolver,
		http:     http,
		banner:   banner,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// Scan runs a full scan of target.
//
// DNS is resolved first, outside the gate. When the target has A records,
// http:// and https:// HEAD probes are dispatched; every port gets a banner
// probe (DefaultPorts when ports is nil). Each probe task acquires a gate
// slot, pays the rate-limit floor, probes, records its result and releases
// the slot. Scan returns once every task has recorded exactly one result.
//
// Probe failures are recorded in the result. The only errors returned are an
// invalid cfg and a resolver failure.
func (s *Scanner) Scan(ctx context.Context, target string, cfg models.ScanConfig, ports []int) (*models.ScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}

	result := models.NewScanResult(target, s.now())

	s.logger.Info("resolving dns", "target", target)
	dns, err := s.resolver.Resolve(ctx, target, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", target, err)
	}
	result.DNS = completeRecords(dns, target)

	urls := HTTPTargets(target, result.DNS)
	if ports == nil {
		ports = DefaultPorts
	}

	s.logger.Info("dispatching probes",
		"target", target,
		"http", len(urls),
		"ports", len(ports),
		"concurrency", cfg.MaxConcurrency,
		"rate", cfg.RateLimit,
	)

	gate := NewGate(cfg.MaxConcurrency)
	limiter := NewRateLimiter(cfg.RateLimit)
	col := &collector{result: result}

	var wg conc.WaitGroup

	for _, url := range urls {
		wg.Go(func() {
			start := time.Now()
			err := gated(ctx, gate, limiter, func() {
				col.addHTTP(s.http.ProbeHead(ctx, url, cfg.Timeout))
			})
			if err != nil {
				col.addHTTP(models.NewHTTPFailure(url, "scan cancelled: "+err.Error()))
			}
			s.probeDone(models.ProbeHTTP, url, time.Since(start))
		})
	}

	for _, port := range ports {
		wg.Go(func() {
			start := time.Now()
			err := gated(ctx, gate, limiter, func() {
				col.addBanner(s.banner.ProbeBanner(ctx, target, port, cfg.Timeout))
			})
			if err != nil {
				col.addBanner(models.BannerResult{Host: target, Port: port})
			}
			s.probeDone(models.ProbeBanner, fmt.Sprintf("%s:%d", target, port), time.Since(start))
		})
	}

	wg.Wait()

	s.logger.Info("scan finished",
		"target", target,
		"http_results", len(result.HTTP),
		"banner_results", len(result.Banners),
	)

	return result, nil
}

// HTTPTargets returns the URLs to HEAD-probe: http and https for target when
// it has at least one A record, none otherwise.
func HTTPTargets(target string, dns models.DNSResult) []string {
	if len(dns.Records[models.RecordA]) == 0 {
		return nil
	}
	return []string{"http://" + target, "https://" + target}
}

// gated runs probe inside a gate slot after the rate-limit floor. The slot is
// released when probe returns. A non-nil error means probe never ran.
func gated(ctx context.Context, gate *Gate, limiter *RateLimiter, probe func()) error {
	if err := gate.Acquire(ctx); err != nil {
		return err
	}
	defer gate.Release()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	probe()
	return nil
}

func (s *Scanner) probeDone(kind models.ProbeKind, target string, elapsed time.Duration) {
	s.logger.Debug("probe done", "kind", string(kind), "target", target, "elapsed", elapsed)
	if s.OnProbeDone != nil {
		s.OnProbeDone(kind, target, elapsed)
	}
}

// completeRecords fills in any record type a resolver left out
func completeRecords(dns models.DNSResult, target string) models.DNSResult {
	if dns.Domain == "" {
		dns.Domain = target
	}
	if dns.Records == nil {
		dns.Records = make(map[models.RecordType][]string, len(models.RecordTypes))
	}
	for _, rt := range models.RecordTypes {
		if dns.Records[rt] == nil {
			dns.Records[rt] = []string{}
		}
	}
	return dns
}

// collector serialises appends from concurrently finishing probes
type collector struct {
	mu     sync.Mutex
	result *models.ScanResult
}

func (c *collector) addHTTP(r models.HTTPProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.HTTP = append(c.result.HTTP, r)
}

func (c *collector) addBanner(r models.BannerResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Banners = append(c.result.Banners, r)
}
