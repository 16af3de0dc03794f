package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
)

// HTTPOptions tunes the HEAD prober
type HTTPOptions struct {
	// UserAgent is sent with every request. Empty keeps Go's default.
	UserAgent string
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// MaxRedirects caps how many redirects are followed. Zero means 10.
	MaxRedirects int
}

// HeadProber issues single HEAD requests
type HeadProber struct {
	opts   HTTPOptions
	logger *slog.Logger
}

// NewHeadProber creates a HeadProber
func NewHeadProber(opts HTTPOptions, logger *slog.Logger) *HeadProber {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	return &HeadProber{opts: opts, logger: logging.OrDiscard(logger)}
}

// ProbeHead sends a HEAD request to url, following redirects. The whole
// exchange, connection setup included, is bounded by timeout. Failures are
// returned as the failure variant of the result, never as an error.
func (p *HeadProber) ProbeHead(ctx context.Context, url string, timeout time.Duration) models.HTTPProbeResult {
	client := p.newClient(timeout)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return models.NewHTTPFailure(url, err.Error())
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debug("http head failed", "url", url, "error", err)
		return models.NewHTTPFailure(url, err.Error())
	}
	defer resp.Body.Close()

	return models.NewHTTPSuccess(url, resp.StatusCode, flattenHeaders(resp.Header))
}

// newClient builds a client that shares nothing with other probes
func (p *HeadProber) newClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: p.opts.InsecureSkipVerify},
	}

	maxRedirects := p.opts.MaxRedirects
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// flattenHeaders lower-cases header names and joins repeated values
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}
