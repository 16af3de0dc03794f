package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// notifyTimeout bounds one webhook delivery
const notifyTimeout = 10 * time.Second

// NotifyConfig configures where to send completion notifications.
type NotifyConfig struct {
	WebhookURL string // if empty, no notifications
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	Target          string  `json:"target"`
	ScanID          string  `json:"scan_id"`
	Status          string  `json:"status"`
	Report          string  `json:"report,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	HTTPReachable   int     `json:"http_reachable"`
	HTTPCount       int     `json:"http_count"`
	BannersCaptured int     `json:"banners_captured"`
	BannerCount     int     `json:"banner_count"`
	Error           string  `json:"error,omitempty"`
}

// SendCompletion posts a JSON payload to the webhook URL with scan results.
// Returns nil if WebhookURL is empty (no-op). Errors are returned but
// callers should treat them as warnings.
func (n *NotifyConfig) SendCompletion(ctx context.Context, result *Result) error {
	if n == nil || n.WebhookURL == "" {
		return nil
	}

	meta := result.Meta
	payload := completionPayload{
		Target:          result.Target,
		ScanID:          result.ScanID,
		Status:          string(meta.Status),
		Report:          result.ReportPath,
		ElapsedSeconds:  result.Elapsed.Seconds(),
		HTTPReachable:   meta.HTTPReachable,
		HTTPCount:       meta.HTTPCount,
		BannersCaptured: meta.BannersCaptured,
		BannerCount:     meta.BannerCount,
		Error:           meta.Error,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
