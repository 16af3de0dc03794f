package probe

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
)

const bannerReadSize = 1024

// WatchdogGrace is added to the probe timeout to form the hard ceiling after
// which a banner probe's connection is closed from outside.
const WatchdogGrace = time.Second

// BannerGrabber reads whatever a TCP service sends right after connect
type BannerGrabber struct {
	logger *slog.Logger
}

// NewBannerGrabber creates a BannerGrabber
func NewBannerGrabber(logger *slog.Logger) *BannerGrabber {
	return &BannerGrabber{logger: logging.OrDiscard(logger)}
}

// ProbeBanner connects to host:port and performs one read of up to 1024
// bytes. Connect and read each use timeout as their deadline, and the whole
// probe is cut off at timeout+WatchdogGrace. Any failure yields an empty
// banner, the same as a service that sends nothing.
func (g *BannerGrabber) ProbeBanner(ctx context.Context, host string, port int, timeout time.Duration) models.BannerResult {
	result := models.BannerResult{Host: host, Port: port}

	ctx, cancel := context.WithTimeout(ctx, timeout+WatchdogGrace)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		g.logger.Debug("banner connect failed", "addr", addr, "error", err)
		return result
	}
	defer conn.Close()

	// watchdog: closing the conn ends a read still pending at the hard ceiling
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		g.logger.Debug("banner set deadline failed", "addr", addr, "error", err)
		return result
	}

	buf := make([]byte, bannerReadSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			g.logger.Debug("banner read failed", "addr", addr, "error", err)
		}
		return result
	}

	result.Banner = decodeBanner(buf[:n])
	return result
}

// decodeBanner decodes b as UTF-8, dropping ill-formed sequences, and trims
// surrounding whitespace.
func decodeBanner(b []byte) string {
	dropInvalid := runes.Remove(runes.Predicate(func(r rune) bool {
		return r == utf8.RuneError
	}))

	text, _, err := transform.Bytes(dropInvalid, b)
	if err != nil {
		return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
	}
	return strings.TrimSpace(string(text))
}
