package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/inspector/internal/models"
	"github.com/hakim/inspector/internal/probe"
)

type fakeResolver struct {
	records map[models.RecordType][]string
	err     error
	calls   atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, domain string, timeout time.Duration) (models.DNSResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.DNSResult{}, f.err
	}
	res := models.NewDNSResult(domain)
	for rt, recs := range f.records {
		res.Records[rt] = recs
	}
	return res, nil
}

// tracker records how many probes are inside their network phase at once
type tracker struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
}

func (tr *tracker) enter() {
	tr.calls.Add(1)
	n := tr.inFlight.Add(1)
	for {
		cur := tr.maxSeen.Load()
		if n <= cur || tr.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(tr.hold)
}

func (tr *tracker) leave() { tr.inFlight.Add(-1) }

type fakeHTTP struct {
	*tracker
	fail map[string]bool
}

func (f *fakeHTTP) ProbeHead(ctx context.Context, url string, timeout time.Duration) models.HTTPProbeResult {
	f.enter()
	defer f.leave()
	if f.fail[url] {
		return models.NewHTTPFailure(url, "connection refused")
	}
	return models.NewHTTPSuccess(url, 200, map[string]string{"server": "fake"})
}

type fakeBanner struct {
	*tracker
	banners map[int]string
}

func (f *fakeBanner) ProbeBanner(ctx context.Context, host string, port int, timeout time.Duration) models.BannerResult {
	f.enter()
	defer f.leave()
	return models.BannerResult{Host: host, Port: port, Banner: f.banners[port]}
}

func fastConfig() models.ScanConfig {
	return models.ScanConfig{RateLimit: 1000, MaxConcurrency: 4, Timeout: time.Second}
}

func newFakeScanner(records map[models.RecordType][]string) (*Scanner, *fakeResolver, *tracker) {
	tr := &tracker{}
	res := &fakeResolver{records: records}
	s := New(res, &fakeHTTP{tracker: tr}, &fakeBanner{tracker: tr}, nil)
	return s, res, tr
}

func withA() map[models.RecordType][]string {
	return map[models.RecordType][]string{models.RecordA: {"93.184.216.34"}}
}

func portsOf(banners []models.BannerResult) []int {
	out := make([]int, 0, len(banners))
	for _, b := range banners {
		out = append(out, b.Port)
	}
	return out
}

func urlsOf(results []models.HTTPProbeResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	return out
}

func TestScan_OneBannerPerPort(t *testing.T) {
	for _, n := range []int{0, 1, 3, 17} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			ports := make([]int, 0, n)
			for i := 0; i < n; i++ {
				ports = append(ports, 1000+i)
			}
			s, _, _ := newFakeScanner(withA())

			res, err := s.Scan(context.Background(), "example.com", fastConfig(), ports)
			require.NoError(t, err)
			assert.Len(t, res.Banners, n)
			assert.ElementsMatch(t, ports, portsOf(res.Banners))
		})
	}
}

func TestScan_DefaultPorts(t *testing.T) {
	s, _, _ := newFakeScanner(withA())

	res, err := s.Scan(context.Background(), "example.com", fastConfig(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{22, 80, 443, 3306, 143, 110}, portsOf(res.Banners))
}

func TestScan_HTTPTargetsFollowARecords(t *testing.T) {
	s, _, _ := newFakeScanner(withA())
	res, err := s.Scan(context.Background(), "example.com", fastConfig(), []int{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"http://example.com", "https://example.com"}, urlsOf(res.HTTP))

	noA := map[models.RecordType][]string{
		models.RecordAAAA: {"2606:2800:220:1::"},
		models.RecordMX:   {"10 mail.example.com."},
		models.RecordTXT:  {`"v=spf1 -all"`},
	}
	s, _, tr := newFakeScanner(noA)
	res, err = s.Scan(context.Background(), "example.com", fastConfig(), []int{22})
	require.NoError(t, err)
	assert.Empty(t, res.HTTP)
	assert.NotNil(t, res.HTTP)
	assert.Len(t, res.Banners, 1)
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestScan_ProbeFailuresAreRecorded(t *testing.T) {
	tr := &tracker{}
	httpProber := &fakeHTTP{tracker: tr, fail: map[string]bool{"https://example.com": true}}
	s := New(&fakeResolver{records: withA()}, httpProber, &fakeBanner{tracker: tr}, nil)

	res, err := s.Scan(context.Background(), "example.com", fastConfig(), []int{22})
	require.NoError(t, err)
	require.Len(t, res.HTTP, 2)

	byURL := map[string]models.HTTPProbeResult{}
	for _, r := range res.HTTP {
		byURL[r.URL] = r
	}
	assert.True(t, byURL["http://example.com"].IsSuccess())
	assert.False(t, byURL["https://example.com"].IsSuccess())
	assert.Equal(t, "connection refused", byURL["https://example.com"].Error)
}

func TestScan_GateBoundsInFlightProbes(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		t.Run(strconv.Itoa(k), func(t *testing.T) {
			s, _, tr := newFakeScanner(withA())
			tr.hold = 20 * time.Millisecond

			cfg := models.ScanConfig{RateLimit: 1000, MaxConcurrency: k, Timeout: time.Second}
			ports := []int{1, 2, 3, 4, 5, 6, 7, 8}

			res, err := s.Scan(context.Background(), "example.com", cfg, ports)
			require.NoError(t, err)
			assert.Len(t, res.Banners, len(ports))
			assert.Len(t, res.HTTP, 2)
			assert.LessOrEqual(t, tr.maxSeen.Load(), int32(k))
			assert.Equal(t, int32(len(ports)+2), tr.calls.Load())
		})
	}
}

func TestScan_ConcurrencyIsActuallyUsed(t *testing.T) {
	s, _, tr := newFakeScanner(withA())
	tr.hold = 50 * time.Millisecond

	cfg := models.ScanConfig{RateLimit: 1000, MaxConcurrency: 4, Timeout: time.Second}
	_, err := s.Scan(context.Background(), "example.com", cfg, []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Greater(t, tr.maxSeen.Load(), int32(1))
}

func TestScan_ResolverErrorAbortsScan(t *testing.T) {
	tr := &tracker{}
	boom := errors.New("no nameservers")
	s := New(&fakeResolver{err: boom}, &fakeHTTP{tracker: tr}, &fakeBanner{tracker: tr}, nil)

	res, err := s.Scan(context.Background(), "example.com", fastConfig(), []int{22})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Zero(t, tr.calls.Load())
}

func TestScan_InvalidConfig(t *testing.T) {
	s, res, _ := newFakeScanner(withA())
	_, err := s.Scan(context.Background(), "example.com", models.ScanConfig{}, nil)
	require.Error(t, err)
	assert.Zero(t, res.calls.Load())
}

func TestScan_TimestampTakenBeforeResolution(t *testing.T) {
	s, _, _ := newFakeScanner(withA())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	res, err := s.Scan(context.Background(), "example.com", fastConfig(), []int{})
	require.NoError(t, err)
	assert.Equal(t, fixed.Unix(), res.Timestamp)
	assert.Equal(t, "example.com", res.Target)
}

func TestScan_CancelledScanStillRecordsEveryProbe(t *testing.T) {
	s, _, tr := newFakeScanner(withA())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := models.ScanConfig{RateLimit: 1, MaxConcurrency: 1, Timeout: time.Second}
	res, err := s.Scan(ctx, "example.com", cfg, []int{22, 80, 443})
	require.NoError(t, err)
	assert.Len(t, res.HTTP, 2)
	assert.Len(t, res.Banners, 3)
	for _, h := range res.HTTP {
		assert.False(t, h.IsSuccess())
		assert.Contains(t, h.Error, "scan cancelled")
	}
	assert.Zero(t, tr.calls.Load())
}

func TestScan_OnProbeDone(t *testing.T) {
	s, _, _ := newFakeScanner(withA())

	var mu sync.Mutex
	seen := map[models.ProbeKind]int{}
	s.OnProbeDone = func(kind models.ProbeKind, target string, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen[kind]++
	}

	_, err := s.Scan(context.Background(), "example.com", fastConfig(), []int{22, 80})
	require.NoError(t, err)
	assert.Equal(t, 2, seen[models.ProbeHTTP])
	assert.Equal(t, 2, seen[models.ProbeBanner])
}

func TestScan_ConcurrentScansAreIndependent(t *testing.T) {
	s, _, _ := newFakeScanner(withA())

	var wg sync.WaitGroup
	results := make([]*models.ScanResult, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := fmt.Sprintf("host%d.example.com", i)
			res, err := s.Scan(context.Background(), target, fastConfig(), []int{22, 80, 443})
			if err == nil {
				results[i] = res
			}
		}()
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		target := fmt.Sprintf("host%d.example.com", i)
		assert.Len(t, res.Banners, 3)
		for _, b := range res.Banners {
			assert.Equal(t, target, b.Host)
		}
	}
}

// TestScan_LoopbackScenario exercises the real probes against local
// listeners: one port with a greeting, one refused port.
func TestScan_LoopbackScenario(t *testing.T) {
	greeting, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer greeting.Close()
	go func() {
		for {
			c, err := greeting.Accept()
			if err != nil {
				return
			}
			_, _ = c.Write([]byte("220 local ESMTP\r\n"))
			_ = c.Close()
		}
	}()

	refused, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	refusedPort := refused.Addr().(*net.TCPAddr).Port
	require.NoError(t, refused.Close())

	openPort := greeting.Addr().(*net.TCPAddr).Port

	// an A record makes the scan dispatch both HTTP probes; whatever they
	// find on 127.0.0.1, each URL yields exactly one entry
	s := New(
		&fakeResolver{records: map[models.RecordType][]string{models.RecordA: {"127.0.0.1"}}},
		probe.NewHeadProber(probe.HTTPOptions{}, nil),
		probe.NewBannerGrabber(nil),
		nil,
	)

	cfg := models.ScanConfig{RateLimit: 100, MaxConcurrency: 2, Timeout: 2 * time.Second}
	res, err := s.Scan(context.Background(), "127.0.0.1", cfg, []int{openPort, refusedPort})
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1"}, res.DNS.Records[models.RecordA])
	assert.ElementsMatch(t, []string{"http://127.0.0.1", "https://127.0.0.1"}, urlsOf(res.HTTP))
	require.Len(t, res.Banners, 2)

	byPort := map[int]string{}
	for _, b := range res.Banners {
		byPort[b.Port] = b.Banner
	}
	assert.Equal(t, "220 local ESMTP", byPort[openPort])
	assert.Equal(t, "", byPort[refusedPort])
}

func TestHTTPTargets(t *testing.T) {
	dns := models.NewDNSResult("example.com")
	assert.Empty(t, HTTPTargets("example.com", dns))

	dns.Records[models.RecordA] = []string{"192.0.2.1"}
	assert.Equal(t, []string{"http://example.com", "https://example.com"}, HTTPTargets("example.com", dns))
}

func TestCompleteRecords(t *testing.T) {
	got := completeRecords(models.DNSResult{}, "example.com")
	assert.Equal(t, "example.com", got.Domain)
	for _, rt := range models.RecordTypes {
		assert.NotNil(t, got.Records[rt])
	}
}
