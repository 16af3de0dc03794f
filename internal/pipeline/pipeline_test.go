package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/inspector/internal/auth"
	"github.com/hakim/inspector/internal/models"
)

type fakeScanner struct {
	mu     sync.Mutex
	calls  int
	result *models.ScanResult
	err    error
	panics bool
}

func (f *fakeScanner) Scan(ctx context.Context, target string, cfg models.ScanConfig, ports []int) (*models.ScanResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panics {
		panic("probe exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}

	r := models.NewScanResult(target, time.Unix(1700000000, 0))
	r.DNS.Records[models.RecordA] = []string{"93.184.216.34"}
	r.HTTP = []models.HTTPProbeResult{
		models.NewHTTPSuccess("http://"+target, 200, nil),
		models.NewHTTPFailure("https://"+target, "timeout"),
	}
	for _, p := range ports {
		r.Banners = append(r.Banners, models.BannerResult{Host: target, Port: p})
	}
	return r, nil
}

type fakeSink struct {
	saved []*models.ScanResult
	err   error
}

func (f *fakeSink) Save(result *models.ScanResult) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, result)
	return "reports/report_test.json", nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]models.ScanMeta
	saves   int
	err     error
}

func (f *fakeStore) SaveScan(meta *models.ScanMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	if f.records == nil {
		f.records = make(map[string]models.ScanMeta)
	}
	f.records[meta.ID] = *meta
	return nil
}

type staticAuth struct {
	ok  bool
	err error
}

func (a staticAuth) Validate(string) (bool, error) { return a.ok, a.err }

func tokenAuthorizer(t *testing.T, tokens string) *auth.FileAuthorizer {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tokens.json", []byte(tokens), 0600))
	return auth.NewFileAuthorizer(fs, "tokens.json")
}

func validRequest() Request {
	return Request{
		Target: "example.com",
		Token:  "good",
		Config: models.ScanConfig{RateLimit: 100, MaxConcurrency: 2, Timeout: 2 * time.Second},
		Ports:  []int{80, 443},
	}
}

func TestRun_Success(t *testing.T) {
	sc := &fakeScanner{}
	sink := &fakeSink{}
	store := &fakeStore{}
	var progress bytes.Buffer

	r := NewRunner(tokenAuthorizer(t, `[{"token":"good"}]`), sc, sink, store, nil)
	r.Progress = &progress

	res, err := r.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "reports/report_test.json", res.ReportPath)
	assert.NotEmpty(t, res.ScanID)
	require.Len(t, sink.saved, 1)
	assert.Len(t, res.Scan.Banners, 2)

	rec := store.records[res.ScanID]
	assert.Equal(t, models.StatusComplete, rec.Status)
	assert.Equal(t, "reports/report_test.json", rec.ReportPath)
	assert.Equal(t, 2, rec.HTTPCount)
	assert.Equal(t, 1, rec.HTTPReachable)
	assert.Equal(t, 2, rec.BannerCount)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, 2, store.saves)

	assert.Contains(t, progress.String(), "[*] Scan ID: "+res.ScanID)
	assert.Contains(t, progress.String(), "[+] Report saved: reports/report_test.json")
}

func TestRun_EmptyTokenStoreDispatchesNothing(t *testing.T) {
	sc := &fakeScanner{}
	sink := &fakeSink{}
	store := &fakeStore{}

	r := NewRunner(tokenAuthorizer(t, `[]`), sc, sink, store, nil)
	res, err := r.Run(context.Background(), validRequest())

	assert.Nil(t, res)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Zero(t, sc.calls)
	assert.Empty(t, sink.saved)
	assert.Zero(t, store.saves)
}

func TestRun_FalseWithoutErrorIsUnauthorized(t *testing.T) {
	sc := &fakeScanner{}
	_, err := NewRunner(staticAuth{ok: false}, sc, &fakeSink{}, nil, nil).
		Run(context.Background(), validRequest())
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Zero(t, sc.calls)
}

func TestRun_AuthorizerReadError(t *testing.T) {
	sc := &fakeScanner{}
	readErr := errors.New("disk on fire")
	_, err := NewRunner(staticAuth{err: readErr}, sc, &fakeSink{}, nil, nil).
		Run(context.Background(), validRequest())
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)
	assert.Zero(t, sc.calls)
}

func TestRun_EmptyTarget(t *testing.T) {
	req := validRequest()
	req.Target = "  "
	_, err := NewRunner(staticAuth{ok: true}, &fakeScanner{}, &fakeSink{}, nil, nil).
		Run(context.Background(), req)
	assert.ErrorContains(t, err, "target is required")
}

func TestRun_OutOfScope(t *testing.T) {
	sc := &fakeScanner{}
	req := validRequest()
	req.Scope = &ScopeConfig{AllowedDomains: []string{"*.corp.example"}}

	_, err := NewRunner(staticAuth{ok: true}, sc, &fakeSink{}, nil, nil).
		Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrOutOfScope)
	assert.Zero(t, sc.calls)
}

func TestRun_ScanErrorMarksHistoryFailed(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeSink{}
	sc := &fakeScanner{err: errors.New("resolving example.com: no nameservers")}

	res, err := NewRunner(staticAuth{ok: true}, sc, sink, store, nil).
		Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nameservers")
	require.NotNil(t, res)

	rec := store.records[res.ScanID]
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "no nameservers")
	assert.Empty(t, sink.saved)
}

func TestRun_ScanPanicIsContained(t *testing.T) {
	store := &fakeStore{}
	res, err := NewRunner(staticAuth{ok: true}, &fakeScanner{panics: true}, &fakeSink{}, store, nil).
		Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan panicked: probe exploded")
	assert.Equal(t, models.StatusFailed, store.records[res.ScanID].Status)
}

func TestRun_ReportSaveError(t *testing.T) {
	store := &fakeStore{}
	res, err := NewRunner(staticAuth{ok: true}, &fakeScanner{}, &fakeSink{err: errors.New("read-only fs")}, store, nil).
		Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving report")
	assert.Equal(t, models.StatusFailed, store.records[res.ScanID].Status)
}

func TestRun_InitialHistoryFailureAborts(t *testing.T) {
	sc := &fakeScanner{}
	_, err := NewRunner(staticAuth{ok: true}, sc, &fakeSink{}, &fakeStore{err: errors.New("db locked")}, nil).
		Run(context.Background(), validRequest())
	assert.ErrorContains(t, err, "db locked")
	assert.Zero(t, sc.calls)
}

func TestRun_NilStoreKeepsNoHistory(t *testing.T) {
	res, err := NewRunner(staticAuth{ok: true}, &fakeScanner{}, &fakeSink{}, nil, nil).
		Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, res.Meta.Status)
}

func TestRun_WebhookReceivesPayload(t *testing.T) {
	got := make(chan completionPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p completionPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Error(err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req := validRequest()
	req.Notify = &NotifyConfig{WebhookURL: srv.URL}

	res, err := NewRunner(staticAuth{ok: true}, &fakeScanner{}, &fakeSink{}, nil, nil).
		Run(context.Background(), req)
	require.NoError(t, err)

	p := <-got
	assert.Equal(t, "example.com", p.Target)
	assert.Equal(t, res.ScanID, p.ScanID)
	assert.Equal(t, "complete", p.Status)
	assert.Equal(t, "reports/report_test.json", p.Report)
	assert.Equal(t, 1, p.HTTPReachable)
	assert.Equal(t, 2, p.BannerCount)
}

func TestRun_WebhookFailureIsOnlyAWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req := validRequest()
	req.Notify = &NotifyConfig{WebhookURL: srv.URL}
	var progress bytes.Buffer

	r := NewRunner(staticAuth{ok: true}, &fakeScanner{}, &fakeSink{}, nil, nil)
	r.Progress = &progress
	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, progress.String(), "non-2xx status 502")
}

func TestSendCompletion_NoopWithoutURL(t *testing.T) {
	var n *NotifyConfig
	assert.NoError(t, n.SendCompletion(context.Background(), &Result{}))
	assert.NoError(t, (&NotifyConfig{}).SendCompletion(context.Background(), &Result{}))
}

func TestScope_Domains(t *testing.T) {
	s := &ScopeConfig{AllowedDomains: []string{"example.com", "*.corp.example"}}

	for _, ok := range []string{"example.com", "EXAMPLE.com.", "www.corp.example"} {
		assert.NoError(t, s.Check(ok), ok)
	}
	for _, bad := range []string{"www.example.com", "corp.example", "a.b.corp.example", "evil.com"} {
		assert.ErrorIs(t, s.Check(bad), ErrOutOfScope, bad)
	}
}

func TestScope_CIDRs(t *testing.T) {
	s := &ScopeConfig{AllowedCIDRs: []string{"192.0.2.0/24", "not-a-cidr", "2001:db8::/32"}}

	assert.NoError(t, s.Check("192.0.2.77"))
	assert.NoError(t, s.Check("2001:db8::1"))
	assert.ErrorIs(t, s.Check("198.51.100.1"), ErrOutOfScope)

}

func TestScope_TargetKindWithoutRulesIsRejected(t *testing.T) {
	domainsOnly := &ScopeConfig{AllowedDomains: []string{"example.com"}}
	assert.ErrorIs(t, domainsOnly.Check("8.8.8.8"), ErrOutOfScope)
	assert.ErrorIs(t, domainsOnly.Check("2001:db8::1"), ErrOutOfScope)

	cidrsOnly := &ScopeConfig{AllowedCIDRs: []string{"10.0.0.0/8"}}
	assert.ErrorIs(t, cidrsOnly.Check("evil.org"), ErrOutOfScope)
	assert.NoError(t, cidrsOnly.Check("10.1.2.3"))

	both := &ScopeConfig{AllowedDomains: []string{"example.com"}, AllowedCIDRs: []string{"10.0.0.0/8"}}
	assert.NoError(t, both.Check("example.com"))
	assert.NoError(t, both.Check("10.1.2.3"))
}

func TestScope_NilAllowsEverything(t *testing.T) {
	var s *ScopeConfig
	assert.NoError(t, s.Check("anything.example"))
	assert.NoError(t, (&ScopeConfig{}).Check("192.0.2.1"))
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"aggressive", "default", "gentle"}, ProfileNames())

	p, err := GetProfile("Gentle")
	require.NoError(t, err)
	assert.Equal(t, models.ScanConfig{RateLimit: 2, MaxConcurrency: 2, Timeout: 10 * time.Second}, p.ScanConfig())

	for _, prof := range BuiltinProfiles() {
		assert.NoError(t, prof.ScanConfig().Validate(), prof.Name)
	}

	_, err = GetProfile("stealth")
	assert.ErrorContains(t, err, "available: aggressive, default, gentle")
}
