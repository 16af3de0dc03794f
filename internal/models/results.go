package models

// DNSResult holds the records found for a domain, keyed by record type.
// Every type in RecordTypes is present; a failed lookup maps to an empty slice.
type DNSResult struct {
	Domain  string                  `json:"domain"`
	Records map[RecordType][]string `json:"records"`
}

// NewDNSResult returns a DNSResult with an empty slice for every record type
func NewDNSResult(domain string) DNSResult {
	records := make(map[RecordType][]string, len(RecordTypes))
	for _, rt := range RecordTypes {
		records[rt] = []string{}
	}
	return DNSResult{Domain: domain, Records: records}
}

// HTTPProbeResult is the outcome of a HEAD request. Exactly one variant is
// populated: StatusCode and Headers on success, Error on failure.
type HTTPProbeResult struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// NewHTTPSuccess builds the success variant. An empty header map is stored as
// nil so the value survives a JSON round trip unchanged.
func NewHTTPSuccess(url string, statusCode int, headers map[string]string) HTTPProbeResult {
	if len(headers) == 0 {
		headers = nil
	}
	return HTTPProbeResult{URL: url, StatusCode: statusCode, Headers: headers}
}

// NewHTTPFailure builds the failure variant
func NewHTTPFailure(url string, errMsg string) HTTPProbeResult {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return HTTPProbeResult{URL: url, Error: errMsg}
}

// IsSuccess reports whether the probe got a response
func (r HTTPProbeResult) IsSuccess() bool {
	return r.Error == ""
}

// BannerResult is what a TCP banner read produced. An empty Banner covers both
// "connected but nothing was sent" and "could not connect".
type BannerResult struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Banner string `json:"banner"`
}
