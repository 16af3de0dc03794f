// Package probe implements the individual network probes a scan is made of:
// DNS record enumeration, HTTP HEAD reachability and TCP banner reads.
//
// Each probe bounds its own I/O with the timeout it is given and converts
// failures into data. Only the resolver can return an error, and only for
// conditions that make every lookup impossible.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"golang.org/x/net/idna"

	"github.com/hakim/inspector/internal/logging"
	"github.com/hakim/inspector/internal/models"
)

// DefaultResolvConf is read when no nameservers are configured
const DefaultResolvConf = "/etc/resolv.conf"

var errNoAnswer = errors.New("no answer")

var queryTypes = map[models.RecordType]uint16{
	models.RecordA:    mdns.TypeA,
	models.RecordAAAA: mdns.TypeAAAA,
	models.RecordMX:   mdns.TypeMX,
	models.RecordNS:   mdns.TypeNS,
	models.RecordTXT:  mdns.TypeTXT,
}

// hostnames may carry underscores (_dmarc, srv labels), so STD3 rules are off
var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Resolver enumerates A, AAAA, MX, NS and TXT records for a domain
type Resolver struct {
	servers    []string
	resolvConf string
	logger     *slog.Logger
}

// NewResolver creates a resolver that queries servers in order. Entries
// without a port default to 53. With no servers, the nameservers listed in
// /etc/resolv.conf are used.
func NewResolver(servers []string, logger *slog.Logger) *Resolver {
	return &Resolver{
		servers:    normalizeServers(servers, "53"),
		resolvConf: DefaultResolvConf,
		logger:     logging.OrDiscard(logger),
	}
}

// Resolve looks up every record type in models.RecordTypes, one after the
// other, each bounded by timeout. A failed lookup leaves an empty slice for
// its type and never stops the others.
//
// A domain that is not a valid DNS name yields empty records. An error is
// returned only when there is no nameserver to ask.
func (r *Resolver) Resolve(ctx context.Context, domain string, timeout time.Duration) (models.DNSResult, error) {
	result := models.NewDNSResult(domain)

	fqdn, err := toFQDN(domain)
	if err != nil {
		r.logger.Debug("dns lookup skipped", "domain", domain, "error", err)
		return result, nil
	}

	servers, err := r.nameservers()
	if err != nil {
		return result, err
	}

	for _, rt := range models.RecordTypes {
		records, err := r.lookup(ctx, servers, fqdn, queryTypes[rt], timeout)
		if err != nil {
			r.logger.Debug("dns lookup failed", "type", string(rt), "domain", domain, "error", err)
			continue
		}
		result.Records[rt] = records
	}

	return result, nil
}

// lookup runs a single query. Servers are tried in order until one answers or
// the per-type deadline passes. An authoritative negative answer ends the
// lookup immediately.
func (r *Resolver) lookup(ctx context.Context, servers []string, fqdn string, qtype uint16, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := new(mdns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.SetEdns0(4096, false)

	var lastErr error
	for _, server := range servers {
		resp, err := r.exchange(ctx, msg, server, timeout)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if resp.Rcode != mdns.RcodeSuccess {
			return nil, fmt.Errorf("%s: %s", server, mdns.RcodeToString[resp.Rcode])
		}

		records := answerText(resp.Answer, qtype)
		if len(records) == 0 {
			return nil, errNoAnswer
		}
		return records, nil
	}

	if lastErr == nil {
		lastErr = errNoAnswer
	}
	return nil, lastErr
}

// exchange sends msg over UDP and repeats it over TCP against the same
// server when the reply comes back truncated.
func (r *Resolver) exchange(ctx context.Context, msg *mdns.Msg, server string, timeout time.Duration) (*mdns.Msg, error) {
	udp := &mdns.Client{Net: "udp", Timeout: timeout}
	resp, _, err := udp.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, err
	}
	if !resp.Truncated {
		return resp, nil
	}

	r.logger.Debug("dns reply truncated, retrying over tcp", "server", server, "name", msg.Question[0].Name)
	tcp := &mdns.Client{Net: "tcp", Timeout: timeout}
	resp, _, err = tcp.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, fmt.Errorf("tcp retry: %w", err)
	}
	return resp, nil
}

// nameservers returns the configured servers, falling back to resolv.conf
func (r *Resolver) nameservers() ([]string, error) {
	if len(r.servers) > 0 {
		return r.servers, nil
	}

	conf, err := mdns.ClientConfigFromFile(r.resolvConf)
	if err != nil {
		return nil, fmt.Errorf("reading nameservers from %s: %w", r.resolvConf, err)
	}

	servers := normalizeServers(conf.Servers, conf.Port)
	if len(servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured in %s", r.resolvConf)
	}
	return servers, nil
}

// answerText renders the rdata of every answer of the requested type in DNS
// presentation format. CNAMEs and other chained records are skipped.
func answerText(answers []mdns.RR, qtype uint16) []string {
	out := []string{}
	for _, rr := range answers {
		if rr.Header().Rrtype != qtype {
			continue
		}
		text := strings.TrimPrefix(rr.String(), rr.Header().String())
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

// toFQDN converts a (possibly internationalised) domain into an ASCII FQDN
func toFQDN(domain string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if name == "" {
		return "", errors.New("empty domain")
	}

	ascii, err := domainProfile.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}

	fqdn := mdns.Fqdn(ascii)
	if _, ok := mdns.IsDomainName(fqdn); !ok {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	return fqdn, nil
}

func normalizeServers(servers []string, defaultPort string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), defaultPort)
		}
		out = append(out, s)
	}
	return out
}
