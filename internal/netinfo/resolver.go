package netinfo

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/metrics"
)

// resolvConfPath is the system resolver configuration consulted when no
// nameserver is configured.
const resolvConfPath = "/etc/resolv.conf"

// exchanger issues one DNS exchange. Satisfied by *dns.Client.
type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// Resolver fills in hostnames for discovered devices via reverse DNS.
// Lookup failures are silent: a device without a PTR record simply keeps
// an empty hostname.
type Resolver struct {
	cfg    config.ResolveConfig
	client exchanger
	server string
}

// NewResolver creates a resolver using the configured nameserver, or the
// system resolver configuration when none is set.
func NewResolver(cfg config.ResolveConfig) *Resolver {
	server := cfg.Nameserver
	switch {
	case server == "":
		if conf, err := dns.ClientConfigFromFile(resolvConfPath); err == nil && len(conf.Servers) > 0 {
			server = net.JoinHostPort(conf.Servers[0], conf.Port)
		}
	case !strings.Contains(server, ":"):
		server = net.JoinHostPort(server, "53")
	}

	return &Resolver{
		cfg:    cfg,
		client: &dns.Client{Timeout: cfg.Timeout},
		server: server,
	}
}

// Lookup resolves one address to a hostname. Returns "" when no PTR
// record exists, the query fails, or no nameserver is available.
func (r *Resolver) Lookup(ctx context.Context, ip string) string {
	if r.server == "" {
		return ""
	}

	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return ""
	}

	for _, ans := range resp.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			hostname := strings.TrimSuffix(ptr.Ptr, ".")
			if hostname != "" {
				metrics.Counter(metrics.MetricHostsResolved, nil)
				return hostname
			}
		}
	}

	return ""
}
