package netinfo

import (
	"context"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"

	"github.com/anstrom/netsweep/internal/config"
)

// fakeExchanger records the outgoing query and returns a canned response.
type fakeExchanger struct {
	resp         *dns.Msg
	err          error
	lastQuestion string
	lastServer   string
	calls        int
}

func (f *fakeExchanger) ExchangeContext(_ context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	f.calls++
	if len(m.Question) > 0 {
		f.lastQuestion = m.Question[0].Name
	}
	f.lastServer = addr
	return f.resp, 0, f.err
}

func ptrResponse(name, target string) *dns.Msg {
	msg := new(dns.Msg)
	msg.Rcode = dns.RcodeSuccess
	msg.Answer = []dns.RR{&dns.PTR{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 300},
		Ptr: target,
	}}
	return msg
}

func newTestResolver(fake *fakeExchanger) *Resolver {
	return &Resolver{
		cfg:    config.ResolveConfig{Timeout: time.Second},
		client: fake,
		server: "127.0.0.53:53",
	}
}

func TestLookupResolvesHostname(t *testing.T) {
	fake := &fakeExchanger{
		resp: ptrResponse("100.1.168.192.in-addr.arpa.", "printer.lan."),
	}
	r := newTestResolver(fake)

	hostname := r.Lookup(context.Background(), "192.168.1.100")

	assert.Equal(t, "printer.lan", hostname)
	assert.Equal(t, "100.1.168.192.in-addr.arpa.", fake.lastQuestion)
	assert.Equal(t, "127.0.0.53:53", fake.lastServer)
}

func TestLookupNameError(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeNameError
	r := newTestResolver(&fakeExchanger{resp: resp})

	assert.Equal(t, "", r.Lookup(context.Background(), "192.168.1.200"))
}

func TestLookupExchangeFailure(t *testing.T) {
	r := newTestResolver(&fakeExchanger{err: assert.AnError})

	assert.Equal(t, "", r.Lookup(context.Background(), "192.168.1.200"))
}

func TestLookupIgnoresNonPTRAnswers(t *testing.T) {
	resp := new(dns.Msg)
	resp.Rcode = dns.RcodeSuccess
	resp.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "example.lan.", Rrtype: dns.TypeA, Class: dns.ClassINET},
	}}
	r := newTestResolver(&fakeExchanger{resp: resp})

	assert.Equal(t, "", r.Lookup(context.Background(), "192.168.1.50"))
}

func TestLookupMalformedAddress(t *testing.T) {
	fake := &fakeExchanger{}
	r := newTestResolver(fake)

	assert.Equal(t, "", r.Lookup(context.Background(), "not-an-ip"))
	assert.Zero(t, fake.calls, "no query should go out for a malformed address")
}

func TestLookupWithoutNameserver(t *testing.T) {
	fake := &fakeExchanger{}
	r := &Resolver{client: fake, server: ""}

	assert.Equal(t, "", r.Lookup(context.Background(), "192.168.1.1"))
	assert.Zero(t, fake.calls)
}

func TestNewResolverNameserverForms(t *testing.T) {
	t.Run("appends default port", func(t *testing.T) {
		r := NewResolver(config.ResolveConfig{Nameserver: "192.168.1.1"})
		assert.Equal(t, "192.168.1.1:53", r.server)
	})

	t.Run("keeps explicit port", func(t *testing.T) {
		r := NewResolver(config.ResolveConfig{Nameserver: "10.0.0.1:5353"})
		assert.Equal(t, "10.0.0.1:5353", r.server)
	})
}
