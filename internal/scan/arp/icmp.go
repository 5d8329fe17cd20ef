package arp

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/anstrom/netsweep/internal/errors"
)

// icmpProber pings targets with a single echo request. Least privileged
// strategy in the chain; it proves liveness but yields no MAC.
type icmpProber struct {
	timeout time.Duration
}

func newIcmpProber(timeout time.Duration) *icmpProber {
	return &icmpProber{timeout: timeout}
}

func (p *icmpProber) Name() string { return "icmp" }

func (p *icmpProber) Probe(ctx context.Context, target string) (string, bool, error) {
	// Unprivileged UDP sockets first; raw ICMP sockets only when the
	// kernel refuses those.
	alive, err := p.ping(ctx, target, false)
	if err != nil {
		alive, err = p.ping(ctx, target, true)
	}
	if err != nil {
		if errors.GetCode(err) != errors.CodeUnknown {
			return "", false, err
		}
		return "", false, errors.ErrPermissionDenied("icmp echo", err).WithContext("target", target)
	}
	return "", alive, nil
}

func (p *icmpProber) ping(ctx context.Context, target string, privileged bool) (bool, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return false, errors.ErrInvalidTarget(target)
	}
	pinger.SetPrivileged(privileged)
	pinger.Count = 1
	pinger.Timeout = p.timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		if ctx.Err() != nil {
			// Deadline hit mid-ping: the target is silent, not broken.
			return false, nil
		}
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

func (p *icmpProber) Close() {}
