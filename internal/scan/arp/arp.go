// Package arp implements the ARP discovery phase. It sweeps the target
// list for hosts that answer on the local segment, producing IP to MAC
// pairs. Three strategies are supported: invoking the system arping
// binary, sending raw ARP requests over a packet capture handle, and an
// ICMP echo fallback that proves liveness without a MAC. The "auto"
// strategy picks the first one that is usable, and a strategy that
// cannot run at all falls back to the next in the chain.
package arp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/netinfo"
	"github.com/anstrom/netsweep/internal/scan"
	"github.com/anstrom/netsweep/internal/workers"
)

const phaseName = string(scan.PhaseArp)

// prober is one ARP resolution strategy. Probe reports whether the
// target answered within the context deadline and the MAC it answered
// with. The MAC is empty for strategies that cannot observe link-layer
// addresses.
type prober interface {
	Name() string
	Probe(ctx context.Context, target string) (mac string, alive bool, err error)
	Close()
}

// proberFactory builds one strategy by name. Swapped out in tests.
type proberFactory func(name string, network *netinfo.NetworkInfo, timeout time.Duration) (prober, error)

func newProber(name string, network *netinfo.NetworkInfo, timeout time.Duration) (prober, error) {
	switch name {
	case "arping":
		return newArpingProber(timeout)
	case "packet":
		return newPacketProber(network, timeout)
	case "icmp":
		return newIcmpProber(timeout), nil
	}
	return nil, errors.NewScanError(errors.CodeConfiguration,
		fmt.Sprintf("Unknown ARP strategy %q", name))
}

// strategyChain returns the fallback order starting at the configured
// strategy. Later entries need fewer privileges.
func strategyChain(strategy string) []string {
	chain := []string{"arping", "packet", "icmp"}
	if strategy == "" || strategy == "auto" {
		return chain
	}
	for i, name := range chain {
		if name == strategy {
			return chain[i:]
		}
	}
	return []string{strategy}
}

// Scanner runs the ARP phase over a bounded worker pool.
type Scanner struct {
	cfg       config.ARPConfig
	network   *netinfo.NetworkInfo
	policy    errors.Policy
	newProber proberFactory
	log       *logging.Logger
}

// NewScanner creates an ARP scanner for the given network context.
func NewScanner(cfg config.ARPConfig, network *netinfo.NetworkInfo) *Scanner {
	return &Scanner{
		cfg:       cfg,
		network:   network,
		policy:    errors.Policy{MaxRetries: cfg.Retries},
		newProber: newProber,
		log:       logging.Default().WithPhase(phaseName),
	}
}

// Scan probes every target and returns the addresses that answered.
// Targets that stay silent are absent from the result, not errors. The
// returned error is non-nil only when no strategy could run at all.
func (s *Scanner) Scan(ctx context.Context, targets []string) (*scan.ArpResult, error) {
	result := scan.NewArpResult(len(targets))
	if len(targets) == 0 {
		result.Complete(scan.StatusCompleted)
		return result, nil
	}

	prb, err := s.selectProber()
	if err != nil {
		result.AddError(err)
		result.Complete(scan.StatusFailed)
		metrics.IncrementPhaseErrors(phaseName, string(errors.GetCode(err)))
		return result, err
	}
	defer prb.Close()

	s.log.Info("Starting ARP sweep",
		"strategy", prb.Name(),
		"targets", len(targets),
		"workers", s.cfg.Workers)

	pool := workers.New(workers.Config{
		Size:            s.cfg.Workers,
		QueueSize:       len(targets),
		ShutdownTimeout: 5 * time.Second,
	})
	pool.Start()
	defer func() { _ = pool.Shutdown() }()

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		job := workers.NewProbeJob(fmt.Sprintf("arp-%d", i), target, prb.Name(),
			func(_ context.Context, address, _ string) error {
				defer wg.Done()
				finding, ok := s.probeTarget(ctx, prb, address)
				if ok {
					mu.Lock()
					result.Add(finding)
					mu.Unlock()
				}
				return nil
			})
		if submitErr := pool.Submit(job); submitErr != nil {
			wg.Done()
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		result.AddError(errors.WrapScanError(errors.CodeCanceled, "Sweep interrupted", ctx.Err()))
		result.Complete(scan.StatusPartial)
	} else {
		result.Complete(scan.StatusCompleted)
	}

	s.log.Info("ARP sweep finished",
		"status", string(result.Status),
		"responsive", result.Found,
		"targets", result.Targets,
		"duration", result.Duration)
	metrics.RecordPhaseDuration(phaseName, result.Duration)
	metrics.IncrementPhaseTotal(phaseName, string(result.Status))

	return result, nil
}

// selectProber walks the strategy chain until one can be constructed.
// Unusable strategies fall back per the recovery policy.
func (s *Scanner) selectProber() (prober, error) {
	chain := strategyChain(s.cfg.Strategy)

	var lastErr error
	for i, name := range chain {
		prb, err := s.newProber(name, s.network, s.cfg.Timeout)
		if err == nil {
			return prb, nil
		}
		lastErr = err

		action := s.policy.Handle(err, errors.HandleContext{
			FallbackAvailable: i < len(chain)-1,
		})
		if action != errors.ActionFallback {
			break
		}
		s.log.Warn("ARP strategy unusable, falling back",
			"strategy", name,
			"next", chain[i+1],
			"error", err)
		metrics.Counter(metrics.MetricFallbacks, metrics.Labels{
			metrics.LabelPhase:    phaseName,
			metrics.LabelStrategy: name,
		})
	}
	return nil, lastErr
}

// probeTarget runs the per-target attempt loop: one probe plus the
// configured retries, each bounded by its own timeout. Retries fire
// immediately since the phase operates inside a broadcast domain.
func (s *Scanner) probeTarget(ctx context.Context, prb prober, address string) (scan.ArpFinding, bool) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return scan.ArpFinding{}, false
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		mac, alive, err := prb.Probe(attemptCtx, address)
		cancel()

		if err != nil {
			if s.policy.Handle(err, errors.HandleContext{Attempt: attempt}) == errors.ActionRetry {
				metrics.Counter(metrics.MetricProbeRetries, metrics.Labels{
					metrics.LabelPhase: phaseName,
				})
				continue
			}
			s.log.WarnProbe("Probe failed", address, "strategy", prb.Name(), "error", err)
			metrics.IncrementProbes(phaseName, "error")
			return scan.ArpFinding{}, false
		}
		if alive {
			metrics.IncrementProbes(phaseName, "responsive")
			return scan.ArpFinding{IP: address, MAC: mac, Source: prb.Name()}, true
		}
		if attempt >= s.cfg.Retries {
			metrics.IncrementProbes(phaseName, "silent")
			return scan.ArpFinding{}, false
		}
		metrics.Counter(metrics.MetricProbeRetries, metrics.Labels{
			metrics.LabelPhase: phaseName,
		})
	}
}
