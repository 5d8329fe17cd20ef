// Package pipeline sequences the discovery capabilities into one scan
// run: detect the network, sweep it with ARP, port-scan the responders,
// query the SNMP candidates, then merge, classify and name the devices.
// A capability that fails degrades the run to PARTIAL instead of ending
// it. Only configuration errors surfaced before any scanning happened
// abort a run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/device"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/netinfo"
	"github.com/anstrom/netsweep/internal/scan"
	"github.com/anstrom/netsweep/internal/scan/arp"
	"github.com/anstrom/netsweep/internal/scan/portscan"
	"github.com/anstrom/netsweep/internal/scan/snmp"
	"github.com/anstrom/netsweep/internal/workers"
)

// targetSource yields the network to scan and its target addresses.
type targetSource interface {
	Detect() (*netinfo.NetworkInfo, error)
	Targets(info *netinfo.NetworkInfo) []string
}

// The capability interfaces below always return a non-nil result
// carrying the phase outcome, even when they also return an error.

type arpScanner interface {
	Scan(ctx context.Context, targets []string) (*scan.ArpResult, error)
}

type portScanner interface {
	Scan(ctx context.Context, targets []string) (*scan.PortScanResult, error)
}

type snmpScanner interface {
	Scan(ctx context.Context, targets []string) (*scan.SnmpResult, error)
}

type hostnameLookup interface {
	Lookup(ctx context.Context, ip string) string
}

// Orchestrator runs the full discovery pipeline. The ARP scanner is
// built per run because its strategies bind to the detected interface.
type Orchestrator struct {
	cfg        *config.Config
	detector   targetSource
	newArp     func(network *netinfo.NetworkInfo) arpScanner
	portScan   portScanner
	snmpScan   snmpScanner
	resolver   hostnameLookup
	classifier *device.Classifier
	log        *logging.Logger
}

// New assembles an orchestrator from the configuration.
func New(cfg *config.Config) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		detector: netinfo.NewDetector(cfg.Network),
		newArp: func(network *netinfo.NetworkInfo) arpScanner {
			return arp.NewScanner(cfg.ARP, network)
		},
		portScan:   portscan.NewScanner(cfg.PortScan, cfg.SNMP.Port),
		snmpScan:   snmp.NewScanner(cfg.SNMP),
		classifier: device.NewClassifier(cfg.Classify),
		log:        logging.Default().WithComponent("pipeline"),
	}
	if cfg.Resolve.Enabled {
		o.resolver = netinfo.NewResolver(cfg.Resolve)
	}
	return o
}

// ExecuteFullScan performs one complete discovery run. The returned
// result is non-nil unless the run aborted before scanning started.
// Capability failures mid-run are recorded in the result instead of
// being returned.
func (o *Orchestrator) ExecuteFullScan(ctx context.Context) (*Result, error) {
	result := NewResult()
	log := o.log.WithRunID(result.RunID)

	network, err := o.detector.Detect()
	if err != nil {
		log.Error("Network detection failed", "error", err)
		return nil, err
	}
	result.Network = network
	result.CIDR = network.CIDR()

	targets := o.detector.Targets(network)
	result.Stats.TargetsPlanned = len(targets)
	log.Info("Starting scan run",
		"cidr", result.CIDR,
		"interface", network.InterfaceName,
		"targets", len(targets))

	scanned := false

	var arpRes *scan.ArpResult
	if o.cfg.ARP.Enabled {
		arpRes, err = o.newArp(network).Scan(ctx, targets)
		if abortErr := recordPhase(result, log, arpRes.PhaseResult, err, scanned); abortErr != nil {
			return nil, abortErr
		}
		scanned = true
	} else {
		log.InfoPhase("ARP sweep disabled, port-scanning all targets", string(scan.PhaseArp))
	}

	// With the sweep enabled only its responders go on to the port
	// scan, even when the sweep failed and left none.
	scanTargets := targets
	if o.cfg.ARP.Enabled {
		scanTargets = survivorsOf(arpRes)
	}

	portRes, err := o.portScan.Scan(ctx, scanTargets)
	if abortErr := recordPhase(result, log, portRes.PhaseResult, err, scanned); abortErr != nil {
		return nil, abortErr
	}
	scanned = true

	candidates := portRes.Candidates()
	result.Stats.SnmpCandidates = len(candidates)

	var snmpRes *scan.SnmpResult
	switch {
	case !o.cfg.SNMP.Enabled:
		log.InfoPhase("SNMP enrichment disabled", string(scan.PhaseSnmp))
	case len(candidates) == 0:
		log.InfoPhase("No hosts expose the SNMP port, skipping enrichment", string(scan.PhaseSnmp))
	default:
		snmpRes, err = o.snmpScan.Scan(ctx, candidates)
		if abortErr := recordPhase(result, log, snmpRes.PhaseResult, err, scanned); abortErr != nil {
			return nil, abortErr
		}
	}

	result.Devices = device.Merge(arpRes, portRes, snmpRes)
	counts := o.classifier.ClassifyAll(result.Devices)
	result.Stats.DevicesFound = len(result.Devices)
	result.Stats.DeviceTypes = counts
	for deviceType, count := range counts {
		metrics.IncrementDevicesFound(string(deviceType), count)
	}

	if o.resolver != nil {
		result.Stats.HostnamesResolved = o.resolveHostnames(ctx, log, result.Devices)
	}

	result.Complete()
	log.Info("Scan run finished",
		"status", string(result.Status),
		"devices", result.Stats.DevicesFound,
		"snmp_candidates", result.Stats.SnmpCandidates,
		"duration", result.Duration)
	metrics.Histogram(metrics.MetricRunDuration, result.Duration.Seconds(), metrics.Labels{
		metrics.LabelStatus: string(result.Status),
	})
	metrics.Counter(metrics.MetricRunTotal, metrics.Labels{
		metrics.LabelStatus: string(result.Status),
	})

	return result, nil
}

// recordPhase stores the phase outcome and decides whether the run may
// continue. A fatal error from the first executed phase aborts the run;
// any later failure degrades it and the pipeline moves on.
func recordPhase(result *Result, log *logging.Logger, phase scan.PhaseResult, err error, scanned bool) error {
	result.Phases[phase.Phase] = phase
	if err == nil {
		return nil
	}
	if errors.IsFatal(err) && !scanned {
		log.ErrorPhase("Aborting run on configuration error", string(phase.Phase), err)
		return err
	}
	log.ErrorPhase("Phase failed, continuing with remaining capabilities", string(phase.Phase), err)
	return nil
}

// survivorsOf returns the sweep's responders in ascending order. A nil
// or empty sweep result yields no survivors.
func survivorsOf(arpRes *scan.ArpResult) []string {
	if arpRes == nil {
		return nil
	}
	ips := make([]string, 0, len(arpRes.Findings))
	for ip := range arpRes.Findings {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// resolveHostnames fills missing hostnames via reverse DNS and returns
// how many it filled. Names learned during scanning are kept as-is.
func (o *Orchestrator) resolveHostnames(ctx context.Context, log *logging.Logger, records map[string]*device.Record) int {
	var pending []string
	for _, ip := range device.SortedIPs(records) {
		if records[ip].Hostname == "" {
			pending = append(pending, ip)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	pool := workers.New(workers.Config{
		Size:            o.cfg.Resolve.Workers,
		QueueSize:       len(pending),
		ShutdownTimeout: 5 * time.Second,
	})
	pool.Start()
	defer func() { _ = pool.Shutdown() }()

	var mu sync.Mutex
	var wg sync.WaitGroup
	resolved := 0

	for i, ip := range pending {
		wg.Add(1)
		job := workers.NewLookupJob(fmt.Sprintf("ptr-%d", i), ip,
			func(_ context.Context, address string) {
				defer wg.Done()
				name := o.resolver.Lookup(ctx, address)
				if name == "" {
					return
				}
				mu.Lock()
				if rec := records[address]; rec.Hostname == "" {
					rec.Hostname = name
					resolved++
					metrics.Counter(metrics.MetricHostsResolved, nil)
				}
				mu.Unlock()
			})
		if submitErr := pool.Submit(job); submitErr != nil {
			wg.Done()
		}
	}
	wg.Wait()

	log.Info("Hostname resolution finished",
		"resolved", resolved,
		"attempted", len(pending))
	return resolved
}
