// Package portscan implements the port scanning phase. It hands the
// whole target batch to nmap in a single invocation built from
// configuration, bounds the run with the phase timeout, and converts
// the structured output into per-host findings. Hosts that expose the
// configured SNMP port are flagged as candidates for the next phase.
package portscan

import (
	"context"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/scan"
)

const phaseName = string(scan.PhasePortScan)

// Runner executes one scan tool invocation and returns the parsed run.
// Implementations may return a non-nil run together with an error when
// the tool produced partial output before failing.
type Runner interface {
	Run(ctx context.Context, options []nmap.Option) (*nmap.Run, []string, error)
}

// nmapRunner is the production Runner backed by the nmap binary.
type nmapRunner struct{}

func (nmapRunner) Run(ctx context.Context, options []nmap.Option) (*nmap.Run, []string, error) {
	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		return nil, nil, errors.ErrToolMissing("nmap", err)
	}

	run, warnings, err := scanner.Run()

	var warns []string
	if warnings != nil {
		warns = *warnings
	}
	return run, warns, err
}

// Scanner runs the port scanning phase.
type Scanner struct {
	cfg      config.PortScanConfig
	snmpPort int
	runner   Runner
	log      *logging.Logger
}

// NewScanner returns a Scanner for the given configuration. Hosts with
// snmpPort open are flagged as SNMP candidates in the findings.
func NewScanner(cfg config.PortScanConfig, snmpPort int) *Scanner {
	return &Scanner{
		cfg:      cfg,
		snmpPort: snmpPort,
		runner:   nmapRunner{},
		log:      logging.Default().WithPhase(phaseName),
	}
}

// Scan probes the configured port range on every target. Targets the
// tool reports down or omits from its output are absent from the
// result. A timeout that cuts the run short degrades the phase to
// PARTIAL when partial output could still be parsed, and fails it
// otherwise.
func (s *Scanner) Scan(ctx context.Context, targets []string) (*scan.PortScanResult, error) {
	result := scan.NewPortScanResult(len(targets))
	if len(targets) == 0 {
		result.Complete(scan.StatusCompleted)
		return result, nil
	}

	if err := config.ValidatePorts(s.cfg.Ports); err != nil {
		scanErr := errors.WrapScanError(errors.CodeConfiguration, "Invalid port selector", err)
		result.AddError(scanErr)
		result.Complete(scan.StatusFailed)
		metrics.IncrementPhaseErrors(phaseName, string(errors.GetCode(scanErr)))
		return result, scanErr
	}

	scanCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.log.Info("Starting port scan",
		"targets", len(targets),
		"technique", s.cfg.Technique,
		"ports", s.cfg.Ports)

	run, warnings, err := s.runner.Run(scanCtx, s.buildOptions(targets))
	for _, warning := range warnings {
		s.log.Warn("Scan tool warning", "warning", warning)
	}

	if run != nil {
		s.convert(run, result)
	}

	status := scan.StatusCompleted
	var phaseErr error
	if err != nil {
		status, phaseErr = s.recordFailure(scanCtx, result, run != nil, err)
	}
	result.Complete(status)

	metrics.RecordPhaseDuration(phaseName, result.Duration)
	metrics.IncrementPhaseTotal(phaseName, string(result.Status))
	s.log.Info("Port scan finished",
		"status", string(result.Status),
		"hosts", result.Found,
		"candidates", len(result.Candidates()),
		"duration", result.Duration)

	return result, phaseErr
}

// recordFailure classifies a runner error and settles the phase status.
// Timeouts with parsed output and interruption degrade the phase;
// everything else fails it.
func (s *Scanner) recordFailure(ctx context.Context, result *scan.PortScanResult, hasOutput bool, err error) (scan.Status, error) {
	switch {
	case ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "timed out"):
		scanErr := errors.WrapScanError(errors.CodeTimeout, "Port scan timed out", err)
		result.AddError(scanErr)
		metrics.IncrementPhaseErrors(phaseName, string(errors.CodeTimeout))
		if hasOutput {
			s.log.Warn("Port scan timed out, keeping partial output", "hosts", result.Found)
			return scan.StatusPartial, nil
		}
		s.log.Error("Port scan timed out with no usable output", "error", err)
		return scan.StatusFailed, scanErr
	case ctx.Err() == context.Canceled:
		result.AddError(errors.WrapScanError(errors.CodeCanceled, "Port scan interrupted", err))
		return scan.StatusPartial, nil
	default:
		scanErr := errors.WrapScanError(errors.CodeScanFailed, "Scan tool execution failed", err)
		result.AddError(scanErr)
		metrics.IncrementPhaseErrors(phaseName, string(errors.GetCode(scanErr)))
		s.log.Error("Scan tool execution failed", "error", err)
		return scan.StatusFailed, scanErr
	}
}

// buildOptions assembles the tool invocation from configuration.
func (s *Scanner) buildOptions(targets []string) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(targets...),
		nmap.WithPorts(s.cfg.Ports),
	}

	switch s.cfg.Technique {
	case "connect":
		options = append(options, nmap.WithConnectScan())
	case "syn":
		options = append(options, nmap.WithSYNScan())
	case "version":
		options = append(options,
			nmap.WithServiceInfo(),
			nmap.WithVersionAll(),
		)
	case "aggressive":
		options = append(options,
			nmap.WithConnectScan(),
			nmap.WithServiceInfo(),
			nmap.WithVersionAll(),
			nmap.WithAggressiveScan(),
		)
	case "comprehensive":
		options = append(options,
			nmap.WithConnectScan(),
			nmap.WithServiceInfo(),
			nmap.WithVersionAll(),
			nmap.WithDefaultScript(),
		)
	}

	if s.cfg.DetectServices && (s.cfg.Technique == "connect" || s.cfg.Technique == "syn") {
		options = append(options, nmap.WithServiceInfo())
	}
	if s.cfg.DetectOS {
		options = append(options, nmap.WithOSDetection())
	}
	options = append(options, nmap.WithTimingTemplate(nmap.Timing(s.cfg.Timing)))
	if len(s.cfg.ExtraArgs) > 0 {
		options = append(options, nmap.WithCustomArguments(s.cfg.ExtraArgs...))
	}

	options = append(options,
		nmap.WithSkipHostDiscovery(), // targets are already known alive
		nmap.WithVerbosity(1),
	)

	return options
}

// convert maps the tool run onto findings.
func (s *Scanner) convert(run *nmap.Run, result *scan.PortScanResult) {
	for i := range run.Hosts {
		finding, ok := s.convertHost(&run.Hosts[i])
		if !ok {
			continue
		}
		result.Add(finding)
		if finding.SNMPCandidate {
			metrics.Counter(metrics.MetricCandidatePorts, metrics.Labels{
				metrics.LabelPhase: phaseName,
			})
		}
	}
}

// convertHost maps one tool host record onto a finding. Hosts reported
// down or without an address are dropped.
func (s *Scanner) convertHost(h *nmap.Host) (scan.HostFinding, bool) {
	if len(h.Addresses) == 0 || h.Status.State != "up" {
		return scan.HostFinding{}, false
	}

	finding := scan.HostFinding{
		IP:    h.Addresses[0].Addr,
		Ports: make(map[int]scan.PortInfo, len(h.Ports)),
	}

	for i := range h.Addresses {
		addr := &h.Addresses[i]
		if addr.AddrType == "mac" {
			finding.MAC = strings.ToLower(addr.Addr)
			finding.Vendor = addr.Vendor
		}
	}
	if len(h.Hostnames) > 0 {
		finding.Hostname = h.Hostnames[0].Name
	}
	if len(h.OS.Matches) > 0 {
		// Matches arrive ordered by accuracy, highest first.
		finding.OSFingerprint = h.OS.Matches[0].Name
	}

	for j := range h.Ports {
		p := &h.Ports[j]
		finding.Ports[int(p.ID)] = scan.PortInfo{
			State:   p.State.State,
			Service: p.Service.Name,
			Product: p.Service.Product,
			Version: p.Service.Version,
		}
	}

	finding.SNMPCandidate = finding.HasOpenPort(s.snmpPort)
	return finding, true
}
