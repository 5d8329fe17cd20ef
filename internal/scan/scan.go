// Package scan defines the contract shared by the discovery capabilities
// and the pipeline that sequences them. Each capability (ARP sweep, port
// scan, SNMP query) reports its outcome as a PhaseResult carrying
// per-target findings keyed by IP address. Per-target failures never
// appear here: an address that did not answer is simply absent.
package scan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anstrom/netsweep/internal/config"
)

// Phase identifies one discovery capability.
type Phase string

const (
	PhaseArp      Phase = "arp"
	PhasePortScan Phase = "portscan"
	PhaseSnmp     Phase = "snmp"
)

// Status describes how far a phase got.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusPartial    Status = "PARTIAL"
)

// Degraded reports whether the phase finished below a clean completion.
func (s Status) Degraded() bool {
	return s == StatusFailed || s == StatusPartial
}

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// PhaseResult records the outcome of one discovery phase.
type PhaseResult struct {
	// Phase identifies the capability that produced this result.
	Phase Phase `json:"phase"`
	// Status is NOT_STARTED until the phase runs, IN_PROGRESS while it
	// runs, and one of COMPLETED, FAILED or PARTIAL afterwards.
	Status Status `json:"status"`
	// Targets is the number of addresses the phase was asked to probe.
	Targets int `json:"targets"`
	// Found is the number of targets that produced a finding.
	Found int `json:"found"`
	// Errors collects phase-level errors in occurrence order. Targets
	// that simply did not answer are not recorded here.
	Errors []string `json:"errors,omitempty"`
	// StartedAt is when the phase began executing.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the phase reached a terminal status.
	CompletedAt time.Time `json:"completed_at"`
	// Duration is the elapsed execution time.
	Duration time.Duration `json:"duration"`
}

// NewPhaseResult creates an in-progress result with the start time set.
func NewPhaseResult(phase Phase, targets int) *PhaseResult {
	return &PhaseResult{
		Phase:     phase,
		Status:    StatusInProgress,
		Targets:   targets,
		StartedAt: time.Now(),
	}
}

// NewSkippedResult creates a result for a phase that never ran.
func NewSkippedResult(phase Phase) *PhaseResult {
	return &PhaseResult{
		Phase:  phase,
		Status: StatusNotStarted,
	}
}

// Complete marks the phase finished and records its elapsed time.
func (r *PhaseResult) Complete(status Status) {
	r.Status = status
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}

// AddError records a phase-level error. Nil errors are ignored.
func (r *PhaseResult) AddError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// ArpFinding records one address that answered the ARP sweep.
type ArpFinding struct {
	IP string `json:"ip"`
	// MAC is empty when the answering strategy cannot observe
	// link-layer addresses (the ICMP fallback).
	MAC string `json:"mac,omitempty"`
	// Source names the strategy that obtained the answer:
	// "arping", "packet" or "icmp".
	Source string `json:"source"`
}

// PortInfo describes one scanned port on a host.
type PortInfo struct {
	// State is "open", "closed" or "filtered".
	State string `json:"state"`
	// Service is the detected service name, if any.
	Service string `json:"service,omitempty"`
	// Product is the detected server software, if any.
	Product string `json:"product,omitempty"`
	// Version is the detected software version, if available.
	Version string `json:"version,omitempty"`
}

// Describe renders the port's service for display: the service name
// followed by the detected product and version when known.
func (p PortInfo) Describe() string {
	detail := strings.TrimSpace(p.Product + " " + p.Version)
	switch {
	case p.Service == "":
		return detail
	case detail == "":
		return p.Service
	}
	return fmt.Sprintf("%s (%s)", p.Service, detail)
}

// HostFinding is one host's port scan outcome.
type HostFinding struct {
	IP string `json:"ip"`
	// MAC is the link-layer address reported by the scanner, when the
	// scan ran on the local segment.
	MAC string `json:"mac,omitempty"`
	// Vendor is the NIC manufacturer derived from the MAC prefix.
	Vendor string `json:"vendor,omitempty"`
	// Hostname is the name the scanner resolved for the host, if any.
	Hostname string `json:"hostname,omitempty"`
	// OSFingerprint is the best OS match, if OS detection ran.
	OSFingerprint string `json:"os_fingerprint,omitempty"`
	// Ports holds the scanned ports keyed by port number.
	Ports map[int]PortInfo `json:"ports,omitempty"`
	// SNMPCandidate flags hosts exposing the SNMP query port.
	SNMPCandidate bool `json:"snmp_candidate"`
}

// OpenPorts returns the host's open port numbers in ascending order.
func (f HostFinding) OpenPorts() []int {
	ports := make([]int, 0, len(f.Ports))
	for number, info := range f.Ports {
		if info.State == "open" {
			ports = append(ports, number)
		}
	}
	sort.Ints(ports)
	return ports
}

// HasOpenPort reports whether the given port was observed open.
func (f HostFinding) HasOpenPort(port int) bool {
	return f.Ports[port].State == "open"
}

// SnmpFinding holds the values read from one SNMP-speaking device.
type SnmpFinding struct {
	IP string `json:"ip"`
	// Credential is the first configured pair the device accepted.
	Credential config.Credential `json:"credential"`
	// Values maps each queried OID to its rendered value.
	Values map[string]string `json:"values,omitempty"`
}

// ArpResult is the ARP phase outcome with findings keyed by IP.
type ArpResult struct {
	PhaseResult
	Findings map[string]ArpFinding `json:"findings,omitempty"`
}

// NewArpResult creates an in-progress ARP phase result.
func NewArpResult(targets int) *ArpResult {
	return &ArpResult{
		PhaseResult: *NewPhaseResult(PhaseArp, targets),
		Findings:    make(map[string]ArpFinding),
	}
}

// Add records a finding and keeps the found counter consistent.
func (r *ArpResult) Add(f ArpFinding) {
	r.Findings[f.IP] = f
	r.Found = len(r.Findings)
}

// PortScanResult is the port scan phase outcome with hosts keyed by IP.
type PortScanResult struct {
	PhaseResult
	Hosts map[string]HostFinding `json:"hosts,omitempty"`
}

// NewPortScanResult creates an in-progress port scan phase result.
func NewPortScanResult(targets int) *PortScanResult {
	return &PortScanResult{
		PhaseResult: *NewPhaseResult(PhasePortScan, targets),
		Hosts:       make(map[string]HostFinding),
	}
}

// Add records a finding and keeps the found counter consistent.
func (r *PortScanResult) Add(f HostFinding) {
	r.Hosts[f.IP] = f
	r.Found = len(r.Hosts)
}

// Candidates returns the addresses flagged for SNMP in lexical order.
func (r *PortScanResult) Candidates() []string {
	candidates := make([]string, 0, len(r.Hosts))
	for ip, host := range r.Hosts {
		if host.SNMPCandidate {
			candidates = append(candidates, ip)
		}
	}
	sort.Strings(candidates)
	return candidates
}

// SnmpResult is the SNMP phase outcome with findings keyed by IP.
type SnmpResult struct {
	PhaseResult
	Findings map[string]SnmpFinding `json:"findings,omitempty"`
}

// NewSnmpResult creates an in-progress SNMP phase result.
func NewSnmpResult(targets int) *SnmpResult {
	return &SnmpResult{
		PhaseResult: *NewPhaseResult(PhaseSnmp, targets),
		Findings:    make(map[string]SnmpFinding),
	}
}

// Add records a finding and keeps the found counter consistent.
func (r *SnmpResult) Add(f SnmpFinding) {
	r.Findings[f.IP] = f
	r.Found = len(r.Findings)
}
