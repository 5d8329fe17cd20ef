package device

import (
	"bytes"
	"net"
	"sort"

	"github.com/anstrom/netsweep/internal/scan"
)

// System group objects used to backfill scalars from SNMP values.
const (
	OIDSysDescr = ".1.3.6.1.2.1.1.1.0"
	OIDSysName  = ".1.3.6.1.2.1.1.5.0"
)

// Merger folds phase findings into per-IP records. Scalars are
// set-if-absent so a value written by an earlier phase survives later
// phases, and an empty later value never erases anything. Port sets,
// service maps and SNMP values are unioned. Records are keyed purely
// by IP, so arrival order within a phase cannot change the outcome.
type Merger struct {
	records map[string]*Record
}

// NewMerger returns an empty Merger.
func NewMerger() *Merger {
	return &Merger{records: make(map[string]*Record)}
}

// Merge folds all three phase results in phase order and returns the
// records keyed by IP. Nil results are treated as empty.
func Merge(arpResult *scan.ArpResult, portResult *scan.PortScanResult, snmpResult *scan.SnmpResult) map[string]*Record {
	m := NewMerger()
	m.ApplyArp(arpResult)
	m.ApplyPortScan(portResult)
	m.ApplySnmp(snmpResult)
	return m.Records()
}

// Records returns the merged records keyed by IP.
func (m *Merger) Records() map[string]*Record {
	return m.records
}

// ApplyArp folds an ARP sweep result into the records.
func (m *Merger) ApplyArp(result *scan.ArpResult) {
	if result == nil {
		return
	}
	for _, finding := range result.Findings {
		record := m.record(finding.IP)
		setIfAbsent(&record.MAC, finding.MAC)
	}
}

// ApplyPortScan folds a port scan result into the records. Only open
// ports enter the port set and the service map.
func (m *Merger) ApplyPortScan(result *scan.PortScanResult) {
	if result == nil {
		return
	}
	for _, finding := range result.Hosts {
		record := m.record(finding.IP)
		setIfAbsent(&record.MAC, finding.MAC)
		setIfAbsent(&record.Hostname, finding.Hostname)
		setIfAbsent(&record.Vendor, finding.Vendor)
		setIfAbsent(&record.OSFingerprint, finding.OSFingerprint)

		for port, info := range finding.Ports {
			if info.State != "open" {
				continue
			}
			record.addPort(port)
			if description := info.Describe(); description != "" {
				if _, exists := record.Services[port]; !exists {
					record.Services[port] = description
				}
			}
		}
	}
}

// ApplySnmp folds an SNMP result into the records. Queried values are
// unioned per OID; the system name and description backfill hostname
// and OS fingerprint when earlier phases left them empty.
func (m *Merger) ApplySnmp(result *scan.SnmpResult) {
	if result == nil {
		return
	}
	for _, finding := range result.Findings {
		record := m.record(finding.IP)
		if record.SNMPData == nil {
			record.SNMPData = make(map[string]string, len(finding.Values))
		}
		for oid, value := range finding.Values {
			if _, exists := record.SNMPData[oid]; !exists {
				record.SNMPData[oid] = value
			}
		}
		setIfAbsent(&record.Hostname, finding.Values[OIDSysName])
		setIfAbsent(&record.OSFingerprint, finding.Values[OIDSysDescr])
	}
}

func (m *Merger) record(ip string) *Record {
	if record, ok := m.records[ip]; ok {
		return record
	}
	record := NewRecord(ip)
	m.records[ip] = record
	return record
}

func setIfAbsent(field *string, value string) {
	if *field == "" && value != "" {
		*field = value
	}
}

// SortedIPs returns the record keys in numeric address order, not
// lexical order, so 192.168.1.2 sorts before 192.168.1.10.
func SortedIPs(records map[string]*Record) []string {
	ips := make([]string, 0, len(records))
	for ip := range records {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool { return lessIP(ips[i], ips[j]) })
	return ips
}

func lessIP(a, b string) bool {
	ipA := net.ParseIP(a)
	ipB := net.ParseIP(b)
	if ipA == nil || ipB == nil {
		return a < b
	}
	return bytes.Compare(ipA.To16(), ipB.To16()) < 0
}
