// Package device holds the merged view of a scanned network. Phase
// findings are folded into one record per IP, then every record is
// classified into a coarse device type.
package device

import "sort"

// DeviceType categorizes a classified device.
type DeviceType string

const (
	TypeIoT              DeviceType = "IOT"
	TypeWindows          DeviceType = "WINDOWS"
	TypeLinux            DeviceType = "LINUX"
	TypeNetworkEquipment DeviceType = "NETWORK_EQUIPMENT"
	TypeUnknown          DeviceType = "UNKNOWN"
)

// Record is everything a run learned about one address. It is created
// empty when any phase first observes the IP, filled additively by the
// merge steps and classified exactly once at the end of the run.
type Record struct {
	IP            string            `json:"ip"`
	MAC           string            `json:"mac,omitempty"`
	Hostname      string            `json:"hostname,omitempty"`
	Vendor        string            `json:"vendor,omitempty"`
	OSFingerprint string            `json:"os_fingerprint,omitempty"`
	Type          DeviceType        `json:"device_type"`
	OpenPorts     []int             `json:"open_ports,omitempty"`
	Services      map[int]string    `json:"services,omitempty"`
	SNMPData      map[string]string `json:"snmp_data,omitempty"`
}

// NewRecord returns an empty record for the given address.
func NewRecord(ip string) *Record {
	return &Record{
		IP:       ip,
		Type:     TypeUnknown,
		Services: make(map[int]string),
	}
}

// addPort inserts an open port keeping the set sorted and unique.
func (r *Record) addPort(port int) {
	i := sort.SearchInts(r.OpenPorts, port)
	if i < len(r.OpenPorts) && r.OpenPorts[i] == port {
		return
	}
	r.OpenPorts = append(r.OpenPorts, 0)
	copy(r.OpenPorts[i+1:], r.OpenPorts[i:])
	r.OpenPorts[i] = port
}

// HasOpenPort reports whether the port is in the open set.
func (r *Record) HasOpenPort(port int) bool {
	i := sort.SearchInts(r.OpenPorts, port)
	return i < len(r.OpenPorts) && r.OpenPorts[i] == port
}
