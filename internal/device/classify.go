package device

import (
	"sort"
	"strings"

	"github.com/anstrom/netsweep/internal/config"
)

// Classifier assigns device types through an ordered rule chain. The
// first matching rule wins; missing information falls through to
// UNKNOWN, never to an error.
type Classifier struct {
	cfg config.ClassifyConfig
}

// NewClassifier returns a Classifier using the configured signature
// lists and port sets.
func NewClassifier(cfg config.ClassifyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify picks the device type for one record.
func (c *Classifier) Classify(record *Record) DeviceType {
	switch {
	case matchesAny(record.OSFingerprint, c.cfg.WindowsSignatures):
		return TypeWindows
	case matchesAny(record.OSFingerprint, c.cfg.LinuxSignatures):
		return TypeLinux
	case intersects(record.OpenPorts, c.cfg.IoTPorts):
		return TypeIoT
	case intersects(record.OpenPorts, c.cfg.ManagementPorts) && len(record.SNMPData) > 0:
		return TypeNetworkEquipment
	default:
		return TypeUnknown
	}
}

// ClassifyAll stamps every record exactly once and returns the count
// per device type.
func (c *Classifier) ClassifyAll(records map[string]*Record) map[DeviceType]int {
	counts := make(map[DeviceType]int)
	for _, record := range records {
		record.Type = c.Classify(record)
		counts[record.Type]++
	}
	return counts
}

// matchesAny reports whether the value contains any signature,
// case-insensitively.
func matchesAny(value string, signatures []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, signature := range signatures {
		if signature == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(signature)) {
			return true
		}
	}
	return false
}

// intersects reports whether any port of the set is open. The open
// list is kept sorted by the merge step.
func intersects(openPorts, set []int) bool {
	for _, port := range set {
		i := sort.SearchInts(openPorts, port)
		if i < len(openPorts) && openPorts[i] == port {
			return true
		}
	}
	return false
}
