package device

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anstrom/netsweep/internal/config"
)

func testClassifier() *Classifier {
	return NewClassifier(config.ClassifyConfig{
		WindowsSignatures: []string{"windows", "microsoft"},
		LinuxSignatures:   []string{"linux", "unix"},
		IoTPorts:          []int{554, 1883, 5683, 8554, 9999},
		ManagementPorts:   []int{22, 23, 161, 443, 8443},
	})
}

func TestClassifyRuleChain(t *testing.T) {
	snmpData := map[string]string{".1.3.6.1.2.1.1.1.0": "Cisco IOS Software"}

	tests := []struct {
		name   string
		record Record
		want   DeviceType
	}{
		{
			name:   "windows fingerprint",
			record: Record{OSFingerprint: "Microsoft Windows Server 2019"},
			want:   TypeWindows,
		},
		{
			name:   "fingerprint match is case insensitive",
			record: Record{OSFingerprint: "WINDOWS NT 10.0"},
			want:   TypeWindows,
		},
		{
			name:   "linux fingerprint",
			record: Record{OSFingerprint: "Linux 5.15 (Ubuntu)"},
			want:   TypeLinux,
		},
		{
			name:   "windows beats iot ports",
			record: Record{OSFingerprint: "Microsoft Windows 10", OpenPorts: []int{554}},
			want:   TypeWindows,
		},
		{
			name:   "linux beats management ports",
			record: Record{OSFingerprint: "Linux 4.19", OpenPorts: []int{22, 161}, SNMPData: snmpData},
			want:   TypeLinux,
		},
		{
			name:   "rtsp port marks iot",
			record: Record{OpenPorts: []int{80, 554}},
			want:   TypeIoT,
		},
		{
			name:   "iot beats network equipment",
			record: Record{OpenPorts: []int{161, 554}, SNMPData: snmpData},
			want:   TypeIoT,
		},
		{
			name:   "management ports with snmp data",
			record: Record{OpenPorts: []int{22, 161}, SNMPData: snmpData},
			want:   TypeNetworkEquipment,
		},
		{
			name:   "management ports without snmp data",
			record: Record{OpenPorts: []int{22, 161}},
			want:   TypeUnknown,
		},
		{
			name:   "unrecognized fingerprint",
			record: Record{OSFingerprint: "Darwin 21.6.0"},
			want:   TypeUnknown,
		},
		{
			name:   "empty record",
			record: Record{},
			want:   TypeUnknown,
		},
	}

	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(&tt.record))
		})
	}
}

func TestClassifyAll(t *testing.T) {
	records := map[string]*Record{
		"10.0.0.1": {IP: "10.0.0.1", OSFingerprint: "Microsoft Windows 11", Type: TypeUnknown},
		"10.0.0.2": {IP: "10.0.0.2", OSFingerprint: "Linux 6.1", Type: TypeUnknown},
		"10.0.0.3": {IP: "10.0.0.3", Type: TypeUnknown},
	}

	counts := testClassifier().ClassifyAll(records)

	assert.Equal(t, TypeWindows, records["10.0.0.1"].Type)
	assert.Equal(t, TypeLinux, records["10.0.0.2"].Type)
	assert.Equal(t, TypeUnknown, records["10.0.0.3"].Type)
	assert.Equal(t, map[DeviceType]int{
		TypeWindows: 1,
		TypeLinux:   1,
		TypeUnknown: 1,
	}, counts)
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("Linux gw 5.15", []string{"", "linux"}), "empty signatures are skipped, not matched")
	assert.False(t, matchesAny("", []string{"linux"}))
	assert.False(t, matchesAny("Linux gw", nil))
}
