package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/config"
)

func TestNewPhaseResult(t *testing.T) {
	result := NewPhaseResult(PhaseArp, 253)

	assert.Equal(t, PhaseArp, result.Phase)
	assert.Equal(t, StatusInProgress, result.Status)
	assert.Equal(t, 253, result.Targets)
	assert.Zero(t, result.Found)
	assert.False(t, result.StartedAt.IsZero())
	assert.True(t, result.CompletedAt.IsZero())
}

func TestPhaseResultComplete(t *testing.T) {
	result := NewPhaseResult(PhasePortScan, 10)
	result.Complete(StatusPartial)

	assert.Equal(t, StatusPartial, result.Status)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.GreaterOrEqual(t, result.Duration, result.CompletedAt.Sub(result.StartedAt))
}

func TestNewSkippedResult(t *testing.T) {
	result := NewSkippedResult(PhaseSnmp)

	assert.Equal(t, PhaseSnmp, result.Phase)
	assert.Equal(t, StatusNotStarted, result.Status)
	assert.True(t, result.StartedAt.IsZero())
	assert.Zero(t, result.Duration)
}

func TestPhaseResultAddError(t *testing.T) {
	result := NewPhaseResult(PhaseSnmp, 2)

	result.AddError(nil)
	assert.Empty(t, result.Errors)

	result.AddError(errors.New("first failure"))
	result.AddError(errors.New("second failure"))
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "first failure", result.Errors[0])
	assert.Equal(t, "second failure", result.Errors[1])
}

func TestStatusDegraded(t *testing.T) {
	tests := []struct {
		status   Status
		degraded bool
	}{
		{StatusNotStarted, false},
		{StatusInProgress, false},
		{StatusCompleted, false},
		{StatusFailed, true},
		{StatusPartial, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.degraded, tt.status.Degraded())
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNotStarted.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusPartial.Terminal())
}

func TestArpResultAdd(t *testing.T) {
	result := NewArpResult(5)

	result.Add(ArpFinding{IP: "192.168.1.5", MAC: "aa:bb:cc:dd:ee:01", Source: "arping"})
	result.Add(ArpFinding{IP: "192.168.1.7", Source: "icmp"})
	assert.Equal(t, 2, result.Found)

	// Re-adding the same address must not inflate the counter.
	result.Add(ArpFinding{IP: "192.168.1.5", MAC: "aa:bb:cc:dd:ee:01", Source: "arping"})
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", result.Findings["192.168.1.5"].MAC)
}

func TestPortScanResultCandidates(t *testing.T) {
	result := NewPortScanResult(3)
	result.Add(HostFinding{IP: "192.168.1.30", SNMPCandidate: true})
	result.Add(HostFinding{IP: "192.168.1.4"})
	result.Add(HostFinding{IP: "192.168.1.10", SNMPCandidate: true})

	assert.Equal(t, []string{"192.168.1.10", "192.168.1.30"}, result.Candidates())
}

func TestPortScanResultNoCandidates(t *testing.T) {
	result := NewPortScanResult(1)
	result.Add(HostFinding{IP: "192.168.1.4"})

	assert.Empty(t, result.Candidates())
}

func TestHostFindingOpenPorts(t *testing.T) {
	finding := HostFinding{
		IP: "192.168.1.20",
		Ports: map[int]PortInfo{
			443: {State: "open", Service: "https"},
			22:  {State: "open", Service: "ssh"},
			23:  {State: "filtered"},
			80:  {State: "closed"},
		},
	}

	assert.Equal(t, []int{22, 443}, finding.OpenPorts())
}

func TestHostFindingHasOpenPort(t *testing.T) {
	finding := HostFinding{
		IP: "192.168.1.20",
		Ports: map[int]PortInfo{
			161: {State: "open", Service: "snmp"},
			80:  {State: "closed"},
		},
	}

	assert.True(t, finding.HasOpenPort(161))
	assert.False(t, finding.HasOpenPort(80))
	assert.False(t, finding.HasOpenPort(554))
}

func TestPortInfoDescribe(t *testing.T) {
	tests := []struct {
		name string
		info PortInfo
		want string
	}{
		{"service_only", PortInfo{Service: "ssh"}, "ssh"},
		{"service_and_product", PortInfo{Service: "http", Product: "nginx"}, "http (nginx)"},
		{"full_detail", PortInfo{Service: "http", Product: "nginx", Version: "1.18.0"}, "http (nginx 1.18.0)"},
		{"product_only", PortInfo{Product: "OpenSSH", Version: "8.9"}, "OpenSSH 8.9"},
		{"empty", PortInfo{State: "open"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Describe())
		})
	}
}

func TestSnmpResultAdd(t *testing.T) {
	result := NewSnmpResult(2)
	result.Add(SnmpFinding{
		IP:         "192.168.1.10",
		Credential: config.Credential{Version: "2c", Community: "public"},
		Values:     map[string]string{".1.3.6.1.2.1.1.5.0": "core-switch"},
	})

	assert.Equal(t, 1, result.Found)
	assert.Equal(t, "public", result.Findings["192.168.1.10"].Credential.Community)
}
