package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
)

// infoForCIDR builds a NetworkInfo by hand so target enumeration can be
// tested without touching real interfaces.
func infoForCIDR(t *testing.T, cidr, hostIP string) *NetworkInfo {
	t.Helper()

	_, subnet, err := net.ParseCIDR(cidr)
	require.NoError(t, err)

	info := &NetworkInfo{Subnet: subnet}
	if hostIP != "" {
		info.IP = net.ParseIP(hostIP).To4()
	}
	info.NetworkAddr = networkAddr(subnet)
	info.Broadcast = broadcastAddr(subnet)
	return info
}

func TestTargetsSlash24(t *testing.T) {
	info := infoForCIDR(t, "192.168.1.0/24", "192.168.1.100")
	d := NewDetector(config.NetworkConfig{})

	targets := d.Targets(info)

	// 256 addresses minus network, broadcast, and the scanning host
	assert.Len(t, targets, 253)
	assert.Equal(t, "192.168.1.1", targets[0])
	assert.Equal(t, "192.168.1.254", targets[len(targets)-1])
	assert.NotContains(t, targets, "192.168.1.0")
	assert.NotContains(t, targets, "192.168.1.255")
	assert.NotContains(t, targets, "192.168.1.100")
	assert.Contains(t, targets, "192.168.1.99")
	assert.Contains(t, targets, "192.168.1.101")
}

func TestTargetsWithoutLocalAddress(t *testing.T) {
	// Explicit CIDR with no local presence: nothing to self-exclude.
	info := infoForCIDR(t, "10.99.0.0/24", "")
	d := NewDetector(config.NetworkConfig{})

	targets := d.Targets(info)
	assert.Len(t, targets, 254)
}

func TestTargetsExclusions(t *testing.T) {
	info := infoForCIDR(t, "192.168.1.0/24", "192.168.1.100")
	d := NewDetector(config.NetworkConfig{
		Exclusions: []string{"192.168.1.0/26"},
	})

	targets := d.Targets(info)

	// The /26 removes .1 through .63 (the network address was already out)
	assert.Len(t, targets, 253-63)
	assert.NotContains(t, targets, "192.168.1.10")
	assert.NotContains(t, targets, "192.168.1.63")
	assert.Contains(t, targets, "192.168.1.64")
}

func TestTargetsSmallSubnets(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		host string
		want int
	}{
		{"slash 30 keeps two hosts", "10.0.0.0/30", "", 2},
		{"slash 30 with self inside", "10.0.0.0/30", "10.0.0.1", 1},
		{"slash 31 has no usable hosts", "10.0.0.0/31", "", 0},
		{"slash 32 has no usable hosts", "10.0.0.5/32", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := infoForCIDR(t, tt.cidr, tt.host)
			d := NewDetector(config.NetworkConfig{})
			assert.Len(t, d.Targets(info), tt.want)
		})
	}
}

func TestBroadcastAddr(t *testing.T) {
	tests := []struct {
		cidr string
		want string
	}{
		{"192.168.1.0/24", "192.168.1.255"},
		{"10.0.0.0/8", "10.255.255.255"},
		{"172.16.5.0/28", "172.16.5.15"},
		{"192.168.40.64/26", "192.168.40.127"},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			_, subnet, err := net.ParseCIDR(tt.cidr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, broadcastAddr(subnet).String())
		})
	}
}

func TestIncrementIP(t *testing.T) {
	ip := net.ParseIP("192.168.1.1").To4()
	incrementIP(ip)
	assert.Equal(t, "192.168.1.2", ip.String())

	ip = net.ParseIP("192.168.1.255").To4()
	incrementIP(ip)
	assert.Equal(t, "192.168.2.0", ip.String())

	ip = net.ParseIP("10.255.255.255").To4()
	incrementIP(ip)
	assert.Equal(t, "11.0.0.0", ip.String())
}

func TestDetectWithCIDROverride(t *testing.T) {
	d := NewDetector(config.NetworkConfig{
		CIDR:         "10.99.0.0/24",
		MinPrefixLen: 16,
	})

	info, err := d.Detect()
	require.NoError(t, err)
	assert.Equal(t, "10.99.0.0/24", info.CIDR())
	assert.Equal(t, "10.99.0.0", info.NetworkAddr.String())
	assert.Equal(t, "10.99.0.255", info.Broadcast.String())
}

func TestDetectRefusesLargeSubnet(t *testing.T) {
	d := NewDetector(config.NetworkConfig{
		CIDR:         "10.0.0.0/8",
		MinPrefixLen: 16,
	})

	_, err := d.Detect()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err), "oversized subnet must abort the run")
	assert.Equal(t, errors.CategoryConfiguration, errors.Categorize(err))
}

func TestDetectRejectsMalformedCIDR(t *testing.T) {
	d := NewDetector(config.NetworkConfig{CIDR: "not-a-network"})

	_, err := d.Detect()
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.Categorize(err))
}

func TestDetectRejectsIPv6(t *testing.T) {
	d := NewDetector(config.NetworkConfig{CIDR: "2001:db8::/64", MinPrefixLen: 16})

	_, err := d.Detect()
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.Categorize(err))
}

func TestDetectUnknownInterface(t *testing.T) {
	d := NewDetector(config.NetworkConfig{Interface: "nosuchif0"})

	_, err := d.Detect()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestUsableInterface(t *testing.T) {
	tests := []struct {
		name  string
		iface net.Interface
		want  bool
	}{
		{"up ethernet", net.Interface{Name: "eth0", Flags: net.FlagUp}, true},
		{"loopback", net.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}, false},
		{"down interface", net.Interface{Name: "eth1"}, false},
		{"docker bridge", net.Interface{Name: "docker0", Flags: net.FlagUp}, false},
		{"veth pair", net.Interface{Name: "veth12ab", Flags: net.FlagUp}, false},
		{"container bridge", net.Interface{Name: "br-44f1", Flags: net.FlagUp}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usableInterface(&tt.iface))
		})
	}
}

func TestCIDRString(t *testing.T) {
	info := infoForCIDR(t, "192.168.1.0/24", "")
	assert.Equal(t, "192.168.1.0/24", info.CIDR())

	empty := &NetworkInfo{}
	assert.Equal(t, "", empty.CIDR())
}
