// Package netinfo determines the local network context for a scan run:
// which interface to scan from, the subnet to sweep, and the target
// addresses inside it.
package netinfo

import (
	"fmt"
	"net"
	"strings"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

// NetworkInfo describes the subnet a scan run operates on.
type NetworkInfo struct {
	// InterfaceName is the interface the scan runs from. Empty when the
	// subnet was configured explicitly and no local interface sits on it.
	InterfaceName string `json:"interface"`

	// IP is the scanning host's own address inside the subnet, nil when
	// the host has no address there.
	IP net.IP `json:"ip,omitempty"`

	// HardwareAddr is the scanning interface's MAC address.
	HardwareAddr string `json:"hardware_addr,omitempty"`

	// Subnet is the network being swept.
	Subnet *net.IPNet `json:"-"`

	// NetworkAddr and Broadcast bound the subnet.
	NetworkAddr net.IP `json:"network_addr"`
	Broadcast   net.IP `json:"broadcast"`
}

// CIDR returns the subnet in CIDR notation.
func (n *NetworkInfo) CIDR() string {
	if n.Subnet == nil {
		return ""
	}
	return n.Subnet.String()
}

// Detector resolves the scan subnet from configuration and local
// interface state.
type Detector struct {
	cfg config.NetworkConfig
}

// NewDetector creates a detector for the given network configuration.
func NewDetector(cfg config.NetworkConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect resolves the subnet to scan. An explicit CIDR override wins;
// otherwise the subnet is derived from the selected interface's first
// IPv4 address. Failure to find a usable interface is fatal for the run.
func (d *Detector) Detect() (*NetworkInfo, error) {
	var info *NetworkInfo
	var err error

	if d.cfg.CIDR != "" {
		info, err = d.detectFromCIDR(d.cfg.CIDR)
	} else {
		info, err = d.detectFromInterface()
	}
	if err != nil {
		return nil, err
	}

	// Refuse ranges too large to sweep
	ones, bits := info.Subnet.Mask.Size()
	if bits != 32 {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			"Only IPv4 subnets can be scanned", "network.cidr", info.Subnet.String())
	}
	if ones < d.cfg.MinPrefixLen {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("Subnet larger than /%d refused", d.cfg.MinPrefixLen),
			"network.cidr", info.Subnet.String())
	}

	info.NetworkAddr = networkAddr(info.Subnet)
	info.Broadcast = broadcastAddr(info.Subnet)

	logging.Info("Detected scan network",
		"interface", info.InterfaceName,
		"subnet", info.Subnet.String(),
		"host", ipString(info.IP))
	return info, nil
}

// detectFromCIDR uses a configured subnet and looks for a local address
// inside it so the host can exclude itself from the target set.
func (d *Detector) detectFromCIDR(cidr string) (*NetworkInfo, error) {
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, errors.ErrConfigInvalid("network.cidr", cidr)
	}

	info := &NetworkInfo{Subnet: subnet}

	ifaces, err := net.Interfaces()
	if err != nil {
		return info, nil // No local context, still scannable
	}

	for i := range ifaces {
		iface := &ifaces[i]
		if !usableInterface(iface) {
			continue
		}
		if d.cfg.Interface != "" && iface.Name != d.cfg.Interface {
			continue
		}
		for _, ipnet := range interfaceIPv4Nets(iface) {
			if subnet.Contains(ipnet.IP) {
				info.InterfaceName = iface.Name
				info.IP = ipnet.IP.To4()
				info.HardwareAddr = iface.HardwareAddr.String()
				return info, nil
			}
		}
	}

	return info, nil
}

// detectFromInterface derives the subnet from the first IPv4 address of
// the selected interface.
func (d *Detector) detectFromInterface() (*NetworkInfo, error) {
	if d.cfg.Interface != "" {
		iface, err := net.InterfaceByName(d.cfg.Interface)
		if err != nil {
			return nil, errors.ErrNoUsableInterface(err)
		}
		info, ok := infoFromInterface(iface)
		if !ok {
			return nil, errors.ErrNoUsableInterface(
				fmt.Errorf("interface %s has no IPv4 address", d.cfg.Interface))
		}
		return info, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.ErrNoUsableInterface(err)
	}

	for i := range ifaces {
		iface := &ifaces[i]
		if !usableInterface(iface) {
			continue
		}
		if info, ok := infoFromInterface(iface); ok {
			return info, nil
		}
	}

	return nil, errors.ErrNoUsableInterface(
		fmt.Errorf("no interface with an IPv4 address is up"))
}

// Targets enumerates the scan range: every host address in the subnet
// except the network address, the broadcast address, the scanning host
// itself, and anything inside a configured exclusion range.
func (d *Detector) Targets(info *NetworkInfo) []string {
	exclusions := parseExclusions(d.cfg.Exclusions)

	ones, bits := info.Subnet.Mask.Size()
	capacity := 1 << (bits - ones)
	if capacity > 1<<16 {
		capacity = 1 << 16
	}
	targets := make([]string, 0, capacity)

	for ip := cloneIP(info.NetworkAddr); info.Subnet.Contains(ip); incrementIP(ip) {
		if ip.Equal(info.NetworkAddr) || ip.Equal(info.Broadcast) {
			continue
		}
		if info.IP != nil && ip.Equal(info.IP) {
			continue
		}
		if containedInAny(ip, exclusions) {
			continue
		}
		targets = append(targets, ip.String())
	}

	return targets
}

// usableInterface filters out loopback, down, and container interfaces.
func usableInterface(iface *net.Interface) bool {
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	for _, prefix := range []string{"veth", "docker", "br-", "cni", "flannel"} {
		if strings.HasPrefix(iface.Name, prefix) {
			return false
		}
	}
	return true
}

// interfaceIPv4Nets returns the IPv4 networks assigned to an interface.
func interfaceIPv4Nets(iface *net.Interface) []*net.IPNet {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}

	var nets []*net.IPNet
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}

func infoFromInterface(iface *net.Interface) (*NetworkInfo, bool) {
	nets := interfaceIPv4Nets(iface)
	if len(nets) == 0 {
		return nil, false
	}

	ipnet := nets[0]
	masked := &net.IPNet{IP: ipnet.IP.Mask(ipnet.Mask).To4(), Mask: ipnet.Mask}
	return &NetworkInfo{
		InterfaceName: iface.Name,
		IP:            ipnet.IP.To4(),
		HardwareAddr:  iface.HardwareAddr.String(),
		Subnet:        masked,
	}, true
}

func networkAddr(subnet *net.IPNet) net.IP {
	return cloneIP(subnet.IP.Mask(subnet.Mask).To4())
}

func broadcastAddr(subnet *net.IPNet) net.IP {
	network := subnet.IP.Mask(subnet.Mask).To4()
	mask := net.IP(subnet.Mask).To4()

	broadcast := make(net.IP, net.IPv4len)
	for i := range broadcast {
		broadcast[i] = network[i] | ^mask[i]
	}
	return broadcast
}

func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] > 0 {
			break
		}
	}
}

func cloneIP(ip net.IP) net.IP {
	clone := make(net.IP, len(ip))
	copy(clone, ip)
	return clone
}

func parseExclusions(cidrs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}

func containedInAny(ip net.IP, nets []*net.IPNet) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
