package arp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/netinfo"
)

const (
	captureSnaplen = 65536
	replyPollEvery = 25 * time.Millisecond
)

// packetProber sends raw ARP requests over a pcap handle and collects
// replies on a shared listener goroutine. Requires a local interface on
// the scan subnet and capture privileges.
type packetProber struct {
	handle *pcap.Handle
	srcMAC net.HardwareAddr
	srcIP  net.IP

	mu      sync.Mutex
	replies map[string]string

	stop      chan struct{}
	closeOnce sync.Once
}

func newPacketProber(network *netinfo.NetworkInfo, timeout time.Duration) (*packetProber, error) {
	if network == nil || network.InterfaceName == "" || len(network.HardwareAddr) == 0 || network.IP.To4() == nil {
		return nil, errors.NewScanError(errors.CodeScanFailed,
			"Raw ARP needs a local interface on the scan subnet")
	}

	handle, err := pcap.OpenLive(network.InterfaceName, captureSnaplen, true, timeout)
	if err != nil {
		return nil, errors.ErrPermissionDenied("open packet capture", err)
	}
	if err := handle.SetBPFFilter("arp"); err != nil {
		handle.Close()
		return nil, errors.WrapScanError(errors.CodeScanFailed, "Failed to set capture filter", err)
	}

	p := &packetProber{
		handle:  handle,
		srcMAC:  network.HardwareAddr,
		srcIP:   network.IP.To4(),
		replies: make(map[string]string),
		stop:    make(chan struct{}),
	}
	go p.listen()
	return p, nil
}

func (p *packetProber) Name() string { return "packet" }

// listen drains the capture handle and records every ARP reply seen.
// Gratuitous replies from hosts not probed yet count too.
func (p *packetProber) listen() {
	source := gopacket.NewPacketSource(p.handle, p.handle.LinkType())
	for {
		select {
		case <-p.stop:
			return
		default:
			packet, err := source.NextPacket()
			if err != nil {
				continue
			}
			if ip, mac, ok := decodeReply(packet); ok {
				p.mu.Lock()
				p.replies[ip] = mac
				p.mu.Unlock()
			}
		}
	}
}

func (p *packetProber) Probe(ctx context.Context, target string) (string, bool, error) {
	if mac, ok := p.reply(target); ok {
		return mac, true, nil
	}

	request, err := buildRequest(p.srcMAC, p.srcIP, net.ParseIP(target))
	if err != nil {
		return "", false, err
	}
	if err := p.handle.WritePacketData(request); err != nil {
		return "", false, errors.WrapScanErrorWithTarget(errors.CodeScanFailed,
			"Failed to send ARP request", target, err)
	}

	ticker := time.NewTicker(replyPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", false, nil
		case <-ticker.C:
			if mac, ok := p.reply(target); ok {
				return mac, true, nil
			}
		}
	}
}

func (p *packetProber) reply(target string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mac, ok := p.replies[target]
	return mac, ok
}

func (p *packetProber) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.handle.Close()
	})
}

// buildRequest serializes a broadcast ARP request for dst.
func buildRequest(srcMAC net.HardwareAddr, srcIP, dstIP net.IP) ([]byte, error) {
	dst := dstIP.To4()
	if dst == nil {
		return nil, errors.ErrInvalidTarget(dstIP.String())
	}

	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	request := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dst),
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, &eth, &request); err != nil {
		return nil, errors.WrapScanError(errors.CodeScanFailed, "Failed to serialize ARP request", err)
	}
	return buffer.Bytes(), nil
}

// decodeReply extracts the sender IP and MAC from an ARP reply packet.
func decodeReply(packet gopacket.Packet) (ip, mac string, ok bool) {
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return "", "", false
	}
	reply, valid := arpLayer.(*layers.ARP)
	if !valid || reply.Operation != layers.ARPReply {
		return "", "", false
	}
	return net.IP(reply.SourceProtAddress).String(),
		net.HardwareAddr(reply.SourceHwAddress).String(),
		true
}
