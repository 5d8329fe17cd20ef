package arp

import (
	"context"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/anstrom/netsweep/internal/errors"
)

// arpingReplyRE matches the bracketed MAC in iputils arping output:
//
//	Unicast reply from 192.168.1.1 [AA:BB:CC:DD:EE:FF]  0.621ms
var arpingReplyRE = regexp.MustCompile(`\[([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})\]`)

// arpingProber shells out to the system arping binary. Most accurate
// strategy when the binary is installed and allowed to open raw sockets.
type arpingProber struct {
	path    string
	timeout time.Duration
}

func newArpingProber(timeout time.Duration) (*arpingProber, error) {
	path, err := exec.LookPath("arping")
	if err != nil {
		return nil, errors.ErrToolMissing("arping", err)
	}
	return &arpingProber{path: path, timeout: timeout}, nil
}

func (p *arpingProber) Name() string { return "arping" }

func (p *arpingProber) Probe(ctx context.Context, target string) (string, bool, error) {
	timeoutSec := int(p.timeout.Seconds())
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	// -f: quit on first reply, -c 1: single request, -w: deadline.
	cmd := exec.CommandContext(ctx, p.path,
		"-f", "-c", "1", "-w", strconv.Itoa(timeoutSec), target)
	output, err := cmd.Output()
	if err != nil {
		// Non-zero exit: no reply before the deadline.
		return "", false, nil
	}
	return parseArpingReply(output), true, nil
}

func (p *arpingProber) Close() {}

// parseArpingReply extracts the replying MAC from arping output,
// normalized to lower case. Empty when no MAC is present.
func parseArpingReply(output []byte) string {
	match := arpingReplyRE.FindSubmatch(output)
	if match == nil {
		return ""
	}
	hw, err := net.ParseMAC(string(match[1]))
	if err != nil {
		return ""
	}
	return hw.String()
}
