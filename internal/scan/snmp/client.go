package snmp

import (
	"context"
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
)

// sysDescrOID is the access test object. Any agent that accepts the
// community string answers it.
const sysDescrOID = ".1.3.6.1.2.1.1.1.0"

// Client is one SNMP session against a single target with a single
// credential pair. Check issues the access test query, Get fetches
// specific OIDs and Walk collects a subtree capped at maxValues.
type Client interface {
	Check(ctx context.Context) error
	Get(ctx context.Context, oids []string) (map[string]string, error)
	Walk(ctx context.Context, rootOID string, maxValues int) (map[string]string, error)
	Close()
}

// clientFactory opens a session for one target and credential pair.
// Swapped out in tests.
type clientFactory func(target string, cfg config.SNMPConfig, cred config.Credential) (Client, error)

// gosnmpClient is the production Client. Sessions are not safe for
// concurrent use, so every target and credential pair gets its own.
type gosnmpClient struct {
	conn *gosnmp.GoSNMP
}

func newGosnmpClient(target string, cfg config.SNMPConfig, cred config.Credential) (Client, error) {
	version := gosnmp.Version2c
	if cred.Version == "1" {
		version = gosnmp.Version1
	}

	conn := &gosnmp.GoSNMP{
		Target:    target,
		Port:      uint16(cfg.Port),
		Community: cred.Community,
		Version:   version,
		Timeout:   cfg.Timeout,
		Retries:   cfg.Retries,
		Transport: "udp",
	}
	// Connect only initializes the UDP socket, nothing goes on the wire.
	if err := conn.Connect(); err != nil {
		return nil, errors.WrapScanErrorWithTarget(errors.CodeScanFailed,
			"Failed to open SNMP socket", target, err)
	}
	return &gosnmpClient{conn: conn}, nil
}

func (c *gosnmpClient) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	packet, err := c.conn.Get([]string{sysDescrOID})
	if err != nil {
		// UDP gives the same silence for a wrong community string and
		// an unreachable agent.
		return err
	}
	if packet == nil || packet.Error != gosnmp.NoError || len(packet.Variables) == 0 {
		return fmt.Errorf("agent rejected request: error status %v", packet.Error)
	}
	return nil
}

func (c *gosnmpClient) Get(ctx context.Context, oids []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	packet, err := c.conn.Get(oids)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(packet.Variables))
	for _, pdu := range packet.Variables {
		if value, ok := renderPDU(pdu); ok {
			values[pdu.Name] = value
		}
	}
	return values, nil
}

func (c *gosnmpClient) Walk(ctx context.Context, rootOID string, maxValues int) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make(map[string]string, maxValues)
	err := c.conn.Walk(rootOID, func(pdu gosnmp.SnmpPDU) error {
		if len(values) >= maxValues {
			return fmt.Errorf("walk cap of %d values reached", maxValues)
		}
		if value, ok := renderPDU(pdu); ok {
			values[pdu.Name] = value
		}
		return nil
	})
	// Hitting the cap aborts the walk but keeps what was collected.
	if err != nil && len(values) < maxValues {
		return values, err
	}
	return values, nil
}

func (c *gosnmpClient) Close() {
	if c.conn != nil && c.conn.Conn != nil {
		_ = c.conn.Conn.Close()
	}
}

// renderPDU turns one variable binding into a string value. Missing
// object markers are dropped so they never show up as device data.
func renderPDU(pdu gosnmp.SnmpPDU) (string, bool) {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return "", false
	case gosnmp.OctetString:
		raw, ok := pdu.Value.([]byte)
		if !ok {
			return fmt.Sprintf("%v", pdu.Value), true
		}
		return string(raw), true
	default:
		return fmt.Sprintf("%v", pdu.Value), true
	}
}
