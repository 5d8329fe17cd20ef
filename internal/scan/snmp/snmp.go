// Package snmp implements the SNMP enrichment phase. Candidates from
// the port scan are interrogated in parallel, one worker job per
// device. Within a device the configured credential pairs are tried
// strictly in order and the first accepted pair is used for all
// further queries. Devices that accept no credential are recorded
// with no data and no error.
package snmp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/scan"
	"github.com/anstrom/netsweep/internal/workers"
)

const phaseName = string(scan.PhaseSnmp)

// Scanner runs the SNMP enrichment phase.
type Scanner struct {
	cfg       config.SNMPConfig
	newClient clientFactory
	log       *logging.Logger
}

// NewScanner returns a Scanner for the given configuration.
func NewScanner(cfg config.SNMPConfig) *Scanner {
	return &Scanner{
		cfg:       cfg,
		newClient: newGosnmpClient,
		log:       logging.Default().WithPhase(phaseName),
	}
}

// Scan interrogates every candidate and returns the devices that
// accepted a credential pair, with their queried values. Devices that
// rejected every pair are absent from the result, not errors.
func (s *Scanner) Scan(ctx context.Context, targets []string) (*scan.SnmpResult, error) {
	result := scan.NewSnmpResult(len(targets))
	if len(targets) == 0 {
		result.Complete(scan.StatusCompleted)
		return result, nil
	}

	s.log.Info("Starting SNMP enrichment",
		"candidates", len(targets),
		"credentials", len(s.cfg.Credentials),
		"workers", s.cfg.Workers)

	pool := workers.New(workers.Config{
		Size:            s.cfg.Workers,
		QueueSize:       len(targets),
		ShutdownTimeout: 5 * time.Second,
	})
	pool.Start()
	defer func() { _ = pool.Shutdown() }()

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		job := workers.NewQueryJob(fmt.Sprintf("snmp-%d", i), target,
			func(_ context.Context, address string) error {
				defer wg.Done()
				finding, ok := s.queryDevice(ctx, address)
				if ok {
					mu.Lock()
					result.Add(finding)
					mu.Unlock()
				}
				return nil
			})
		if submitErr := pool.Submit(job); submitErr != nil {
			wg.Done()
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		result.AddError(errors.WrapScanError(errors.CodeCanceled, "Enrichment interrupted", ctx.Err()))
		result.Complete(scan.StatusPartial)
	} else {
		result.Complete(scan.StatusCompleted)
	}

	s.log.Info("SNMP enrichment finished",
		"status", string(result.Status),
		"responsive", result.Found,
		"candidates", result.Targets,
		"duration", result.Duration)
	metrics.RecordPhaseDuration(phaseName, result.Duration)
	metrics.IncrementPhaseTotal(phaseName, string(result.Status))

	return result, nil
}

// queryDevice authenticates one device and collects its values. The
// second return is false when no credential pair was accepted.
func (s *Scanner) queryDevice(ctx context.Context, address string) (scan.SnmpFinding, bool) {
	client, cred, ok := s.authenticate(ctx, address)
	if !ok {
		metrics.IncrementProbes(phaseName, "silent")
		return scan.SnmpFinding{}, false
	}
	defer client.Close()
	metrics.IncrementProbes(phaseName, "responsive")

	finding := scan.SnmpFinding{
		IP:         address,
		Credential: cred,
		Values:     s.collect(ctx, client, address),
	}
	return finding, true
}

// authenticate tries the configured credential pairs in order and
// returns a live session for the first accepted one.
func (s *Scanner) authenticate(ctx context.Context, address string) (Client, config.Credential, bool) {
	for _, cred := range s.cfg.Credentials {
		if ctx.Err() != nil {
			break
		}

		client, err := s.newClient(address, s.cfg, cred)
		if err != nil {
			s.log.WarnProbe("Failed to open SNMP session", address,
				"version", cred.Version, "error", err)
			metrics.IncrementSnmpAuth("error")
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err = client.Check(checkCtx)
		cancel()
		if err != nil {
			client.Close()
			metrics.IncrementSnmpAuth("rejected")
			continue
		}

		metrics.IncrementSnmpAuth("accepted")
		return client, cred, true
	}

	s.log.WarnProbe("No credential pair accepted", address,
		"tried", len(s.cfg.Credentials))
	return nil, config.Credential{}, false
}

// collect runs the configured OID queries and subtree walks over an
// authenticated session. Failed requests cost their values, never the
// device.
func (s *Scanner) collect(ctx context.Context, client Client, address string) map[string]string {
	values := make(map[string]string)

	for _, chunk := range chunkOIDs(s.cfg.OIDs, s.cfg.MaxPerRequest) {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		chunkValues, err := client.Get(reqCtx, chunk)
		cancel()
		if err != nil {
			s.log.WarnProbe("OID query failed", address,
				"oids", len(chunk), "error", err)
			continue
		}
		for oid, value := range chunkValues {
			values[oid] = value
		}
	}

	for _, root := range s.cfg.WalkOIDs {
		walkValues, err := client.Walk(ctx, root, s.cfg.MaxWalkValues)
		if err != nil {
			s.log.WarnProbe("Subtree walk failed", address,
				"root", root, "error", err)
			continue
		}
		for oid, value := range walkValues {
			values[oid] = value
		}
	}

	return values
}

// chunkOIDs splits the OID list into request-sized batches, preserving
// order within and across chunks.
func chunkOIDs(oids []string, size int) [][]string {
	if len(oids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(oids)
	}

	chunks := make([][]string, 0, (len(oids)+size-1)/size)
	for start := 0; start < len(oids); start += size {
		end := start + size
		if end > len(oids) {
			end = len(oids)
		}
		chunks = append(chunks, oids[start:end])
	}
	return chunks
}
