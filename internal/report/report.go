// Package report turns a finished scan run into its two output forms:
// a pretty-printed JSON file under the configured directory and a
// human-readable summary rendered as tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/device"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/scan"
)

// Writer persists scan results as JSON report files.
type Writer struct {
	cfg config.ReportConfig
	log *logging.Logger
}

// NewWriter creates a report writer for the configured output directory.
func NewWriter(cfg config.ReportConfig) *Writer {
	return &Writer{
		cfg: cfg,
		log: logging.Default().WithComponent("report"),
	}
}

// Write serializes the result to a timestamped JSON file and returns
// its path. The output directory is created when missing.
func (w *Writer) Write(result *pipeline.Result) (string, error) {
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(w.cfg.OutputDir, Filename(result))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	w.log.Info("Report written",
		"path", path,
		"bytes", len(data),
		"devices", len(result.Devices))
	return path, nil
}

// Filename returns the report file name for a result: the run's UTC
// start time plus a shortened run ID keeps names sortable and unique.
func Filename(result *pipeline.Result) string {
	return fmt.Sprintf("netsweep_%s_%s.json",
		result.StartedAt.UTC().Format("20060102T150405Z"),
		shortID(result.RunID))
}

// RenderSummary writes the run summary to out: one header line, the
// device table sorted by IP, then the per-phase outcome table.
func RenderSummary(out io.Writer, result *pipeline.Result) {
	fmt.Fprintf(out, "Run %s  %s  %s  %d devices  %s\n\n",
		shortID(result.RunID),
		result.CIDR,
		result.Status,
		len(result.Devices),
		result.Duration.Round(time.Millisecond))

	devices := tablewriter.NewWriter(out)
	devices.Header("IP", "MAC", "Hostname", "Type", "Open Ports", "Services")
	for _, ip := range device.SortedIPs(result.Devices) {
		rec := result.Devices[ip]
		_ = devices.Append([]string{
			rec.IP,
			rec.MAC,
			rec.Hostname,
			string(rec.Type),
			joinPorts(rec.OpenPorts),
			joinServices(rec),
		})
	}
	_ = devices.Render()

	fmt.Fprintln(out)

	phases := tablewriter.NewWriter(out)
	phases.Header("Phase", "Status", "Targets", "Found", "Duration", "Errors")
	for _, phase := range pipeline.PhaseOrder() {
		res := result.Phases[phase]
		duration := "-"
		if res.Status != scan.StatusNotStarted {
			duration = res.Duration.Round(time.Millisecond).String()
		}
		_ = phases.Append([]string{
			string(res.Phase),
			string(res.Status),
			strconv.Itoa(res.Targets),
			strconv.Itoa(res.Found),
			duration,
			strconv.Itoa(len(res.Errors)),
		})
	}
	_ = phases.Render()
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, port := range ports {
		parts[i] = strconv.Itoa(port)
	}
	return strings.Join(parts, ", ")
}

func joinServices(rec *device.Record) string {
	var parts []string
	for _, port := range rec.OpenPorts {
		if svc := rec.Services[port]; svc != "" {
			parts = append(parts, fmt.Sprintf("%d/%s", port, svc))
		}
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
