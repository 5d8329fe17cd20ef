package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/anstrom/netsweep/internal/device"
	"github.com/anstrom/netsweep/internal/history"
)

// HistoryRows converts the result into history store rows: one run row
// and one device row per record, in address order.
func (r *Result) HistoryRows() (*history.Run, []history.Device, error) {
	runID, err := uuid.Parse(r.RunID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse run id: %w", err)
	}

	run := &history.Run{
		ID:          runID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.StartedAt.Add(r.Duration),
		Status:      string(r.Status),
		Network:     r.CIDR,
		TargetCount: r.Stats.TargetsPlanned,
		DeviceCount: len(r.Devices),
		Error:       firstPhaseError(r),
	}

	rows := make([]history.Device, 0, len(r.Devices))
	for _, ip := range device.SortedIPs(r.Devices) {
		rec := r.Devices[ip]

		services, err := history.EncodeServices(rec.Services)
		if err != nil {
			return nil, nil, err
		}
		ports := make(pq.Int64Array, len(rec.OpenPorts))
		for i, port := range rec.OpenPorts {
			ports[i] = int64(port)
		}

		rows = append(rows, history.Device{
			RunID:      runID,
			IP:         rec.IP,
			MAC:        rec.MAC,
			Hostname:   rec.Hostname,
			Vendor:     rec.Vendor,
			DeviceType: string(rec.Type),
			OpenPorts:  ports,
			Services:   services,
			SNMPName:   rec.SNMPData[device.OIDSysName],
			SNMPDescr:  rec.SNMPData[device.OIDSysDescr],
		})
	}
	return run, rows, nil
}

// firstPhaseError returns the earliest recorded phase error. The run
// row keeps a single summary line, the report file has the full list.
func firstPhaseError(r *Result) string {
	for _, phase := range PhaseOrder() {
		if res := r.Phases[phase]; len(res.Errors) > 0 {
			return res.Errors[0]
		}
	}
	return ""
}
