package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/netsweep/internal/device"
	"github.com/anstrom/netsweep/internal/netinfo"
	"github.com/anstrom/netsweep/internal/scan"
)

// Stats aggregates the counters of one run.
type Stats struct {
	TargetsPlanned    int                       `json:"targets_planned"`
	DevicesFound      int                       `json:"devices_found"`
	SnmpCandidates    int                       `json:"snmp_candidates"`
	HostnamesResolved int                       `json:"hostnames_resolved"`
	DeviceTypes       map[device.DeviceType]int `json:"device_types,omitempty"`
}

// Result is the complete outcome of one scan run. Devices are keyed by
// IP; emission order comes from device.SortedIPs.
type Result struct {
	RunID     string                          `json:"run_id"`
	CIDR      string                          `json:"cidr"`
	Network   *netinfo.NetworkInfo            `json:"network,omitempty"`
	Devices   map[string]*device.Record       `json:"devices"`
	Phases    map[scan.Phase]scan.PhaseResult `json:"phases"`
	Stats     Stats                           `json:"stats"`
	Status    scan.Status                     `json:"status"`
	StartedAt time.Time                       `json:"started_at"`
	Duration  time.Duration                   `json:"duration"`
}

// NewResult returns a Result with a fresh run ID and every phase
// recorded as not started.
func NewResult() *Result {
	return &Result{
		RunID:     uuid.New().String(),
		Devices:   make(map[string]*device.Record),
		Phases:    newPhaseMap(),
		Status:    scan.StatusInProgress,
		StartedAt: time.Now().UTC(),
	}
}

func newPhaseMap() map[scan.Phase]scan.PhaseResult {
	phases := make(map[scan.Phase]scan.PhaseResult, 3)
	for _, phase := range []scan.Phase{scan.PhaseArp, scan.PhasePortScan, scan.PhaseSnmp} {
		phases[phase] = *scan.NewSkippedResult(phase)
	}
	return phases
}

// Complete stamps the duration and settles the overall status:
// COMPLETED only when every executed phase completed, PARTIAL as soon
// as any phase failed or was cut short. Phases that never started do
// not count against the run.
func (r *Result) Complete() {
	r.Duration = time.Since(r.StartedAt)
	r.Status = scan.StatusCompleted
	for _, phase := range r.Phases {
		if phase.Status.Degraded() {
			r.Status = scan.StatusPartial
			return
		}
	}
}

// PhaseOrder lists the phases in execution order for rendering.
func PhaseOrder() []scan.Phase {
	return []scan.Phase{scan.PhaseArp, scan.PhasePortScan, scan.PhaseSnmp}
}
