package history

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JSONB wraps json.RawMessage for PostgreSQL JSONB columns.
type JSONB json.RawMessage

// Scan implements sql.Scanner for PostgreSQL JSONB type.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = JSONB(v)
		return nil
	case string:
		*j = JSONB([]byte(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
}

// Value implements driver.Valuer for PostgreSQL JSONB type.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// String returns the JSON string.
func (j JSONB) String() string {
	return string(j)
}

// EncodeServices renders a port-to-service map as a JSONB column value.
func EncodeServices(services map[int]string) (JSONB, error) {
	if len(services) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(services)
	if err != nil {
		return nil, fmt.Errorf("failed to encode services: %w", err)
	}
	return JSONB(data), nil
}

// Run is one persisted scan run.
type Run struct {
	ID          uuid.UUID `db:"id" json:"id"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
	Status      string    `db:"status" json:"status"`
	Network     string    `db:"network" json:"network"`
	TargetCount int       `db:"target_count" json:"target_count"`
	DeviceCount int       `db:"device_count" json:"device_count"`
	Error       string    `db:"error" json:"error,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Device is one device observed during a run.
type Device struct {
	ID         int64         `db:"id" json:"id"`
	RunID      uuid.UUID     `db:"run_id" json:"run_id"`
	IP         string        `db:"ip" json:"ip"`
	MAC        string        `db:"mac" json:"mac"`
	Hostname   string        `db:"hostname" json:"hostname"`
	Vendor     string        `db:"vendor" json:"vendor"`
	DeviceType string        `db:"device_type" json:"device_type"`
	OpenPorts  pq.Int64Array `db:"open_ports" json:"open_ports"`
	Services   JSONB         `db:"services" json:"services,omitempty"`
	SNMPName   string        `db:"snmp_name" json:"snmp_name,omitempty"`
	SNMPDescr  string        `db:"snmp_descr" json:"snmp_descr,omitempty"`
}
