// Package history persists completed scan runs to PostgreSQL and backs
// the history CLI command. Storage is optional: a scan never fails
// because the store is unavailable.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
)

const (
	// Default store configuration values.
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30
	defaultConnMaxIdleTime = 5

	// Default number of runs returned by RecentRuns.
	defaultRecentLimit = 20
)

// Config holds history store configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns the default store configuration. Persistence is
// disabled until a database name and credentials are configured.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Host:            "localhost",
		Port:            defaultPostgresPort,
		Database:        "",
		Username:        "",
		Password:        "",
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime * time.Minute,
		ConnMaxIdleTime: defaultConnMaxIdleTime * time.Minute,
	}
}

// Store wraps the scan history database connection.
type Store struct {
	db *sqlx.DB
}

// Connect establishes a connection to PostgreSQL. Returned errors are
// sanitized so credentials and DSN details never reach logs.
func Connect(ctx context.Context, cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database,
		cfg.Username, cfg.Password, cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.ErrStoreConnection(err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.ErrorStore("Failed to close store connection after ping failure", closeErr)
		}
		return nil, errors.ErrStoreConnection(err)
	}

	logging.InfoStore("Connected to history store",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS scan_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			network TEXT NOT NULL DEFAULT '',
			target_count INTEGER NOT NULL DEFAULT 0,
			device_count INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS scan_devices (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
			ip INET NOT NULL,
			mac TEXT NOT NULL DEFAULT '',
			hostname TEXT NOT NULL DEFAULT '',
			vendor TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT 'UNKNOWN',
			open_ports INTEGER[] NOT NULL DEFAULT '{}',
			services JSONB,
			snmp_name TEXT NOT NULL DEFAULT '',
			snmp_descr TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_scan_devices_run_id ON scan_devices(run_id);
		CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs(started_at DESC);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return sanitizeStoreError("ensure schema", err)
	}
	return nil
}

// SaveRun inserts one run row plus one row per device in a transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run, devices []Device) error {
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		metrics.RecordStoreQuery("save_run", time.Since(start), false)
		return sanitizeStoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	const runQuery = `
		INSERT INTO scan_runs (
			id, started_at, completed_at, status, network,
			target_count, device_count, error
		)
		VALUES (
			:id, :started_at, :completed_at, :status, :network,
			:target_count, :device_count, :error
		)`

	if _, err := tx.NamedExecContext(ctx, runQuery, run); err != nil {
		metrics.RecordStoreQuery("save_run", time.Since(start), false)
		return sanitizeStoreError("insert run", err)
	}

	const deviceQuery = `
		INSERT INTO scan_devices (
			run_id, ip, mac, hostname, vendor, device_type,
			open_ports, services, snmp_name, snmp_descr
		)
		VALUES (
			:run_id, :ip, :mac, :hostname, :vendor, :device_type,
			:open_ports, :services, :snmp_name, :snmp_descr
		)`

	for i := range devices {
		devices[i].RunID = run.ID
		if _, err := tx.NamedExecContext(ctx, deviceQuery, &devices[i]); err != nil {
			metrics.RecordStoreQuery("save_run", time.Since(start), false)
			return sanitizeStoreError("insert device", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordStoreQuery("save_run", time.Since(start), false)
		return sanitizeStoreError("commit transaction", err)
	}

	metrics.RecordStoreQuery("save_run", time.Since(start), true)
	logging.InfoStore("Saved scan run",
		"run_id", run.ID.String(), "devices", len(devices))
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	start := time.Now()
	var runs []Run
	query := `SELECT * FROM scan_runs ORDER BY started_at DESC LIMIT $1`

	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		metrics.RecordStoreQuery("list_runs", time.Since(start), false)
		return nil, sanitizeStoreError("list runs", err)
	}

	metrics.RecordStoreQuery("list_runs", time.Since(start), true)
	return runs, nil
}

// GetRun retrieves a single run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	query := `SELECT * FROM scan_runs WHERE id = $1`

	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, sanitizeStoreError("get run", err)
	}

	return &run, nil
}

// RunDevices returns the devices recorded for one run in address order.
func (s *Store) RunDevices(ctx context.Context, runID uuid.UUID) ([]Device, error) {
	start := time.Now()
	var devices []Device
	query := `SELECT * FROM scan_devices WHERE run_id = $1 ORDER BY ip`

	if err := s.db.SelectContext(ctx, &devices, query, runID); err != nil {
		metrics.RecordStoreQuery("list_devices", time.Since(start), false)
		return nil, sanitizeStoreError("list devices", err)
	}

	metrics.RecordStoreQuery("list_devices", time.Since(start), true)
	return devices, nil
}

// sanitizeStoreError converts database errors into typed store errors
// without leaking connection details.
func sanitizeStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		storeErr := errors.NewStoreError(errors.CodeNotFound, "Run not found")
		storeErr.Operation = operation
		return storeErr
	}

	var storeErr *errors.StoreError
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			storeErr = errors.NewStoreError(errors.CodeStorageQuery, "Run already recorded")
		case "23503": // foreign_key_violation
			storeErr = errors.NewStoreError(errors.CodeStorageQuery, "Referenced run does not exist")
		case "57014": // query_canceled
			storeErr = errors.NewStoreError(errors.CodeCanceled, "Store operation was canceled")
		case "08000", "08003", "08006": // connection errors
			storeErr = errors.NewStoreError(errors.CodeStorageConnection, "Store connection error")
		default:
			storeErr = errors.NewStoreError(errors.CodeStorageQuery,
				fmt.Sprintf("Store operation failed: %s", operation))
		}
	} else {
		storeErr = errors.NewStoreError(errors.CodeStorageQuery,
			fmt.Sprintf("Store operation failed: %s", operation))
	}

	storeErr.Operation = operation
	storeErr.Cause = err
	return storeErr
}
