package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/errors"
)

// newMockStore returns a store backed by sqlmock together with the mock
// controller for setting expectations.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

// TestDefaultConfig tests the default store configuration.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "", cfg.Database)
	assert.Equal(t, "", cfg.Username)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxIdleTime)
}

// TestJSONB tests the JSONB custom column type.
func TestJSONB(t *testing.T) {
	t.Run("scan_bytes", func(t *testing.T) {
		var j JSONB
		err := j.Scan([]byte(`{"22":"ssh"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"22":"ssh"}`, j.String())
	})

	t.Run("scan_string", func(t *testing.T) {
		var j JSONB
		err := j.Scan(`{"80":"http"}`)
		require.NoError(t, err)
		assert.Equal(t, `{"80":"http"}`, j.String())
	})

	t.Run("scan_nil_value", func(t *testing.T) {
		var j JSONB
		err := j.Scan(nil)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("scan_unsupported_type", func(t *testing.T) {
		var j JSONB
		err := j.Scan(42)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot scan")
	})

	t.Run("value_round_trip", func(t *testing.T) {
		j := JSONB(`{"161":"snmp"}`)
		v, err := j.Value()
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"161":"snmp"}`), v)
	})

	t.Run("value_nil", func(t *testing.T) {
		var j JSONB
		v, err := j.Value()
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

// TestEncodeServices tests rendering of service maps for storage.
func TestEncodeServices(t *testing.T) {
	t.Run("empty_map_encodes_to_nil", func(t *testing.T) {
		j, err := EncodeServices(nil)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("ports_become_json_keys", func(t *testing.T) {
		j, err := EncodeServices(map[int]string{22: "ssh", 80: "http"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"22":"ssh","80":"http"}`, j.String())
	})
}

// TestRunDuration tests run duration computation.
func TestRunDuration(t *testing.T) {
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{
		StartedAt:   started,
		CompletedAt: started.Add(90 * time.Second),
	}
	assert.Equal(t, 90*time.Second, run.Duration())
}

// TestSaveRun tests transactional persistence of a run and its devices.
func TestSaveRun(t *testing.T) {
	t.Run("saves_run_and_devices", func(t *testing.T) {
		store, mock := newMockStore(t)

		run := &Run{
			ID:          uuid.New(),
			StartedAt:   time.Now().Add(-time.Minute),
			CompletedAt: time.Now(),
			Status:      "COMPLETED",
			Network:     "192.168.1.0/24",
			TargetCount: 251,
			DeviceCount: 2,
		}
		devices := []Device{
			{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:01", DeviceType: "LINUX",
				OpenPorts: pq.Int64Array{22, 80}},
			{IP: "192.168.1.20", MAC: "aa:bb:cc:dd:ee:02", DeviceType: "UNKNOWN"},
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO scan_runs").
			WithArgs(run.ID, run.StartedAt, run.CompletedAt, "COMPLETED",
				"192.168.1.0/24", 251, 2, "").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scan_devices").
			WithArgs(run.ID, "192.168.1.10", "aa:bb:cc:dd:ee:01", "", "",
				"LINUX", pq.Int64Array{22, 80}, nil, "", "").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO scan_devices").
			WithArgs(run.ID, "192.168.1.20", "aa:bb:cc:dd:ee:02", "", "",
				"UNKNOWN", pq.Int64Array(nil), nil, "", "").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err := store.SaveRun(context.Background(), run, devices)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("assigns_run_id_to_devices", func(t *testing.T) {
		store, mock := newMockStore(t)

		run := &Run{ID: uuid.New(), Status: "COMPLETED"}
		devices := []Device{{IP: "10.0.0.5"}}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO scan_runs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scan_devices").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := store.SaveRun(context.Background(), run, devices)
		require.NoError(t, err)
		assert.Equal(t, run.ID, devices[0].RunID)
	})

	t.Run("rolls_back_on_device_insert_failure", func(t *testing.T) {
		store, mock := newMockStore(t)

		run := &Run{ID: uuid.New(), Status: "COMPLETED"}
		devices := []Device{{IP: "10.0.0.5"}}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO scan_runs").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scan_devices").
			WillReturnError(&pq.Error{Code: "23502"})
		mock.ExpectRollback()

		err := store.SaveRun(context.Background(), run, devices)
		require.Error(t, err)
		assert.Equal(t, errors.CodeStorageQuery, errors.GetCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports_begin_failure", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin().WillReturnError(assert.AnError)

		err := store.SaveRun(context.Background(), &Run{ID: uuid.New()}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.CodeStorageQuery, errors.GetCode(err))
	})
}

// TestRecentRuns tests run listing.
func TestRecentRuns(t *testing.T) {
	t.Run("returns_newest_first", func(t *testing.T) {
		store, mock := newMockStore(t)

		now := time.Now()
		runID := uuid.New()
		rows := sqlmock.NewRows([]string{
			"id", "started_at", "completed_at", "status", "network",
			"target_count", "device_count", "error",
		}).AddRow(runID, now.Add(-time.Hour), now.Add(-59*time.Minute),
			"COMPLETED", "192.168.1.0/24", 251, 12, "")

		mock.ExpectQuery(`SELECT \* FROM scan_runs ORDER BY started_at DESC LIMIT \$1`).
			WithArgs(5).
			WillReturnRows(rows)

		runs, err := store.RecentRuns(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, runID, runs[0].ID)
		assert.Equal(t, "COMPLETED", runs[0].Status)
		assert.Equal(t, 251, runs[0].TargetCount)
	})

	t.Run("applies_default_limit", func(t *testing.T) {
		store, mock := newMockStore(t)

		rows := sqlmock.NewRows([]string{
			"id", "started_at", "completed_at", "status", "network",
			"target_count", "device_count", "error",
		})
		mock.ExpectQuery(`SELECT \* FROM scan_runs`).
			WithArgs(defaultRecentLimit).
			WillReturnRows(rows)

		_, err := store.RecentRuns(context.Background(), 0)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestGetRun tests single run retrieval.
func TestGetRun(t *testing.T) {
	t.Run("returns_run", func(t *testing.T) {
		store, mock := newMockStore(t)

		runID := uuid.New()
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "started_at", "completed_at", "status", "network",
			"target_count", "device_count", "error",
		}).AddRow(runID, now, now, "PARTIAL", "10.0.0.0/24", 251, 3, "")

		mock.ExpectQuery(`SELECT \* FROM scan_runs WHERE id = \$1`).
			WithArgs(runID).
			WillReturnRows(rows)

		run, err := store.GetRun(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, "PARTIAL", run.Status)
	})

	t.Run("maps_missing_run_to_not_found", func(t *testing.T) {
		store, mock := newMockStore(t)

		runID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM scan_runs WHERE id = \$1`).
			WithArgs(runID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.GetRun(context.Background(), runID)
		require.Error(t, err)
		assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	})
}

// TestRunDevices tests device listing for a run.
func TestRunDevices(t *testing.T) {
	store, mock := newMockStore(t)

	runID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "run_id", "ip", "mac", "hostname", "vendor", "device_type",
		"open_ports", "services", "snmp_name", "snmp_descr",
	}).AddRow(int64(1), runID, "192.168.1.10", "aa:bb:cc:dd:ee:01", "printer.lan",
		"", "IOT", "{554,9999}", []byte(`{"554":"rtsp"}`), "", "").
		AddRow(int64(2), runID, "192.168.1.20", "", "", "", "UNKNOWN",
			"{}", nil, "", "")

	mock.ExpectQuery(`SELECT \* FROM scan_devices WHERE run_id = \$1 ORDER BY ip`).
		WithArgs(runID).
		WillReturnRows(rows)

	devices, err := store.RunDevices(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "192.168.1.10", devices[0].IP)
	assert.Equal(t, pq.Int64Array{554, 9999}, devices[0].OpenPorts)
	assert.Equal(t, `{"554":"rtsp"}`, devices[0].Services.String())
	assert.Equal(t, "UNKNOWN", devices[1].DeviceType)
}

// TestSanitizeStoreError tests database error classification.
func TestSanitizeStoreError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode errors.ErrorCode
	}{
		{"unique_violation", &pq.Error{Code: "23505"}, errors.CodeStorageQuery},
		{"foreign_key_violation", &pq.Error{Code: "23503"}, errors.CodeStorageQuery},
		{"query_canceled", &pq.Error{Code: "57014"}, errors.CodeCanceled},
		{"connection_failure", &pq.Error{Code: "08006"}, errors.CodeStorageConnection},
		{"unknown_pq_code", &pq.Error{Code: "42601"}, errors.CodeStorageQuery},
		{"plain_error", assert.AnError, errors.CodeStorageQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sanitizeStoreError("test operation", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}

	t.Run("nil_error_passes_through", func(t *testing.T) {
		assert.NoError(t, sanitizeStoreError("noop", nil))
	})
}
