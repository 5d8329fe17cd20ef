package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/device"
	"github.com/anstrom/netsweep/internal/metrics/mocks"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/scan"
)

type fakeWatch struct {
	running  bool
	scanning bool
	lastRun  time.Time
	nextRun  time.Time
	result   *pipeline.Result
}

func (f *fakeWatch) Running() bool                { return f.running }
func (f *fakeWatch) Scanning() bool               { return f.scanning }
func (f *fakeWatch) LastRun() time.Time           { return f.lastRun }
func (f *fakeWatch) NextRun() time.Time           { return f.nextRun }
func (f *fakeWatch) LastResult() *pipeline.Result { return f.result }

func statusConfig() config.StatusConfig {
	return config.StatusConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1",
		Port:       0,
	}
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, http.NoBody)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")

	rec := doRequest(t, s, "GET", "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestStatusWithoutWatch(t *testing.T) {
	s := New(statusConfig(), nil, "1.2.3")

	rec := doRequest(t, s, "GET", "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "netsweep", body.Service)
	assert.Equal(t, "1.2.3", body.Version)
	assert.False(t, body.Watch.Running)
	assert.Nil(t, body.LastRun)
}

func TestStatusWithWatch(t *testing.T) {
	result := pipeline.NewResult()
	result.CIDR = "10.0.0.0/24"
	result.Devices = map[string]*device.Record{
		"10.0.0.1": {IP: "10.0.0.1"},
		"10.0.0.2": {IP: "10.0.0.2"},
	}
	result.Complete()

	now := time.Now()
	watch := &fakeWatch{
		running:  true,
		scanning: false,
		lastRun:  now.Add(-10 * time.Minute),
		nextRun:  now.Add(50 * time.Minute),
		result:   result,
	}

	s := New(statusConfig(), watch, "1.0.0")

	rec := doRequest(t, s, "GET", "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Watch.Running)
	assert.False(t, body.Watch.Scanning)
	assert.NotEmpty(t, body.Watch.LastRun)
	assert.NotEmpty(t, body.Watch.NextRun)

	require.NotNil(t, body.LastRun)
	assert.Equal(t, result.RunID, body.LastRun.RunID)
	assert.Equal(t, scan.StatusCompleted, body.LastRun.Status)
	assert.Equal(t, "10.0.0.0/24", body.LastRun.CIDR)
	assert.Equal(t, 2, body.LastRun.Devices)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")

	rec := doRequest(t, s, "GET", "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "netsweep_system_uptime_seconds")
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")

	rec := doRequest(t, s, "POST", "/healthz")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")

	rec := doRequest(t, s, "GET", "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveMiddlewareRecordsRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockMetricsRegistry(ctrl)
	registry.EXPECT().Counter("http_requests_total", gomock.Any()).Times(1)
	registry.EXPECT().Histogram("http_request_duration_seconds", gomock.Any(), gomock.Any()).Times(1)

	s := New(statusConfig(), nil, "1.0.0")
	s.metrics = registry

	rec := doRequest(t, s, "GET", "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")
	s.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}).Methods("GET")

	rec := doRequest(t, s, "GET", "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	cfg := statusConfig()
	cfg.CORS.Enabled = true
	cfg.CORS.AllowedOrigins = []string{"*"}
	s := New(cfg, nil, "1.0.0")

	req, err := http.NewRequest("GET", "/healthz", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := New(statusConfig(), nil, "1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
