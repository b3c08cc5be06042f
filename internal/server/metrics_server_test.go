package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/devrev/pairdb/chainstore/internal/health"
	"github.com/devrev/pairdb/chainstore/internal/metrics"
	"github.com/devrev/pairdb/chainstore/internal/storage/diskmanager"
	"github.com/devrev/pairdb/chainstore/internal/table"
)

type tableList []*table.Table

func (l tableList) Tables() []*table.Table { return l }

func newTestServer(t *testing.T) (*MetricsServer, *health.HealthChecker, tableList) {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	tbl, err := table.Open(filepath.Join(dir, "state"), &table.Options{Logger: zap.NewNop(), Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	tables := tableList{tbl}

	checker := health.NewHealthChecker(&health.Config{DataDir: dir}, tables, zap.NewNop())
	srv := NewMetricsServer(&MetricsServerConfig{Host: "127.0.0.1", Port: 0}, reg, checker, zap.NewNop())
	return srv, checker, tables
}

func TestMetricsServer_Metrics(t *testing.T) {
	srv, _, tables := newTestServer(t)
	require.NoError(t, tables[0].Insert([]byte("k"), []byte("v")))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chainstore_table_inserts_total{table="state"} 1`)
}

func TestMetricsServer_Health(t *testing.T) {
	srv, checker, tables := newTestServer(t)
	require.NoError(t, tables[0].Commit(7))
	checker.RunChecks()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var report health.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, uint32(7), report.Versions["state"])
	assert.Equal(t, "healthy", report.Checks["tables"].Status)
}

func getHealth(t *testing.T, srv *MetricsServer) (int, health.Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var report health.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	return rec.Code, report
}

func TestMetricsServer_HealthClosedTable(t *testing.T) {
	srv, checker, tables := newTestServer(t)
	require.NoError(t, tables[0].Close())
	checker.RunChecks()

	code, report := getHealth(t, srv)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, "critical", report.Checks["tables"].Status)
	assert.Equal(t, codes.Unavailable.String(), report.Checks["tables"].Code)
}

func TestMetricsServer_HealthFullDisk(t *testing.T) {
	dir := t.TempDir()
	tbl, err := table.Open(filepath.Join(dir, "state"), &table.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })

	// Zero thresholds trip the circuit breaker on any volume.
	disk, err := diskmanager.NewDiskManager(&diskmanager.DiskManagerConfig{DataDir: dir}, zap.NewNop())
	require.NoError(t, err)

	checker := health.NewHealthChecker(&health.Config{DataDir: dir, Disk: disk}, tableList{tbl}, zap.NewNop())
	srv := NewMetricsServer(&MetricsServerConfig{Host: "127.0.0.1"}, prometheus.NewRegistry(), checker, zap.NewNop())
	checker.RunChecks()

	code, report := getHealth(t, srv)
	assert.Equal(t, http.StatusInsufficientStorage, code)
	assert.Equal(t, "critical", report.Checks["disk_space"].Status)
	assert.Equal(t, codes.ResourceExhausted.String(), report.Checks["disk_space"].Code)
	assert.Equal(t, "healthy", report.Checks["tables"].Status)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.ResourceExhausted, http.StatusInsufficientStorage},
		{codes.DataLoss, http.StatusInternalServerError},
		{codes.Internal, http.StatusInternalServerError},
		{codes.Unavailable, http.StatusServiceUnavailable},
		{codes.Aborted, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatus(tt.code))
		})
	}
}

func TestMetricsServer_Ready(t *testing.T) {
	srv, checker, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReadiness(true)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestMetricsServer_StopBeforeStart(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.NoError(t, srv.Stop(context.Background()))
}
