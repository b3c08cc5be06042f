package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/devrev/pairdb/chainstore/internal/storage/diskmanager"
	"github.com/devrev/pairdb/chainstore/internal/table"
)

// Status is the overall state reported to probes
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// TableSet lists the tables a node serves
type TableSet interface {
	Tables() []*table.Table
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Err is the storage error behind a failed check
	Err error `json:"-"`
}

// fail marks the result with err and its gRPC code
func (r *CheckResult) fail(severity string, err error) {
	r.Status = severity
	r.Message = err.Error()
	r.Code = status.Code(err).String()
	r.Err = err
}

// Report is a snapshot of the last check round
type Report struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	CheckedAt time.Time              `json:"checked_at"`
	Versions  map[string]uint32      `json:"versions"`
	Checks    map[string]CheckResult `json:"checks"`
}

// HealthChecker periodically checks the data directory and the tables
type HealthChecker struct {
	dataDir  string
	disk     *diskmanager.DiskManager
	tables   TableSet
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	lastCheck time.Time
	status    Status
	checks    map[string]CheckResult
	versions  map[string]uint32
	ready     bool
}

// Config holds configuration for health checks
type Config struct {
	DataDir  string
	Interval time.Duration

	// Disk is shared with the tables; one is built for DataDir when nil
	Disk *diskmanager.DiskManager
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *Config, tables TableSet, logger *zap.Logger) *HealthChecker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	disk := cfg.Disk
	if disk == nil {
		dm, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.DataDir), logger)
		if err != nil {
			logger.Warn("Disk manager unavailable", zap.Error(err))
		}
		disk = dm
	}
	return &HealthChecker{
		dataDir:  cfg.DataDir,
		disk:     disk,
		tables:   tables,
		interval: interval,
		logger:   logger,
		checks:   make(map[string]CheckResult),
		versions: make(map[string]uint32),
		status:   StatusHealthy,
	}
}

// Start runs checks until ctx is done
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.RunChecks()
	for {
		select {
		case <-ticker.C:
			h.RunChecks()
		case <-ctx.Done():
			h.logger.Debug("Health checker stopped")
			return
		}
	}
}

// RunChecks runs one round of checks
func (h *HealthChecker) RunChecks() {
	results := []CheckResult{
		h.checkDiskSpace(),
		h.checkDataDirWritable(),
	}
	tablesResult, versions := h.checkTables()
	results = append(results, tablesResult)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()
	h.versions = versions

	healthy, ready := true, true
	for _, r := range results {
		h.checks[r.Name] = r
		if r.Status != "healthy" {
			healthy = false
			if r.Status == "critical" {
				ready = false
			}
		}
	}

	switch {
	case healthy:
		h.status = StatusHealthy
	case ready:
		h.status = StatusDegraded
	default:
		h.status = StatusUnhealthy
	}
	h.ready = ready

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("ready", h.ready))
}

func (h *HealthChecker) checkDiskSpace() CheckResult {
	result := CheckResult{Name: "disk_space", Timestamp: time.Now()}

	if h.disk == nil {
		result.Status = "critical"
		result.Message = "Disk manager unavailable"
		return result
	}
	if err := h.disk.ForceCheck(); err != nil {
		result.fail("critical", err)
		return result
	}

	usage := h.disk.GetDiskUsage()
	switch {
	case usage.IsCircuitBroken:
		result.Status = "critical"
		result.Message = fmt.Sprintf("Disk usage critical: %.2f%%", usage.UsagePercent)
		if err := h.disk.CheckBeforeWrite(0); err != nil {
			result.fail("critical", err)
		}
	case usage.IsThrottled:
		result.Status = "warning"
		result.Message = fmt.Sprintf("Disk usage high: %.2f%%", usage.UsagePercent)
	default:
		result.Status = "healthy"
		result.Message = fmt.Sprintf("Disk usage: %.2f%%", usage.UsagePercent)
	}
	return result
}

func (h *HealthChecker) checkDataDirWritable() CheckResult {
	result := CheckResult{Name: "data_dir_writable", Timestamp: time.Now()}

	probe := filepath.Join(h.dataDir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
	f, err := os.Create(probe)
	if err != nil {
		result.Status = "critical"
		result.Message = fmt.Sprintf("Cannot write to data directory: %v", err)
		return result
	}
	f.Close()
	os.Remove(probe)

	result.Status = "healthy"
	result.Message = "Data directory is writable"
	return result
}

func (h *HealthChecker) checkTables() (CheckResult, map[string]uint32) {
	result := CheckResult{Name: "tables", Timestamp: time.Now()}
	versions := make(map[string]uint32)

	tables := h.tables.Tables()
	if len(tables) == 0 {
		result.Status = "critical"
		result.Message = "No tables open"
		return result, versions
	}

	lowest, highest := tables[0].Version(), tables[0].Version()
	for _, t := range tables {
		if err := t.Err(); err != nil {
			result.fail("critical", err)
			return result, versions
		}
		v := t.Version()
		versions[t.Name()] = v
		if v < lowest {
			lowest = v
		}
		if v > highest {
			highest = v
		}
	}

	// Tables diverge only between a commit fan-out and its completion.
	if lowest != highest {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Table versions diverge: %d..%d", lowest, highest)
		return result, versions
	}
	result.Status = "healthy"
	result.Message = fmt.Sprintf("%d tables at version %d", len(tables), lowest)
	return result, versions
}

// IsReady reports whether the last round found no critical problem
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// SetReadiness overrides readiness, e.g. during shutdown
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Report returns a copy of the last check round
func (h *HealthChecker) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:    h.status,
		Ready:     h.ready,
		CheckedAt: h.lastCheck,
		Versions:  make(map[string]uint32, len(h.versions)),
		Checks:    make(map[string]CheckResult, len(h.checks)),
	}
	for k, v := range h.versions {
		r.Versions[k] = v
	}
	for k, v := range h.checks {
		r.Checks[k] = v
	}
	return r
}
