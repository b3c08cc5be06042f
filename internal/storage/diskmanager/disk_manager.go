// Package diskmanager watches free space on the data volume and refuses
// block writes that would fill it.
package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/chainstore/internal/errors"
)

// DiskManager monitors disk space and enforces write policies
type DiskManager struct {
	dataDir       string
	logger        *zap.Logger
	checkInterval time.Duration
	statfs        func(path string, stat *syscall.Statfs_t) error

	// Thresholds in percent of the volume
	warningThreshold        float64
	throttleThreshold       float64
	circuitBreakerThreshold float64

	mu                   sync.Mutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	isThrottled          bool
	isCircuitBroken      bool
}

// DiskManagerConfig holds configuration for disk manager
type DiskManagerConfig struct {
	DataDir                 string
	CheckInterval           time.Duration
	WarningThreshold        float64
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64
}

// NewDiskManager creates a new disk manager with specified thresholds
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, errors.InvalidArgument("data directory is required", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dm := &DiskManager{
		dataDir:                 cfg.DataDir,
		logger:                  logger.With(zap.String("component", "disk_manager")),
		checkInterval:           cfg.CheckInterval,
		statfs:                  syscall.Statfs,
		warningThreshold:        cfg.WarningThreshold,
		throttleThreshold:       cfg.ThrottleThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
	}

	if err := dm.ForceCheck(); err != nil {
		dm.logger.Warn("Initial disk space check failed", zap.Error(err))
	}
	return dm, nil
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dataDir string) *DiskManagerConfig {
	return &DiskManagerConfig{
		DataDir:                 dataDir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        80.0,
		ThrottleThreshold:       90.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// CheckBeforeWrite checks if a write of the given size can proceed.
// A nil manager allows every write.
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	if dm == nil {
		return nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	switch {
	case dm.isCircuitBroken:
		return dm.spaceError(fmt.Sprintf("disk usage at %.2f%%, circuit breaker engaged", dm.cachedUsagePercent), estimatedBytes)
	case dm.isThrottled && estimatedBytes > dm.cachedAvailableBytes/10:
		// Small writes still pass while throttled.
		return dm.spaceError(fmt.Sprintf("disk usage at %.2f%%, write throttled", dm.cachedUsagePercent), estimatedBytes)
	case estimatedBytes > dm.cachedAvailableBytes:
		return dm.spaceError(fmt.Sprintf("insufficient space: need %d bytes, have %d bytes", estimatedBytes, dm.cachedAvailableBytes), estimatedBytes)
	}
	return nil
}

func (dm *DiskManager) spaceError(message string, estimatedBytes uint64) *errors.StorageError {
	return errors.InsufficientSpace(message).
		WithDetail("usage_percent", dm.cachedUsagePercent).
		WithDetail("available_bytes", dm.cachedAvailableBytes).
		WithDetail("requested_bytes", estimatedBytes).
		WithDetail("circuit_broken", dm.isCircuitBroken)
}

// checkDiskSpace refreshes the cached usage; mu must be held
func (dm *DiskManager) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := dm.statfs(dm.dataDir, &stat); err != nil {
		return errors.Filesystem("failed to stat filesystem", err)
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	availableBytes := stat.Bavail * uint64(stat.Bsize)
	usagePercent := 0.0
	if totalBytes > 0 {
		usagePercent = float64(totalBytes-availableBytes) / float64(totalBytes) * 100.0
	}

	dm.cachedUsagePercent = usagePercent
	dm.cachedAvailableBytes = availableBytes
	dm.lastCheck = time.Now()

	previouslyThrottled := dm.isThrottled
	previouslyBroken := dm.isCircuitBroken

	dm.isCircuitBroken = usagePercent >= dm.circuitBreakerThreshold
	dm.isThrottled = usagePercent >= dm.throttleThreshold && !dm.isCircuitBroken

	if dm.isCircuitBroken && !previouslyBroken {
		dm.logger.Error("Disk circuit breaker engaged",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("threshold", dm.circuitBreakerThreshold))
	} else if !dm.isCircuitBroken && previouslyBroken {
		dm.logger.Info("Disk circuit breaker released",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes))
	}

	if dm.isThrottled && !previouslyThrottled {
		dm.logger.Warn("Disk write throttling enabled",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("threshold", dm.throttleThreshold))
	} else if !dm.isThrottled && previouslyThrottled {
		dm.logger.Info("Disk write throttling disabled",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes))
	}

	if usagePercent >= dm.warningThreshold && !dm.isThrottled && !dm.isCircuitBroken {
		dm.logger.Warn("Disk usage warning",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("warning_threshold", dm.warningThreshold))
	}
	return nil
}

// GetDiskUsage returns current disk usage statistics
func (dm *DiskManager) GetDiskUsage() DiskUsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if time.Since(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	return DiskUsageStats{
		UsagePercent:    dm.cachedUsagePercent,
		AvailableBytes:  dm.cachedAvailableBytes,
		IsThrottled:     dm.isThrottled,
		IsCircuitBroken: dm.isCircuitBroken,
		WarningLevel:    dm.cachedUsagePercent >= dm.warningThreshold,
		LastCheck:       dm.lastCheck,
	}
}

// ForceCheck forces an immediate disk space check
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkDiskSpace()
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	UsagePercent    float64
	AvailableBytes  uint64
	IsThrottled     bool
	IsCircuitBroken bool
	WarningLevel    bool
	LastCheck       time.Time
}
