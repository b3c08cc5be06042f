package table

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairdb/chainstore/internal/errors"
)

// DebugLogName is the per-table diagnostic trace
const DebugLogName = "debug.log"

// newTableLogger scopes base to the table and, when enabled, tees every
// entry at debug level and above into dir/debug.log.
func newTableLogger(base *zap.Logger, dir, name string, enabled bool) (*zap.Logger, func() error, error) {
	logger := base.With(zap.String("table", name))
	if !enabled {
		return logger, func() error { return nil }, nil
	}

	file, err := os.OpenFile(filepath.Join(dir, DebugLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.Filesystem("failed to open debug log", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.DebugLevel)

	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore.With([]zapcore.Field{zap.String("table", name)}))
	}))

	closeFn := func() error {
		return multierr.Append(file.Sync(), file.Close())
	}
	return logger, closeFn, nil
}
