package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-explorer/internal/traffic"
)

// FlushTelemetry logs a final outcome summary and flushes log buffers before process exit.
// Prometheus is pull-based, so metrics need no flush. Call after in-flight requests drain.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, window time.Duration) error {
	if logger == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	degraded, total := traffic.DegradedRate(window)
	logger.Info("final traffic summary",
		zap.Int("resolutions", total),
		zap.Int("degraded", degraded),
		zap.Int("denied", traffic.DenialCount(window)),
		zap.Duration("window", window))
	// Sync on a terminal stderr returns EINVAL/ENOTTY; that is not a flush failure.
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
