package core

import (
	"context"
	"testing"
	"time"

	"omegraph/pkg/domain"
)

func TestNoopImplementationsDoNotPanic(_ *testing.T) {
	var logger Logger = domain.NopLogger{}

	logger.Debug("test debug message", "key", "value")
	logger.Info("test info message", "key", "value")
	logger.Warn("test warn message", "key", "value")
	logger.Error("test error message", "key", "value")

	ctx, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
	noopMetrics{}.Observe(ctx, "op", true, time.Millisecond)
}
