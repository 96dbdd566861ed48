package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"omegraph/pkg/domain"
)

// OpKeepAlive is the operation name of keep-alive pings.
const OpKeepAlive = "keepalive"

// KeepAlive pings a remote store on a fixed interval so idle connections are
// not dropped between imports. It never touches a graph session.
type KeepAlive struct {
	Pinger   domain.Pinger
	Interval time.Duration
	Logger   Logger
	Metrics  MetricsRecorder

	pings    atomic.Int64
	failures atomic.Int64
}

// Run pings until ctx is done. Ping failures are logged and counted; they do
// not stop the loop.
func (k *KeepAlive) Run(ctx context.Context) error {
	if k.Pinger == nil {
		return errors.New("keepalive requires a pinger")
	}
	if k.Interval <= 0 {
		return errors.New("keepalive interval must be positive")
	}
	logger := k.Logger
	if logger == nil {
		logger = domain.NopLogger{}
	}
	metrics := k.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ticker := time.NewTicker(k.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			pingCtx, cancel := context.WithTimeout(ctx, k.Interval)
			err := k.Pinger.Ping(pingCtx)
			cancel()
			k.pings.Add(1)
			metrics.Observe(ctx, OpKeepAlive, err == nil, time.Since(start))
			if err != nil {
				k.failures.Add(1)
				logger.Warn("store keepalive failed", "error", err)
			}
		}
	}
}

// Pings returns how many pings were sent.
func (k *KeepAlive) Pings() int64 { return k.pings.Load() }

// Failures returns how many pings failed.
func (k *KeepAlive) Failures() int64 { return k.failures.Load() }
