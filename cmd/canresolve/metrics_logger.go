package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ampio/canresolve/internal/metrics"
)

// initMetricsServer starts the Prometheus/readiness HTTP endpoint and, if
// requested, the periodic text-log summary. The server is closed when ctx
// is cancelled.
func initMetricsServer(ctx context.Context, cfg *appConfig, l *slog.Logger) {
	metrics.InitBuildInfo(version, commit, date)
	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	srv := metrics.StartHTTP(cfg.metricsAddr)
	go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
	if cfg.logMetricsEvery > 0 {
		var wg sync.WaitGroup
		startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)
	}
}

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"serial_rx", snap.SerialRx,
					"socketcan_rx", snap.SocketCANRx,
					"watch_clients", snap.WatchClients,
					"watch_drops", snap.WatchDrops,
					"watch_kicks", snap.WatchKicks,
					"drift_unexpected", snap.DriftUnexpected,
					"drift_missing", snap.DriftMissing,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
