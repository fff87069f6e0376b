package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ampio/canresolve/internal/metrics"
	"github.com/ampio/canresolve/internal/netdesc"
	"github.com/ampio/canresolve/internal/resolve"
)

// runResolve loads a network description, runs it through the resolution
// engine once, prints a human-readable report, and records Prometheus
// metrics for the run.
func runResolve(ctx context.Context, cfg *appConfig, l *slog.Logger) error {
	b, err := netdesc.Load(cfg.networkFile)
	if err != nil {
		return err
	}
	input := b.Freeze()

	start := time.Now()
	net, err := resolve.Resolve(input, resolve.WithProgress(func(stage resolve.Stage, detail string) {
		l.Debug("resolve_stage", "stage", stage.String(), "detail", detail)
	}))
	metrics.ResolveRuns.Inc()
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if re, ok := err.(*resolve.Error); ok {
			metrics.ResolveFailures.WithLabelValues(re.Kind.String()).Inc()
		} else {
			metrics.ResolveFailures.WithLabelValues("unknown").Inc()
		}
		return fmt.Errorf("resolve: %w", err)
	}

	metrics.ResolveMessages.Set(float64(len(net.Messages)))
	reportBusLoad(input, net)
	for _, n := range net.Nodes {
		total := 0
		for _, f := range n.FiltersPerBus {
			total += len(f)
		}
		metrics.ResolveFiltersPerNode.WithLabelValues(n.Name).Set(float64(total))
	}

	printReport(os.Stdout, net)
	l.Info("resolve_done", "messages", len(net.Messages), "buses", len(net.Buses), "nodes", len(net.Nodes))
	return nil
}
