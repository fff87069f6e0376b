package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, mdns.go, resolve_cmd.go, watch_cmd.go,
// driftcheck_cmd.go.

func usage() {
	fmt.Fprintf(os.Stderr, `canresolve %s (commit %s, built %s)

Usage:
  canresolve resolve    --network FILE [--metrics-addr ADDR]
  canresolve watch      --network FILE --listen ADDR [--mdns-enable]
  canresolve driftcheck --network FILE --bus NAME --backend serial|socketcan

Run 'canresolve <command> -h' for command-specific flags.
`, version, commit, date)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		return
	}
	if cmd == "version" || cmd == "--version" {
		fmt.Printf("canresolve %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	cfg, err := parseFlags(cmd, os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "canresolve %s: %v\n", cmd, err)
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()
	defer cancel()

	if cfg.metricsAddr != "" {
		initMetricsServer(ctx, cfg, l)
	}

	switch cmd {
	case "resolve":
		err = runResolve(ctx, cfg, l)
	case "watch":
		err = runWatch(ctx, cfg, l)
	case "driftcheck":
		err = runDriftcheck(ctx, cfg, l)
	default:
		fmt.Fprintf(os.Stderr, "canresolve: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error("command_failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}
