package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/ampio/canresolve/internal/watch"
)

// runWatch serves resolve.Stage/outcome events to TCP clients, re-resolving
// the network description whenever the file changes.
func runWatch(ctx context.Context, cfg *appConfig, l *slog.Logger) error {
	h := watch.New()
	h.OutBufSize = 256
	h.Policy = watch.PolicyDrop

	srv := watch.NewServer(
		watch.WithHub(h),
		watch.WithLogger(l),
		watch.WithHandshakeTimeout(cfg.handshakeTO),
	)
	srv.SetListenAddr(cfg.watchListen)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		port := portOf(srv.Addr())
		cleanup, err := startMDNS(ctx, cfg, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "port", port)
		go func() { <-ctx.Done(); cleanup() }()
	}()

	w := watch.NewWatcher(cfg.networkFile, h)
	w.Interval = cfg.watchInterval
	go w.Run(ctx)

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			p = addr[i+1:]
		}
	}
	n, _ := strconv.Atoi(p)
	return n
}
