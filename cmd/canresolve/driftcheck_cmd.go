package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ampio/canresolve/internal/can"
	"github.com/ampio/canresolve/internal/cnl"
	"github.com/ampio/canresolve/internal/drift"
	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/netdesc"
	"github.com/ampio/canresolve/internal/resolve"
	"github.com/ampio/canresolve/internal/serial"
)

// runDriftcheck resolves the network description once, then compares live
// frames from the configured backend against the resolved identifier set
// for cfg.bus, logging missing/unexpected traffic every cfg.window.
func runDriftcheck(ctx context.Context, cfg *appConfig, l *slog.Logger) error {
	b, err := netdesc.Load(cfg.networkFile)
	if err != nil {
		return err
	}
	net, err := resolve.Resolve(b.Freeze())
	if err != nil {
		return fmt.Errorf("driftcheck: resolve: %w", err)
	}
	if !hasBus(net, cfg.bus) {
		return fmt.Errorf("driftcheck: bus %q not found in resolved network", cfg.bus)
	}

	src, closeSrc, err := openDriftSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	checker := drift.NewChecker(net, cfg.bus)
	l.Info("driftcheck_start", "bus", cfg.bus, "backend", cfg.backend, "window", cfg.window)
	return drift.Run(ctx, src, checker, cfg.window)
}

func hasBus(net *model.Network, name string) bool {
	for _, b := range net.Buses {
		if b.Name == name {
			return true
		}
	}
	return false
}

// openDriftSource picks the live frame source named by cfg.backend. The
// socketcan case is implemented per-platform in driftcheck_socketcan*.go,
// mirroring how the gateway splits its SocketCAN backend across linux and
// non-linux build tags.
func openDriftSource(cfg *appConfig) (drift.Source, func(), error) {
	switch cfg.backend {
	case "socketcan":
		return openSocketCANSource(cfg.canIf)
	case "serial":
		port, err := serial.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
		if err != nil {
			return nil, nil, fmt.Errorf("driftcheck: open %s: %w", cfg.serialDev, err)
		}
		return &serialFrameSource{port: port}, func() { _ = port.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("driftcheck: unknown backend %q", cfg.backend)
	}
}

// serialFrameSource adapts a serial.Port's byte stream into can.Frame values
// using the same cannelloni-style framing the gateway speaks over serial.
type serialFrameSource struct {
	port  serial.Port
	codec cnl.Codec
}

func (s *serialFrameSource) ReadFrame(fr *can.Frame) error {
	decoded, err := s.codec.Decode(s.port)
	if err != nil {
		return err
	}
	*fr = decoded
	return nil
}
