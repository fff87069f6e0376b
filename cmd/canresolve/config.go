package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// appConfig holds the flags shared by every subcommand plus the ones each
// subcommand interprets on its own. Not every field is meaningful to every
// subcommand; parseFlags validates only what the active command needs.
type appConfig struct {
	networkFile string

	logFormat string
	logLevel  string

	metricsAddr     string
	logMetricsEvery time.Duration

	// watch
	watchListen      string
	watchInterval    time.Duration
	handshakeTO      time.Duration
	mdnsEnable       bool
	mdnsName         string

	// driftcheck
	backend      string
	canIf        string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	bus          string
	window       time.Duration
}

// parseFlags parses the flags for one subcommand's FlagSet, applying
// CAN_RESOLVE_* environment overrides the same way the gateway's
// CAN_SERVER_* overrides worked: flags win when explicitly set, env fills
// the rest, and parseFlags always returns a semantically validated config.
func parseFlags(cmd string, args []string) (*appConfig, error) {
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	cfg := &appConfig{}

	fs.StringVar(&cfg.networkFile, "network", "network.yaml", "Path to the network description YAML")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")

	switch cmd {
	case "watch":
		fs.StringVar(&cfg.watchListen, "listen", ":20100", "TCP listen address for watch clients")
		fs.DurationVar(&cfg.watchInterval, "poll-interval", time.Second, "Network file poll interval")
		fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", 3*time.Second, "Client handshake timeout")
		fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS advertisement of the watch service")
		fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default canresolve-watch-<hostname>)")
	case "driftcheck":
		fs.StringVar(&cfg.backend, "backend", "socketcan", "Live CAN source: serial|socketcan")
		fs.StringVar(&cfg.canIf, "can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
		fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
		fs.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
		fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
		fs.StringVar(&cfg.bus, "bus", "", "Bus name (from the network description) to check; required")
		fs.DurationVar(&cfg.window, "window", 10*time.Second, "Missing-frame reporting window")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, set, cmd); err != nil {
		return nil, err
	}
	if err := cfg.validate(cmd); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *appConfig) validate(cmd string) error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.networkFile == "" {
		return errors.New("--network is required")
	}
	if cmd == "driftcheck" {
		switch c.backend {
		case "serial", "socketcan":
		default:
			return fmt.Errorf("invalid backend: %s", c.backend)
		}
		if c.bus == "" {
			return errors.New("--bus is required for driftcheck")
		}
		if c.baud <= 0 {
			return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
		}
	}
	return nil
}

// applyEnvOverrides maps CAN_RESOLVE_* environment variables onto cfg,
// skipping anything the caller already set via flag (flags win).
func applyEnvOverrides(c *appConfig, set map[string]struct{}, cmd string) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["network"]; !ok {
		if v, ok := get("CAN_RESOLVE_NETWORK"); ok && v != "" {
			c.networkFile = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CAN_RESOLVE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CAN_RESOLVE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CAN_RESOLVE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("CAN_RESOLVE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_RESOLVE_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}

	switch cmd {
	case "watch":
		if _, ok := set["listen"]; !ok {
			if v, ok := get("CAN_RESOLVE_WATCH_LISTEN"); ok && v != "" {
				c.watchListen = v
			}
		}
		if _, ok := set["mdns-enable"]; !ok {
			if v, ok := get("CAN_RESOLVE_MDNS_ENABLE"); ok && v != "" {
				switch strings.ToLower(v) {
				case "1", "true", "yes", "on":
					c.mdnsEnable = true
				case "0", "false", "no", "off":
					c.mdnsEnable = false
				}
			}
		}
	case "driftcheck":
		if _, ok := set["backend"]; !ok {
			if v, ok := get("CAN_RESOLVE_BACKEND"); ok && v != "" {
				c.backend = v
			}
		}
		if _, ok := set["can-if"]; !ok {
			if v, ok := get("CAN_RESOLVE_IF"); ok && v != "" {
				c.canIf = v
			}
		}
		if _, ok := set["baud"]; !ok {
			if v, ok := get("CAN_RESOLVE_BAUD"); ok && v != "" {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					c.baud = n
				} else if err != nil && firstErr == nil {
					firstErr = fmt.Errorf("invalid CAN_RESOLVE_BAUD: %w", err)
				}
			}
		}
		if _, ok := set["bus"]; !ok {
			if v, ok := get("CAN_RESOLVE_BUS"); ok && v != "" {
				c.bus = v
			}
		}
	}
	return firstErr
}
