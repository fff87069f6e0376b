// Package metrics centralizes the process's Prometheus counters and a small
// set of atomically-mirrored local counters for the periodic text-log
// summary (cmd/canresolve's metrics_logger.go), the same split the gateway
// used to avoid scraping Prometheus in-process just to log a number.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ampio/canresolve/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial link.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watch_events_dropped_total",
		Help: "Total watch events dropped due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watch_clients_kicked_total",
		Help: "Total watch clients disconnected due to backpressure kick policy.",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watch_active_clients",
		Help: "Current number of attached watch clients.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	ResolveRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolve_runs_total",
		Help: "Total resolve engine invocations.",
	})
	ResolveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_failures_total",
		Help: "Total resolve engine failures by error kind.",
	}, []string{"kind"})
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolve_duration_seconds",
		Help:    "Wall-clock duration of a resolve engine run.",
		Buckets: prometheus.DefBuckets,
	})
	ResolveMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resolve_messages_total",
		Help: "Number of messages in the most recently resolved network.",
	})
	ResolveBusLoadRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resolve_bus_load_ratio",
		Help: "Estimated bus load as a fraction of capacity, per bus, after the most recent resolve.",
	}, []string{"bus"})
	ResolveFiltersPerNode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resolve_filters_per_node",
		Help: "Number of acceptance filters synthesized per node after the most recent resolve.",
	}, []string{"node"})
	DriftUnexpectedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_unexpected_frames_total",
		Help: "Total live CAN frames observed on a bus whose identifier is not in the resolved network.",
	}, []string{"bus"})
	DriftMissingFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_missing_frames_total",
		Help: "Total resolved identifiers not observed on the bus within one check window.",
	}, []string{"bus"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrHandshake      = "handshake"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANRead  = "socketcan_read"
)

// StartHTTP serves Prometheus metrics and a readiness probe on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for the periodic text-log summary.
var (
	localSerialRx    uint64
	localSocketCANRx uint64
	localHubDrop     uint64
	localHubKick     uint64
	localErrors      uint64
	localHubClients  uint64
	localMalformed   uint64
	localDriftUnexp  uint64
	localDriftMiss   uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	SerialRx        uint64
	SocketCANRx     uint64
	WatchDrops      uint64
	WatchKicks      uint64
	WatchClients    uint64
	Errors          uint64
	Malformed       uint64
	DriftUnexpected uint64
	DriftMissing    uint64
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:        atomic.LoadUint64(&localSerialRx),
		SocketCANRx:     atomic.LoadUint64(&localSocketCANRx),
		WatchDrops:      atomic.LoadUint64(&localHubDrop),
		WatchKicks:      atomic.LoadUint64(&localHubKick),
		WatchClients:    atomic.LoadUint64(&localHubClients),
		Errors:          atomic.LoadUint64(&localErrors),
		Malformed:       atomic.LoadUint64(&localMalformed),
		DriftUnexpected: atomic.LoadUint64(&localDriftUnexp),
		DriftMissing:    atomic.LoadUint64(&localDriftMiss),
	}
}

func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncDriftUnexpected(bus string) {
	DriftUnexpectedFrames.WithLabelValues(bus).Inc()
	atomic.AddUint64(&localDriftUnexp, 1)
}

func IncDriftMissing(bus string) {
	DriftMissingFrames.WithLabelValues(bus).Inc()
	atomic.AddUint64(&localDriftMiss, 1)
}

// InitBuildInfo sets the build info gauge (called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrHandshake, ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
