package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-flexcan-media/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors. Per-controller series are labeled with the
// controller index ("0".."2"); label values are fixed at startup to bound
// cardinality, so the receive interrupt path never allocates.
var (
	CANRxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total CAN FD frames received into the software queue.",
	}, []string{"controller"})
	CANTxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total CAN FD frames loaded into a transmit message buffer.",
	}, []string{"controller"})
	CANRxDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_rx_discarded_total",
		Help: "Total received frames dropped because the RX queue was full.",
	}, []string{"controller"})
	SelectTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_select_timeouts_total",
		Help: "Total select calls whose bound elapsed with no ready buffer.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total frames received from TCP clients for transmission.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total frames sent to TCP clients.",
	})
	SlcanTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_tx_frames_total",
		Help: "Total frames mirrored to the SLCAN serial port.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by the hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	BroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients addressed by the most recent broadcast.",
	})
	ClientQueueMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_client_queue_depth_max",
		Help: "Deepest per-client outbound queue at the last broadcast.",
	})
	ClientQueueAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_client_queue_depth_avg",
		Help: "Mean per-client outbound queue depth at the last broadcast.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed wire frames (invalid DLC, truncated).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTCPRead      = "tcp_read"
	ErrTCPWrite     = "tcp_write"
	ErrSlcanRead    = "slcan_read"
	ErrSlcanWrite   = "slcan_write"
	ErrSlcanOver    = "slcan_tx_overflow"
	ErrCANWrite     = "can_write"
	ErrCANOver      = "can_tx_overflow"
	ErrClockWait    = "clock_wait"
	ErrFreezeWait   = "freeze_wait"
	ErrLowPowerWait = "lowpower_wait"
)

// controllerLabels avoids strconv in the interrupt path.
var controllerLabels = [...]string{"0", "1", "2"}

// StartHTTP serves Prometheus metrics at /metrics on the given address and
// a readiness probe at /ready.
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

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for periodic logging without scraping Prometheus
// in-process.
var (
	localCANRx      uint64
	localCANTx      uint64
	localCANDiscard uint64
	localSelectTO   uint64
	localTCPRx      uint64
	localTCPTx      uint64
	localSlcanTx    uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localMalformed  uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	CANRx        uint64
	CANTx        uint64
	CANDiscarded uint64
	SelectTO     uint64
	TCPRx        uint64
	TCPTx        uint64
	SlcanTx      uint64
	HubDrops     uint64
	HubKicks     uint64
	HubRejects   uint64
	Errors       uint64 // sum across error labels
	HubClients   uint64
	Malformed    uint64
}

func Snap() Snapshot {
	return Snapshot{
		CANRx:        atomic.LoadUint64(&localCANRx),
		CANTx:        atomic.LoadUint64(&localCANTx),
		CANDiscarded: atomic.LoadUint64(&localCANDiscard),
		SelectTO:     atomic.LoadUint64(&localSelectTO),
		TCPRx:        atomic.LoadUint64(&localTCPRx),
		TCPTx:        atomic.LoadUint64(&localTCPTx),
		SlcanTx:      atomic.LoadUint64(&localSlcanTx),
		HubDrops:     atomic.LoadUint64(&localHubDrop),
		HubKicks:     atomic.LoadUint64(&localHubKick),
		HubRejects:   atomic.LoadUint64(&localHubReject),
		Errors:       atomic.LoadUint64(&localErrors),
		HubClients:   atomic.LoadUint64(&localHubClients),
		Malformed:    atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.

// IncCANRx counts a frame queued by controller i's receive interrupt.
func IncCANRx(i int) {
	CANRxFrames.WithLabelValues(controllerLabels[i]).Inc()
	atomic.AddUint64(&localCANRx, 1)
}

// IncCANTx counts a frame loaded into one of controller i's TX buffers.
func IncCANTx(i int) {
	CANTxFrames.WithLabelValues(controllerLabels[i]).Inc()
	atomic.AddUint64(&localCANTx, 1)
}

// IncCANDiscard counts a frame dropped on arrival because controller i's
// RX queue was full.
func IncCANDiscard(i int) {
	CANRxDiscarded.WithLabelValues(controllerLabels[i]).Inc()
	atomic.AddUint64(&localCANDiscard, 1)
}

func IncSelectTimeout() {
	SelectTimeouts.Inc()
	atomic.AddUint64(&localSelectTO, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncSlcanTx() {
	SlcanTxFrames.Inc()
	atomic.AddUint64(&localSlcanTx, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetBroadcastFanout(n int) { BroadcastFanout.Set(float64(n)) }

func SetQueueDepth(max, avg int) {
	ClientQueueMax.Set(float64(max))
	ClientQueueAvg.Set(float64(avg))
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

// InitBuildInfo sets the build info gauge (called once at startup). It also
// pre-registers the per-controller and error series so the first interrupt
// does not pay a registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, c := range controllerLabels {
		CANRxFrames.WithLabelValues(c).Add(0)
		CANTxFrames.WithLabelValues(c).Add(0)
		CANRxDiscarded.WithLabelValues(c).Add(0)
	}
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite,
		ErrSlcanRead, ErrSlcanWrite, ErrSlcanOver,
		ErrCANWrite, ErrCANOver,
		ErrClockWait, ErrFreezeWait, ErrLowPowerWait,
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
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
