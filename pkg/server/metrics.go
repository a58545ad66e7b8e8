package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audit outcome labels, shared by the metrics and the audit log.
const (
	auditOK      = "ok"
	auditDenied  = "denied"
	auditUnknown = "unknown"
	auditFault   = "fault"
)

// Metrics holds Prometheus metric descriptors for the game server.
// Each Metrics owns its own registry so multiple games can coexist in
// one process. A nil *Metrics is valid and counts nothing.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	sessions         prometheus.Gauge
	commandsTotal    *prometheus.CounterVec
	suggestionsTotal prometheus.Counter
	bytesSentTotal   prometheus.Counter
	bytesRecvTotal   prometheus.Counter
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emberwake_sessions",
			Help: "Number of currently connected sessions.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emberwake_commands_total",
			Help: "Total input lines processed, by outcome.",
		}, []string{"outcome"}),
		suggestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberwake_suggestions_total",
			Help: "Total near-miss suggestions offered for unknown commands.",
		}),
		bytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberwake_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		}),
		bytesRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberwake_bytes_received_total",
			Help: "Total bytes received from clients.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emberwake_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emberwake_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emberwake_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.sessions,
		m.commandsTotal,
		m.suggestionsTotal,
		m.bytesSentTotal,
		m.bytesRecvTotal,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// IncDispatched counts a successfully dispatched command.
func (m *Metrics) IncDispatched() {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(auditOK).Inc()
}

// IncDenied counts a command blocked by the unconscious gate.
func (m *Metrics) IncDenied() {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(auditDenied).Inc()
}

// IncUnknown counts an input line that resolved to no command.
func (m *Metrics) IncUnknown() {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(auditUnknown).Inc()
}

// IncFault counts a handler panic caught by the dispatch boundary.
func (m *Metrics) IncFault() {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(auditFault).Inc()
}

// IncSuggestion counts a near-miss suggestion shown to a player.
func (m *Metrics) IncSuggestion() {
	if m == nil {
		return
	}
	m.suggestionsTotal.Inc()
}

// SetSessions records the current connection count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// AddBytesSent accumulates outbound traffic.
func (m *Metrics) AddBytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSentTotal.Add(float64(n))
}

// AddBytesRecv accumulates inbound traffic.
func (m *Metrics) AddBytesRecv(n int) {
	if m == nil {
		return
	}
	m.bytesRecvTotal.Add(float64(n))
}

// Update refreshes the runtime gauges.
func (m *Metrics) Update() {
	if m == nil {
		return
	}
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
