package obs

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gatewayInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bms_gateway_in_flight_requests",
		Help: "Gateway calls currently awaiting a response.",
	})

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_gateway_requests_total",
			Help: "Total number of gateway calls by operation and outcome.",
		},
		[]string{"method", "path", "outcome"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bms_gateway_request_duration_seconds",
			Help:    "Gateway call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	viewReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_view_reloads_total",
			Help: "Dashboard view reloads by role and result.",
		},
		[]string{"role", "result"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bms_ready",
		Help: "1 when the last watch-mode reload succeeded.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(gatewayInFlight, gatewayRequestsTotal, gatewayRequestDuration, viewReloads, ready)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GatewayCall marks the start of a gateway call and returns the function
// recording its outcome ("ok", "validation", "auth", "not_found", "network").
func GatewayCall(method, path string) func(outcome string) {
	path = CanonicalPath(path)
	gatewayInFlight.Inc()
	start := time.Now()
	return func(outcome string) {
		gatewayInFlight.Dec()
		gatewayRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		gatewayRequestsTotal.WithLabelValues(method, path, outcome).Inc()
	}
}

// ViewReloaded counts a dashboard reload.
func ViewReloaded(role string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	viewReloads.WithLabelValues(role, result).Inc()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// CanonicalPath collapses numeric path segments to ":id" and drops the query
// so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s != "" && isDigits(s) {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
