// Package metrics exposes Prometheus collectors for simulations, caches and
// the HTTP host, and adapts them to the observability hook interfaces.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/forceview/pkg/observability"
)

var (
	// RunsTotal counts headless simulation runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forceview_sim_runs_total",
			Help: "Total number of headless simulation runs.",
		},
		[]string{"status"},
	)

	// RunDuration observes wall time of headless runs.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forceview_sim_run_duration_seconds",
			Help:    "Duration of headless simulation runs.",
			Buckets: prometheus.DefBuckets,
		},
	)

	FramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forceview_sim_frames_total",
			Help: "Total number of simulation frames advanced.",
		},
	)

	FrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forceview_sim_frame_duration_seconds",
			Help:    "Duration of a single simulation frame.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// Settleness is the most recently observed settleness of any simulation.
	Settleness = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forceview_sim_settleness",
			Help: "Settleness reported by the most recent frame.",
		},
	)

	WindowSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forceview_sim_window_nodes",
			Help: "Number of nodes repelled in the most recent frame.",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forceview_sessions_active",
			Help: "Number of live simulation sessions.",
		},
	)

	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forceview_renders_total",
			Help: "Total number of renders by format and outcome.",
		},
		[]string{"format", "status"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forceview_cache_requests_total",
			Help: "Cache lookups by key type and result.",
		},
		[]string{"type", "result"},
	)

	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forceview_cache_bytes_written_total",
			Help: "Bytes written to the cache by key type.",
		},
		[]string{"type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forceview_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forceview_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Hooks implements every observability hook interface on top of the
// package collectors.
type Hooks struct{}

var (
	_ observability.SimulationHooks = Hooks{}
	_ observability.CacheHooks      = Hooks{}
	_ observability.HTTPHooks       = Hooks{}
)

// Register installs Hooks as the global observability hooks.
func Register() {
	h := Hooks{}
	observability.SetSimulationHooks(h)
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }

func (Hooks) OnRunStart(context.Context, int, int) {}

func (Hooks) OnRunComplete(_ context.Context, _ uint64, d time.Duration, err error) {
	RunsTotal.WithLabelValues(status(err)).Inc()
	RunDuration.Observe(d.Seconds())
}

func (Hooks) OnFrame(_ context.Context, settleness float64, window int, d time.Duration) {
	FramesTotal.Inc()
	FrameDuration.Observe(d.Seconds())
	Settleness.Set(settleness)
	WindowSize.Set(float64(window))
}

func (Hooks) OnSessionOpen(context.Context, int) { SessionsActive.Inc() }
func (Hooks) OnSessionClose(context.Context)     { SessionsActive.Dec() }

func (Hooks) OnRenderComplete(_ context.Context, format string, _ time.Duration, err error) {
	RendersTotal.WithLabelValues(format, status(err)).Inc()
}

func (Hooks) OnCacheHit(_ context.Context, keyType string) {
	CacheRequests.WithLabelValues(keyType, "hit").Inc()
}

func (Hooks) OnCacheMiss(_ context.Context, keyType string) {
	CacheRequests.WithLabelValues(keyType, "miss").Inc()
}

func (Hooks) OnCacheSet(_ context.Context, keyType string, size int) {
	CacheBytesWritten.WithLabelValues(keyType).Add(float64(size))
}

func (Hooks) OnResponse(_ context.Context, method, route string, code int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware reports every request to the registered HTTP hooks. The route
// label is the chi route pattern so path parameters do not explode label
// cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		observability.HTTP().OnResponse(r.Context(), r.Method, route, wrapped.statusCode, time.Since(start))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Hijack supports the websocket upgrade on the stream route.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
