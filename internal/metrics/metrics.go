// Package metrics exposes Prometheus collectors for the front desk.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry         *prometheus.Registry
	scans            *prometheus.CounterVec
	renewals         *prometheus.CounterVec
	occupancy        *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	credentialStream prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymkeeper_scans_total",
				Help: "Front-desk scans by outcome",
			},
			[]string{"status", "reason"},
		),
		renewals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymkeeper_renewals_total",
				Help: "Committed membership renewals by plan",
			},
			[]string{"plan"},
		),
		occupancy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gymkeeper_occupancy",
				Help: "People currently inside, by location",
			},
			[]string{"location"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gymkeeper_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		credentialStream: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymkeeper_credential_streams",
			Help: "Open credential rotation streams",
		}),
	}
	reg.MustRegister(m.scans, m.renewals, m.occupancy, m.httpRequests, m.httpDuration, m.credentialStream)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan counts a scan outcome.
func (m *Metrics) ObserveScan(status, reason string) {
	m.scans.WithLabelValues(status, reason).Inc()
}

// ObserveRenewal counts a renewal.
func (m *Metrics) ObserveRenewal(plan domain.PlanKind) {
	m.renewals.WithLabelValues(string(plan)).Inc()
}

// ObserveOccupancy sets the occupancy gauge.
func (m *Metrics) ObserveOccupancy(locationID string, count int64) {
	m.occupancy.WithLabelValues(locationID).Set(float64(count))
}

// StreamOpened tracks an open credential stream; call the returned func on close.
func (m *Metrics) StreamOpened() func() {
	m.credentialStream.Inc()
	return m.credentialStream.Dec
}

// Middleware records request counts and latency labelled by route pattern,
// so member ids in paths do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
