// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics exposes Prometheus instrumentation for the API.

A [Metrics] value owns its own registry rather than the process default, so
tests can build as many as they like without duplicate registration panics.

Series:

  - lms_http_requests_total{method,route,status}
  - lms_http_request_duration_seconds{method,route}
  - lms_auth_events_total{event,outcome}
  - lms_mail_deliveries_total{kind,outcome}
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lms"

// unmatchedRoute labels requests that no route handled, keeping cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics holds every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	authEvents     *prometheus.CounterVec
	mailDeliveries *prometheus.CounterVec
}

// New builds the collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			// bcrypt dominates auth latency; extend past the default buckets.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		authEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication and account lifecycle events by outcome",
		}, []string{"event", "outcome"}),
		mailDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_deliveries_total",
			Help:      "Outbound emails by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// Middleware records request counts and latency labelled by chi route pattern.
// Mount it before the router resolves routes; the pattern is read afterwards.
func (metrics *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		wrapped := chimw.NewWrapResponseWriter(writer, request.ProtoMajor)

		next.ServeHTTP(wrapped, request)

		route := unmatchedRoute
		if routeCtx := chi.RouteContext(request.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.httpRequests.WithLabelValues(request.Method, route, strconv.Itoa(status)).Inc()
		metrics.httpDuration.WithLabelValues(request.Method, route).Observe(time.Since(start).Seconds())
	})
}

// AuthEvent counts one account lifecycle event such as "login" / "failure".
func (metrics *Metrics) AuthEvent(event, outcome string) {
	metrics.authEvents.WithLabelValues(event, outcome).Inc()
}

// MailDelivery counts one outbound email attempt.
func (metrics *Metrics) MailDelivery(kind, outcome string) {
	metrics.mailDeliveries.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{Registry: metrics.registry})
}
