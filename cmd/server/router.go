package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkgate/internal/gateway/handler"
	"zkgate/internal/platform/health"
	"zkgate/pkg/platform/middleware/request"
	"zkgate/pkg/platform/middleware/requesttime"
	"zkgate/pkg/platform/validation"
)

// newRouter wires all public endpoints with middleware.
func newRouter(h *handler.Handler, hc *health.Handler, gatherer prometheus.Gatherer, latency *request.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(request.ClientIP)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(latency))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)

	hc.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	h.Register(r)

	return r
}
