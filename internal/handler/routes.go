package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"redirector/internal/config"
	"redirector/internal/metrics"
)

// relayMethods are accepted on every path, including the root.
var relayMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
	http.MethodHead,
}

// RegisterRoutes wires the catch-all relay onto the public Echo instance.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler) {
	e.Match(relayMethods, "/", relay.Handle)
	e.Match(relayMethods, "/*", relay.Handle)
}

// RegisterAdminRoutes wires health, status and, when enabled, metrics onto
// the admin Echo instance.
func RegisterAdminRoutes(e *echo.Echo, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
