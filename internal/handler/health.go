package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"redirector/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints on the admin listener.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body returned by Status.
type StatusResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Target    string   `json:"target"`
	Endpoints []string `json:"endpoints"` // null when every path is forwarded
	Header    string   `json:"required_header,omitempty"`
}

// Status returns the effective forwarding setup. The required header's
// expected value is never echoed.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := StatusResponse{
		Status:  "ok",
		Version: string(h.version),
		Target:  h.cfg.Upstream.Target,
		Header:  h.cfg.Rules.Header.Name,
	}
	if h.cfg.Rules.Endpoints != nil {
		resp.Endpoints = make([]string, 0, len(h.cfg.Rules.Endpoints))
		for _, spec := range h.cfg.Rules.Endpoints {
			resp.Endpoints = append(resp.Endpoints, spec.Value)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
