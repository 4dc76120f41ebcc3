package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"redirector/internal/denial"
	"redirector/internal/metrics"
	"redirector/internal/model"
	"redirector/internal/policy"
	"redirector/internal/service"
)

// RelayHandler admits or denies each inbound request and relays admitted
// ones to the upstream target.
type RelayHandler struct {
	policy  *policy.Policy
	service *service.RelayService
	denial  *denial.Page
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional.
func NewRelayHandler(p *policy.Policy, svc *service.RelayService, page *denial.Page, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		policy:  p,
		service: svc,
		denial:  page,
		metrics: m,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle evaluates admission, then either writes the denial page or relays
// the upstream response back to the caller.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	in := &model.InboundRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     req.URL.Path,
		RawPath:  req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Cookies:  req.Cookies(),
	}

	verdict := h.policy.Evaluate(in)
	if h.metrics != nil {
		h.metrics.ObserveVerdict(verdict)
	}
	if !verdict.Allowed {
		h.logger.Debug("request denied",
			"reason", verdict.Reason,
			"method", req.Method,
			"path", in.FullRequest(),
		)
		return c.Blob(denial.Status, denial.ContentType, h.denial.Body())
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, fmt.Errorf("read request body: %w", err))
	}
	in.Body = bytes.NewReader(body)

	resp, err := h.service.Forward(in)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream the status code has already been sent, so the client
	// receives a truncated response with the original status.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError turns an upstream failure into a 502 with a plain-text description.
func (h *RelayHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("client disconnected before upstream responded",
			"path", c.Request().URL.Path,
		)
	} else {
		h.logger.Error("relay error",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		// Body limit exceeded while reading the inbound request.
		return he
	}

	return c.String(http.StatusBadGateway, "Error forwarding request: "+err.Error())
}
