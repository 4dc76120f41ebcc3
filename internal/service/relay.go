// Package service implements the forwarding relay.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"redirector/internal/client"
	"redirector/internal/config"
	"redirector/internal/model"
)

// excludedResponseHeaders depend on the upstream connection's framing and are
// recomputed by the inbound response writer.
var excludedResponseHeaders = map[string]bool{
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
	"Connection":        true,
}

// RelayService forwards admitted requests to the single upstream target.
type RelayService struct {
	client *client.UpstreamClient
	logger *slog.Logger
	target string // upstream target without trailing slashes
}

// NewRelayService creates a RelayService for the configured upstream target.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.Target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream target %q must be an absolute URL", cfg.Upstream.Target)
	}

	return &RelayService{
		client: c,
		logger: logger.With("component", "relay_service"),
		target: strings.TrimRight(cfg.Upstream.Target, "/"),
	}, nil
}

// Forward sends req to the upstream and returns the response with framing
// headers removed and the body decoded. The caller is responsible for
// closing the response body. Forward makes exactly one upstream attempt.
func (s *RelayService) Forward(req *model.InboundRequest) (*model.OutboundResult, error) {
	upstreamURL := s.buildUpstreamURL(req.RawPath, req.RawQuery)
	header := outboundHeaders(req.Header, req.Cookies)

	s.logger.Debug("forwarding request",
		"method", req.Method,
		"path", req.Path,
	)

	resp, err := s.client.DoStream(req.Ctx, req.Method, upstreamURL, header, req.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	encoding := resp.Header.Get("Content-Encoding")
	body, decoded := decodeBody(encoding, resp.Body)
	resp.Body = body
	resp.Header = filterResponseHeaders(resp.Header)
	if !decoded {
		resp.Header.Set("Content-Encoding", encoding)
	}
	return resp, nil
}

// buildUpstreamURL joins the target with the escaped inbound path and the raw
// query string, leaving both untouched.
func (s *RelayService) buildUpstreamURL(rawPath, rawQuery string) string {
	u := s.target + "/" + strings.TrimPrefix(rawPath, "/")
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// outboundHeaders copies every inbound header except Host. Cookies are
// carried by the Cookie header; parsed cookies are only added when that
// header is missing.
func outboundHeaders(src http.Header, cookies []*http.Cookie) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if strings.EqualFold(key, "Host") {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	if _, ok := dst["User-Agent"]; !ok {
		// An empty value stops the transport from adding its own.
		dst["User-Agent"] = []string{""}
	}
	if len(dst.Values("Cookie")) == 0 {
		for _, ck := range cookies {
			s := (&http.Cookie{Name: ck.Name, Value: ck.Value, Quoted: ck.Quoted}).String()
			if s == "" {
				continue
			}
			if prev := dst.Get("Cookie"); prev != "" {
				s = prev + "; " + s
			}
			dst.Set("Cookie", s)
		}
	}
	return dst
}

// filterResponseHeaders copies every upstream header outside the exclusion set.
func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if excludedResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = vals
	}
	return dst
}
