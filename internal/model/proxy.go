// Package model defines shared types for the redirector.
package model

import (
	"context"
	"io"
	"net/http"
)

// InboundRequest is the per-request view used by the admission policy and the relay.
type InboundRequest struct {
	Ctx      context.Context
	Method   string
	Path     string // decoded path, used for matching
	RawPath  string // escaped path, used to build the outbound URL
	RawQuery string
	Header   http.Header
	Cookies  []*http.Cookie
	Body     io.Reader
}

// FullRequest returns the path with the raw query string appended when present.
func (r *InboundRequest) FullRequest() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// OutboundResult is the upstream response to be relayed back to the caller.
type OutboundResult struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
