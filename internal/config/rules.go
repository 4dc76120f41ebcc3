package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"redirector/internal/model"
)

// ErrInvalidHeader is returned for a required-header option that names no valid header.
var ErrInvalidHeader = errors.New("invalid required header")

// Rules is the compiled admission input: classified endpoint specs and the
// header gate. A nil Endpoints slice allows every path; an empty non-nil
// slice denies every path.
type Rules struct {
	Endpoints []model.EndpointSpec
	Header    model.HeaderGate
}

// Compile classifies the raw endpoint list and parses the header option.
func (a AdmissionConfig) Compile() (Rules, error) {
	gate, err := ParseHeaderGate(a.Header)
	if err != nil {
		return Rules{}, err
	}
	var endpoints []model.EndpointSpec
	if a.Endpoints != nil {
		endpoints = ParseEndpoints(*a.Endpoints)
	}
	return Rules{Endpoints: endpoints, Header: gate}, nil
}

// ParseEndpoints normalizes each entry to begin with "/" and classifies it.
// Blank entries are skipped. The result is never nil.
func ParseEndpoints(raw []string) []model.EndpointSpec {
	specs := make([]model.EndpointSpec, 0, len(raw))
	for _, e := range raw {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		specs = append(specs, model.NewEndpointSpec(e))
	}
	return specs
}

// ParseHeaderGate parses "Name:Value" or a bare "Name".
func ParseHeaderGate(raw string) (model.HeaderGate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.HeaderGate{Kind: model.NoHeaderGate}, nil
	}

	name, value, _ := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldName(name) {
		return model.HeaderGate{}, fmt.Errorf("%w: %q", ErrInvalidHeader, raw)
	}
	if value == "" {
		return model.HeaderGate{Kind: model.PresenceOnly, Name: name}, nil
	}
	return model.HeaderGate{Kind: model.NameValue, Name: name, Value: value}, nil
}

// NormalizeTarget defaults the scheme to https and appends port when the
// target carries no explicit port.
func NormalizeTarget(raw string, port int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("upstream target %q is not a valid URL: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("upstream target must use http or https; got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("upstream target %q has no host", raw)
	}

	if u.Port() == "" {
		if port < 1 || port > 65535 {
			return "", fmt.Errorf("cannot append port %d to upstream target", port)
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	} else if p, err := strconv.Atoi(u.Port()); err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("upstream target port %q is out of range", u.Port())
	}

	return u.String(), nil
}
