// Package policy decides whether an inbound request may be forwarded.
package policy

import (
	"net/http"
	"strings"

	"redirector/internal/config"
	"redirector/internal/model"
)

// Policy evaluates the header gate then the endpoint gate. It holds only
// immutable rules and is safe for concurrent use.
type Policy struct {
	endpoints []model.EndpointSpec
	header    model.HeaderGate
}

// New creates a Policy from compiled rules.
func New(rules config.Rules) *Policy {
	return &Policy{endpoints: rules.Endpoints, header: rules.Header}
}

// NewFromConfig creates a Policy from the loaded configuration.
func NewFromConfig(cfg *config.Config) *Policy {
	return New(cfg.Rules)
}

// Evaluate returns the verdict for req.
func (p *Policy) Evaluate(req *model.InboundRequest) model.Verdict {
	if !p.headerAllowed(req.Header) {
		return model.Deny(model.ReasonHeader)
	}
	if !p.endpointAllowed(req) {
		return model.Deny(model.ReasonEndpoint)
	}
	return model.Allow
}

func (p *Policy) headerAllowed(h http.Header) bool {
	switch p.header.Kind {
	case model.PresenceOnly:
		return h.Get(p.header.Name) != ""
	case model.NameValue:
		return h.Get(p.header.Name) == p.header.Value
	default:
		return true
	}
}

// endpointAllowed reports whether any spec matches. Prefix specs look at
// the path alone; exact specs compare path plus query.
func (p *Policy) endpointAllowed(req *model.InboundRequest) bool {
	if p.endpoints == nil {
		return true
	}
	full := req.FullRequest()
	for _, spec := range p.endpoints {
		switch spec.Kind {
		case model.ExactSpec:
			if full == spec.Value {
				return true
			}
		default:
			if strings.HasPrefix(req.Path, spec.Value) {
				return true
			}
		}
	}
	return false
}
