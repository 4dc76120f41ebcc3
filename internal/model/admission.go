package model

import "strings"

// EndpointKind selects how an EndpointSpec is compared against a request.
type EndpointKind int

const (
	// PrefixSpec matches when the request path starts with the spec.
	PrefixSpec EndpointKind = iota
	// ExactSpec matches when path plus query equals the spec exactly.
	ExactSpec
)

func (k EndpointKind) String() string {
	if k == ExactSpec {
		return "exact"
	}
	return "prefix"
}

// EndpointSpec is one allowed endpoint, classified at configuration time.
type EndpointSpec struct {
	Kind  EndpointKind
	Value string
}

// NewEndpointSpec normalizes raw to begin with "/" and classifies it by the
// presence of a query marker.
func NewEndpointSpec(raw string) EndpointSpec {
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	kind := PrefixSpec
	if strings.Contains(raw, "?") {
		kind = ExactSpec
	}
	return EndpointSpec{Kind: kind, Value: raw}
}

func (s EndpointSpec) String() string {
	return s.Value
}

// HeaderGateKind selects the header check performed on each request.
type HeaderGateKind int

const (
	NoHeaderGate HeaderGateKind = iota
	PresenceOnly
	NameValue
)

// HeaderGate describes the required-header check.
type HeaderGate struct {
	Kind  HeaderGateKind
	Name  string
	Value string
}

func (g HeaderGate) String() string {
	switch g.Kind {
	case PresenceOnly:
		return g.Name
	case NameValue:
		return g.Name + ":" + g.Value
	default:
		return ""
	}
}

// Verdict is the outcome of admission for a single request.
type Verdict struct {
	Allowed bool
	Reason  string // set on denial: "header" or "endpoint"
}

// Denial reasons.
const (
	ReasonHeader   = "header"
	ReasonEndpoint = "endpoint"
)

// Allow is the verdict for an admitted request.
var Allow = Verdict{Allowed: true}

// Deny returns a denied verdict carrying the failing gate.
func Deny(reason string) Verdict {
	return Verdict{Reason: reason}
}
