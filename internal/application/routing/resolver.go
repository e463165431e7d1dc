// Package routing maps a dialed destination to where a call or short
// message should go.
//
// Order: special codes, short codes, local number match, outbound fallback.
// Short messages never leave the network and never reach special targets.
package routing

import (
	"strings"
	"sync"

	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// Outcome classifies a routing result.
type Outcome string

const (
	OutcomeLocal       Outcome = "local"
	OutcomeOffline     Outcome = "offline"
	OutcomeOutbound    Outcome = "outbound"
	OutcomeSpecial     Outcome = "special"
	OutcomeUnavailable Outcome = "unavailable"
)

// Route is a routing decision. Target is the delivery location for Local,
// the configured target for Special and Outbound, and empty otherwise.
type Route struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
	Number  string  `json:"number,omitempty"`
	IMSI    string  `json:"imsi,omitempty"`
}

// Request names the caller by identity and what they dialed.
type Request struct {
	Caller        string `json:"caller"`
	Destination   string `json:"destination"`
	International bool   `json:"international,omitempty"`
}

// Settings are re-applied on every configuration reload.
type Settings struct {
	EmergencyCode       string
	EmergencyTarget     string
	ConferenceCode      string
	ConferenceTarget    string
	OutboundTarget      string
	InternationalPrefix string
	MinMatchDigits      int
}

// SubscriberView is the read side of the registry used for routing.
type SubscriberView interface {
	Profile(imsi string) (*subscriber.Profile, bool)
	ProfileByShortCode(code string) (*subscriber.Profile, bool)
	Registered(imsi string) (*subscriber.Registered, bool)
	RegisteredList() []*subscriber.Registered
	Policy() registry.Policy
}

type Resolver struct {
	mu       sync.RWMutex
	settings Settings
	view     SubscriberView
	logger   logger.Interface
}

func NewResolver(view SubscriberView, settings Settings, log logger.Interface) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{view: view, settings: settings, logger: log}
}

// Configure replaces the routing settings.
func (r *Resolver) Configure(settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
}

func (r *Resolver) current() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// RouteCall resolves a call destination.
func (r *Resolver) RouteCall(req Request) *Route {
	route := r.resolve(req, true)
	r.logger.Debugw("call routed",
		"caller", req.Caller,
		"destination", req.Destination,
		"outcome", route.Outcome,
	)
	return route
}

// RouteSMS resolves a short message destination. Only Local, Offline and
// Unavailable are possible.
func (r *Resolver) RouteSMS(req Request) *Route {
	route := r.resolve(req, false)
	r.logger.Debugw("sms routed",
		"caller", req.Caller,
		"destination", req.Destination,
		"outcome", route.Outcome,
	)
	return route
}

func (r *Resolver) resolve(req Request, call bool) *Route {
	s := r.current()
	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		return &Route{Outcome: OutcomeUnavailable}
	}

	if call {
		if s.EmergencyCode != "" && dest == s.EmergencyCode {
			return &Route{Outcome: OutcomeSpecial, Target: s.EmergencyTarget, Number: dest}
		}
		if s.ConferenceCode != "" && dest == s.ConferenceCode {
			return &Route{Outcome: OutcomeSpecial, Target: s.ConferenceTarget, Number: dest}
		}
	}

	if p, ok := r.view.ProfileByShortCode(dest); ok {
		if reg, attached := r.view.Registered(p.IMSI); attached {
			return localRoute(reg)
		}
		return &Route{Outcome: OutcomeOffline, IMSI: p.IMSI, Number: p.Number}
	}

	if reg := r.matchLocal(dest, s.MinMatchDigits); reg != nil {
		return localRoute(reg)
	}

	if call && s.OutboundTarget != "" && r.authorized(req.Caller) {
		return &Route{
			Outcome: OutcomeOutbound,
			Target:  s.OutboundTarget,
			Number:  formatOutbound(dest, req.International, s.InternationalPrefix),
		}
	}

	return &Route{Outcome: OutcomeUnavailable, Number: dest}
}

func localRoute(reg *subscriber.Registered) *Route {
	if !reg.Online() {
		return &Route{Outcome: OutcomeOffline, IMSI: reg.IMSI, Number: reg.Number}
	}
	return &Route{Outcome: OutcomeLocal, Target: reg.Location, IMSI: reg.IMSI, Number: reg.Number}
}

// matchLocal prefers an exact number match over a suffix match.
func (r *Resolver) matchLocal(dest string, minDigits int) *subscriber.Registered {
	want := normalize(dest)
	var suffix *subscriber.Registered
	for _, reg := range r.view.RegisteredList() {
		have := normalize(reg.Number)
		if have == "" {
			continue
		}
		if have == want {
			return reg
		}
		if suffix == nil && suffixMatch(have, want, minDigits) {
			suffix = reg
		}
	}
	return suffix
}

// authorized reports whether the caller may place outbound calls.
func (r *Resolver) authorized(caller string) bool {
	if caller == "" {
		return false
	}
	switch r.view.Policy().Mode {
	case vo.PolicyTable:
		p, ok := r.view.Profile(caller)
		return ok && p.Active
	case vo.PolicyPattern:
		_, ok := r.view.Registered(caller)
		return ok
	default:
		return false
	}
}

func normalize(number string) string {
	return strings.TrimPrefix(strings.TrimSpace(number), "+")
}

// suffixMatch: one number ends with the other and the shorter has at least minDigits.
func suffixMatch(a, b string, minDigits int) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= minDigits && strings.HasSuffix(long, short)
}

func formatOutbound(dest string, international bool, prefix string) string {
	if strings.HasPrefix(dest, "+") {
		international = true
	}
	number := normalize(dest)
	if international && prefix != "" && !strings.HasPrefix(number, prefix) {
		return prefix + number
	}
	return number
}
