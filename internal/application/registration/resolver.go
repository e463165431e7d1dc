// Package registration handles attach, renewal and detach of subscribers.
package registration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orris-inc/cellcore/internal/application/auth"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// maxCandidateAttempts bounds the search for a free memorable number.
const maxCandidateAttempts = 256

// Status is the outcome of a registration step that did not fail.
type Status string

const (
	StatusRegistered Status = "registered"
	// StatusChallenged pauses the flow until the subscriber answers the challenge.
	StatusChallenged Status = "challenged"
	// StatusNeedIdentity asks the caller to resend with the permanent identity.
	StatusNeedIdentity Status = "need_identity"
)

// Request is one attach or renewal attempt.
type Request struct {
	IMSI     string `json:"imsi,omitempty"`
	TMSI     string `json:"tmsi,omitempty"`
	IMEI     string `json:"imei,omitempty"`
	Location string `json:"location,omitempty"`
	// Number is a requested number, granted when no one else holds it.
	Number   string `json:"number,omitempty"`
	Response string `json:"response,omitempty"`
	Resync   string `json:"resync,omitempty"`
}

// Result is returned for every non-error outcome.
type Result struct {
	Status    Status       `json:"status"`
	IMSI      string       `json:"imsi,omitempty"`
	TMSI      string       `json:"tmsi,omitempty"`
	Number    string       `json:"number,omitempty"`
	Expires   time.Time    `json:"expires,omitempty"`
	Phase     vo.AuthPhase `json:"phase,omitempty"`
	Challenge string       `json:"challenge,omitempty"`
	AUTN      string       `json:"autn,omitempty"`
}

// Settings are re-applied on every configuration reload.
type Settings struct {
	TTL          time.Duration
	NumberLength int
	CountryCode  string
}

// Store is the part of the registry the resolver reads and writes.
type Store interface {
	Policy() registry.Policy
	Profile(imsi string) (*subscriber.Profile, bool)
	Registered(imsi string) (*subscriber.Registered, bool)
	RegisteredByTemporaryID(tmsi string) (*subscriber.Registered, bool)
	NumberInUse(number, except string) bool
	Upsert(ctx context.Context, reg *subscriber.Registered) (bool, error)
	Remove(ctx context.Context, imsi string) bool
	RecordRejection(imsi string) int
}

type Authenticator interface {
	Authenticate(ctx context.Context, req auth.Request) (*auth.Result, error)
}

type TemporaryIDAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

type CandidateSource interface {
	Next(n int) (string, string)
}

// WelcomeSender queues the one-shot notice sent when a number is assigned.
type WelcomeSender interface {
	EnqueueWelcome(ctx context.Context, imsi, number string) error
}

type Resolver struct {
	mu       sync.RWMutex
	settings Settings

	store      Store
	auth       Authenticator
	allocator  TemporaryIDAllocator
	candidates CandidateSource
	welcome    WelcomeSender
	now        biztime.Clock
	logger     logger.Interface
}

func NewResolver(
	store Store,
	authenticator Authenticator,
	allocator TemporaryIDAllocator,
	candidates CandidateSource,
	welcome WelcomeSender,
	settings Settings,
	log logger.Interface,
) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{
		settings:   settings,
		store:      store,
		auth:       authenticator,
		allocator:  allocator,
		candidates: candidates,
		welcome:    welcome,
		now:        biztime.NowUTC,
		logger:     log,
	}
}

// WithClock replaces the resolver clock.
func (r *Resolver) WithClock(clock biztime.Clock) *Resolver {
	r.now = clock.OrDefault()
	return r
}

// Configure replaces the registration settings.
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

// Register runs one registration step. Policy rejections come back as
// not_allowed errors and a terminal auth failure as auth_failed.
func (r *Resolver) Register(ctx context.Context, req Request) (*Result, error) {
	settings := r.current()
	tmsi := strings.ToUpper(strings.TrimSpace(req.TMSI))

	imsi := strings.TrimSpace(req.IMSI)
	if imsi == "" {
		reg, ok := r.store.RegisteredByTemporaryID(tmsi)
		if !ok {
			r.logger.Debugw("unknown temporary identity", "tmsi", tmsi)
			return &Result{Status: StatusNeedIdentity, TMSI: tmsi}, nil
		}
		imsi = reg.IMSI
	}

	profile, err := r.checkPolicy(imsi)
	if err != nil {
		return nil, err
	}

	if profile != nil && profile.RequiresAuth() {
		res, err := r.auth.Authenticate(ctx, auth.Request{IMSI: imsi, Response: req.Response, Resync: req.Resync})
		if err != nil {
			return nil, err
		}
		switch res.Phase {
		case vo.AuthPhaseVerified:
		case vo.AuthPhaseFailed:
			return nil, errors.NewAuthFailedError("authentication failed", imsi)
		default:
			return &Result{
				Status:    StatusChallenged,
				IMSI:      imsi,
				Phase:     res.Phase,
				Challenge: res.Challenge,
				AUTN:      res.AUTN,
			}, nil
		}
	}

	prev, registered := r.store.Registered(imsi)

	number, err := r.assignNumber(imsi, strings.TrimSpace(req.Number), profile, prev, settings)
	if err != nil {
		return nil, err
	}

	if tmsi != "" {
		if holder, held := r.store.RegisteredByTemporaryID(tmsi); held && holder.IMSI != imsi {
			r.logger.Warnw("temporary identity held by another subscriber",
				"tmsi", tmsi,
				"imsi", imsi,
				"holder", holder.IMSI,
			)
			tmsi = ""
		}
	}
	if tmsi == "" {
		tmsi, err = r.allocator.Allocate(ctx)
		if err != nil {
			return nil, err
		}
	}

	imei := req.IMEI
	if imei == "" && registered {
		imei = prev.IMEI
	}

	reg := &subscriber.Registered{
		IMSI:     imsi,
		TMSI:     tmsi,
		IMEI:     imei,
		Number:   number,
		Location: strings.TrimSpace(req.Location),
		Expires:  r.now().Add(settings.TTL),
	}
	if _, err := r.store.Upsert(ctx, reg); err != nil {
		return nil, err
	}

	if !registered || prev.Number != number {
		if r.welcome != nil {
			if err := r.welcome.EnqueueWelcome(ctx, imsi, number); err != nil {
				r.logger.Warnw("failed to queue welcome message", "imsi", imsi, "number", number, "error", err)
			}
		}
	}

	r.logger.Infow("subscriber registered",
		"imsi", imsi,
		"tmsi", tmsi,
		"number", number,
		"online", reg.Online(),
		"renewal", registered,
	)
	return &Result{
		Status:  StatusRegistered,
		IMSI:    imsi,
		TMSI:    tmsi,
		Number:  number,
		Expires: reg.Expires,
	}, nil
}

// checkPolicy returns the profile in table mode, nil in pattern mode, or a
// not_allowed error after counting the rejection.
func (r *Resolver) checkPolicy(imsi string) (*subscriber.Profile, error) {
	policy := r.store.Policy()

	var reason string
	switch policy.Mode {
	case vo.PolicyTable:
		p, ok := r.store.Profile(imsi)
		switch {
		case !ok:
			reason = "not in subscriber table"
		case !p.Active:
			reason = "subscriber inactive"
		default:
			return p, nil
		}
	case vo.PolicyPattern:
		if policy.Accepts(imsi) {
			return nil, nil
		}
		reason = "identity does not match accept patterns"
	default:
		reason = "registration policy unconfigured"
	}

	count := r.store.RecordRejection(imsi)
	r.logger.Warnw("registration rejected",
		"imsi", imsi,
		"reason", reason,
		"rejections", count,
	)
	return nil, errors.NewNotAllowedError("registration not allowed", reason)
}

func (r *Resolver) assignNumber(imsi, requested string, profile *subscriber.Profile, prev *subscriber.Registered, settings Settings) (string, error) {
	if prev != nil && prev.Number != "" {
		return prev.Number, nil
	}
	if requested != "" {
		if !r.store.NumberInUse(requested, imsi) {
			return requested, nil
		}
		r.logger.Debugw("requested number taken", "imsi", imsi, "number", requested)
	}
	if profile != nil && profile.Number != "" && !r.store.NumberInUse(profile.Number, imsi) {
		return profile.Number, nil
	}

	if derived := trailingDigits(imsi, settings.NumberLength); derived != "" {
		number := settings.CountryCode + derived
		if !r.store.NumberInUse(number, imsi) {
			return number, nil
		}
	}

	for i := 0; i < maxCandidateAttempts; i++ {
		digits, pattern := r.candidates.Next(settings.NumberLength)
		if digits == "" {
			break
		}
		number := settings.CountryCode + digits
		if !r.store.NumberInUse(number, imsi) {
			r.logger.Debugw("memorable number assigned", "imsi", imsi, "number", number, "pattern", pattern)
			return number, nil
		}
	}
	return "", errors.NewInternalError("no free number available", imsi)
}

func trailingDigits(imsi string, n int) string {
	if n <= 0 || len(imsi) < n {
		return ""
	}
	tail := imsi[len(imsi)-n:]
	for _, c := range tail {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return tail
}

// Unregister removes the registration named by imsi or, when empty, by tmsi.
func (r *Resolver) Unregister(ctx context.Context, imsi, tmsi string) (string, error) {
	imsi = strings.TrimSpace(imsi)
	if imsi == "" {
		reg, ok := r.store.RegisteredByTemporaryID(strings.ToUpper(strings.TrimSpace(tmsi)))
		if !ok {
			return "", errors.NewIdentityRequiredError("unknown temporary identity", tmsi)
		}
		imsi = reg.IMSI
	}

	if !r.store.Remove(ctx, imsi) {
		return "", errors.NewNotFoundError("subscriber not registered", imsi)
	}
	r.logger.Infow("subscriber unregistered", "imsi", imsi)
	return imsi, nil
}
