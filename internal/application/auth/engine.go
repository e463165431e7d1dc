// Package auth runs the challenge/response exchange with subscribers.
//
// The per-subscriber state lives on the profile in the registry:
// Idle -> Challenged -> {Verified | ReChallenged | Failed}. A mismatch or a
// resync report on a Challenged subscriber earns one new challenge
// (ReChallenged); failing that one is terminal.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

const (
	challengeBytes = 16

	defaultVectorTimeout = 5 * time.Second
)

// ProfileStore is the part of the registry the engine needs.
type ProfileStore interface {
	Profile(imsi string) (*subscriber.Profile, bool)
	SaveAuth(ctx context.Context, imsi string, state subscriber.AuthState, sequence string) error
}

// Request is one authentication step from a subscriber. An empty Response
// and Resync asks for a challenge.
type Request struct {
	IMSI     string `json:"imsi"`
	Response string `json:"response,omitempty"`
	Resync   string `json:"resync,omitempty"`
}

// Result is the outcome of one step. Challenge is set when Phase is
// Challenged or ReChallenged.
type Result struct {
	Phase     vo.AuthPhase `json:"phase"`
	Challenge string       `json:"challenge,omitempty"`
	AUTN      string       `json:"autn,omitempty"`
}

// Verified reports whether the subscriber proved its identity.
func (r *Result) Verified() bool {
	return r.Phase == vo.AuthPhaseVerified
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom replaces the challenge source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// WithVectorTimeout bounds each call to the vector service.
func WithVectorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

type Engine struct {
	store   ProfileStore
	vectors subscriber.VectorComputer
	random  io.Reader
	timeout time.Duration
	logger  logger.Interface
}

func NewEngine(store ProfileStore, vectors subscriber.VectorComputer, log logger.Interface, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		store:   store,
		vectors: vectors,
		random:  rand.Reader,
		timeout: defaultVectorTimeout,
		logger:  log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authenticate advances the exchange for one subscriber. State outcomes,
// Failed included, come back as a Result; errors are reserved for a missing
// profile or an unreachable vector service.
func (e *Engine) Authenticate(ctx context.Context, req Request) (*Result, error) {
	p, ok := e.store.Profile(req.IMSI)
	if !ok {
		return nil, errors.NewNotFoundError("subscriber profile not found", req.IMSI)
	}

	if !p.RequiresAuth() {
		return &Result{Phase: vo.AuthPhaseVerified}, nil
	}

	switch {
	case req.Resync == "" && req.Response == "":
		return e.challenge(ctx, p, vo.AuthPhaseChallenged, p.Sequence)

	case !p.Auth.Phase.Pending():
		e.logger.Debugw("answer without outstanding challenge", "imsi", p.IMSI)
		return e.challenge(ctx, p, vo.AuthPhaseChallenged, p.Sequence)

	case req.Resync == "" && e.matches(p, req.Response):
		if err := e.store.SaveAuth(ctx, p.IMSI, subscriber.AuthState{Phase: vo.AuthPhaseIdle}, p.Sequence); err != nil {
			return nil, err
		}
		e.logger.Infow("subscriber authenticated", "imsi", p.IMSI, "algorithm", p.Algorithm)
		return &Result{Phase: vo.AuthPhaseVerified}, nil
	}

	return e.fail(ctx, p, req.Resync)
}

func (e *Engine) matches(p *subscriber.Profile, response string) bool {
	got := strings.ToUpper(strings.TrimSpace(response))
	if p.Auth.Expected != "" && got == p.Auth.Expected {
		return true
	}
	return p.Algorithm == vo.AlgorithmMilenage && p.Auth.ExpectedExtended != "" && got == p.Auth.ExpectedExtended
}

// fail handles a mismatch or a resync report.
func (e *Engine) fail(ctx context.Context, p *subscriber.Profile, resync string) (*Result, error) {
	if p.Auth.Phase == vo.AuthPhaseReChallenged {
		if err := e.store.SaveAuth(ctx, p.IMSI, subscriber.AuthState{Phase: vo.AuthPhaseFailed}, p.Sequence); err != nil {
			return nil, err
		}
		e.logger.Warnw("authentication failed", "imsi", p.IMSI, "algorithm", p.Algorithm)
		return &Result{Phase: vo.AuthPhaseFailed}, nil
	}

	sequence := p.Sequence
	if resync != "" && p.Algorithm.HasSequence() {
		recovered, err := e.resync(ctx, p, resync)
		if err != nil {
			return nil, err
		}
		sequence = FormatSequence(AdvanceSequence(recovered, SequenceStep))
		e.logger.Infow("sequence resynchronized",
			"imsi", p.IMSI,
			"previous", p.Sequence,
			"sequence", sequence,
		)
	} else {
		e.logger.Warnw("authentication mismatch, challenging again", "imsi", p.IMSI)
	}

	return e.challenge(ctx, p, vo.AuthPhaseReChallenged, sequence)
}

func (e *Engine) resync(ctx context.Context, p *subscriber.Profile, auts string) (uint64, error) {
	req := e.vectorRequest(p, p.Auth.Challenge, p.Sequence)
	req.Resync = strings.ToUpper(auts)

	v, err := e.compute(ctx, req)
	if err != nil {
		return 0, err
	}
	recovered, err := ParseSequence(v.RecoveredSequence)
	if err != nil || v.RecoveredSequence == "" {
		return 0, errors.NewInternalError("vector service returned no usable sequence", p.IMSI)
	}
	return recovered, nil
}

// challenge issues a fresh challenge computed at sequence and stores the
// expected answers with the given phase.
func (e *Engine) challenge(ctx context.Context, p *subscriber.Profile, phase vo.AuthPhase, sequence string) (*Result, error) {
	raw := make([]byte, challengeBytes)
	if _, err := io.ReadFull(e.random, raw); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	challenge := strings.ToUpper(hex.EncodeToString(raw))

	if p.Algorithm.HasSequence() && sequence == "" {
		sequence = FormatSequence(0)
	}

	v, err := e.compute(ctx, e.vectorRequest(p, challenge, sequence))
	if err != nil {
		return nil, err
	}
	if v.Response == "" && v.ExtendedResponse == "" {
		return nil, errors.NewInternalError("vector service returned no expected response", p.IMSI)
	}

	state := subscriber.AuthState{
		Phase:            phase,
		Challenge:        challenge,
		Expected:         strings.ToUpper(v.Response),
		ExpectedExtended: strings.ToUpper(v.ExtendedResponse),
		AUTN:             strings.ToUpper(v.AUTN),
	}

	if p.Algorithm.HasSequence() {
		current, err := ParseSequence(sequence)
		if err != nil {
			e.logger.Warnw("resetting unreadable sequence", "imsi", p.IMSI, "sequence", sequence, "error", err)
		}
		sequence = FormatSequence(AdvanceSequence(current, SequenceStep))
	}

	if err := e.store.SaveAuth(ctx, p.IMSI, state, sequence); err != nil {
		return nil, err
	}

	e.logger.Debugw("challenge issued", "imsi", p.IMSI, "phase", phase, "algorithm", p.Algorithm)
	return &Result{Phase: phase, Challenge: challenge, AUTN: state.AUTN}, nil
}

func (e *Engine) vectorRequest(p *subscriber.Profile, challenge, sequence string) subscriber.VectorRequest {
	req := subscriber.VectorRequest{
		Algorithm: p.Algorithm,
		Key:       p.Secret.Key,
		Challenge: challenge,
	}
	if p.Algorithm == vo.AlgorithmMilenage {
		req.OP = p.Secret.OP
		req.AMF = p.Secret.AMF
		if req.AMF == "" {
			req.AMF = subscriber.DefaultAMF
		}
		req.Sequence = sequence
	}
	return req
}

func (e *Engine) compute(ctx context.Context, req subscriber.VectorRequest) (*subscriber.Vector, error) {
	if e.vectors == nil {
		return nil, errors.NewUnavailableError("vector service not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	v, err := e.vectors.ComputeVector(ctx, req)
	if err != nil {
		e.logger.Errorw("vector computation failed", "algorithm", req.Algorithm, "error", err)
		return nil, errors.NewUnavailableError("vector service unavailable", err.Error())
	}
	return v, nil
}
