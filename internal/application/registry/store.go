// Package registry is the subscriber store: configured profiles, current
// registrations and rejection counters. It is the only owner of that state;
// every accessor returns copies.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	profiles   map[string]*subscriber.Profile
	registered map[string]*subscriber.Registered
	rejections map[string]int
	policy     Policy

	sections shared.SectionStore
	alarms   *alarm.Board
	logger   logger.Interface
}

func NewStore(sections shared.SectionStore, alarms *alarm.Board, log logger.Interface) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	if alarms == nil {
		alarms = alarm.NewBoard(log)
	}
	return &Store{
		profiles:   make(map[string]*subscriber.Profile),
		registered: make(map[string]*subscriber.Registered),
		rejections: make(map[string]int),
		policy:     Unconfigured("not loaded"),
		sections:   sections,
		alarms:     alarms,
		logger:     log,
	}
}

// Policy returns the current registration policy.
func (s *Store) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Registered returns the registration of an identity.
func (s *Store) Registered(imsi string) (*subscriber.Registered, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registered[imsi]
	return r.Clone(), ok
}

// RegisteredByTemporaryID resolves a temporary identity.
func (s *Store) RegisteredByTemporaryID(tmsi string) (*subscriber.Registered, bool) {
	if tmsi == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.registered {
		if strings.EqualFold(r.TMSI, tmsi) {
			return r.Clone(), true
		}
	}
	return nil, false
}

// RegisteredList returns every registration ordered by identity.
func (s *Store) RegisteredList() []*subscriber.Registered {
	s.mu.RLock()
	out := make([]*subscriber.Registered, 0, len(s.registered))
	for _, r := range s.registered {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IMSI < out[j].IMSI })
	return out
}

// TemporaryIDInUse reports whether any registration holds tmsi.
func (s *Store) TemporaryIDInUse(tmsi string) bool {
	_, ok := s.RegisteredByTemporaryID(tmsi)
	return ok
}

// NumberInUse reports whether a current registration other than except holds
// number. Provisioned numbers are only held while their owner is registered.
func (s *Store) NumberInUse(number, except string) bool {
	if number == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for imsi, r := range s.registered {
		if imsi != except && r.Number == number {
			return true
		}
	}
	return false
}

// Profile returns the profile of an identity.
func (s *Store) Profile(imsi string) (*subscriber.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[imsi]
	return p.Clone(), ok
}

// ProfileByShortCode finds the profile owning a short code.
func (s *Store) ProfileByShortCode(code string) (*subscriber.Profile, bool) {
	if code == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ShortCode == code {
			return p.Clone(), true
		}
	}
	return nil, false
}

// Profiles returns every profile ordered by identity.
func (s *Store) Profiles() []*subscriber.Profile {
	s.mu.RLock()
	out := make([]*subscriber.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IMSI < out[j].IMSI })
	return out
}

// Upsert stores a registration. It reports false without writing anything
// when the stored entry is already field-by-field equal.
func (s *Store) Upsert(ctx context.Context, reg *subscriber.Registered) (bool, error) {
	if err := reg.Validate(); err != nil {
		return false, errors.NewValidationError("invalid registration", err.Error())
	}

	s.mu.Lock()
	if existing, ok := s.registered[reg.IMSI]; ok && existing.Equal(reg) {
		s.mu.Unlock()
		return false, nil
	}
	s.registered[reg.IMSI] = reg.Clone()
	s.mu.Unlock()

	s.persistRegistered(ctx, reg)
	return true, nil
}

// Remove deletes a registration. It reports whether one existed.
func (s *Store) Remove(ctx context.Context, imsi string) bool {
	s.mu.Lock()
	_, ok := s.registered[imsi]
	delete(s.registered, imsi)
	s.mu.Unlock()

	if ok {
		s.write(ctx, shared.SectionRegistered, imsi, func(ctx context.Context) error {
			return s.sections.Delete(ctx, shared.SectionRegistered, imsi)
		})
	}
	return ok
}

// Sweep deletes every registration expired at now and returns their identities.
func (s *Store) Sweep(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	var expired []string
	for imsi, r := range s.registered {
		if r.Expired(now) {
			expired = append(expired, imsi)
			delete(s.registered, imsi)
		}
	}
	s.mu.Unlock()

	sort.Strings(expired)
	for _, imsi := range expired {
		s.write(ctx, shared.SectionRegistered, imsi, func(ctx context.Context) error {
			return s.sections.Delete(ctx, shared.SectionRegistered, imsi)
		})
	}
	if len(expired) > 0 {
		s.logger.Infow("expired registrations swept", "count", len(expired))
	}
	return expired
}

// RecordRejection counts a refused registration and returns the new count.
func (s *Store) RecordRejection(imsi string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[imsi]++
	return s.rejections[imsi]
}

// Rejections returns a copy of the rejection counters.
func (s *Store) Rejections() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.rejections))
	for k, v := range s.rejections {
		out[k] = v
	}
	return out
}

// SaveAuth records the auth state and sequence counter of a profile. The
// counter is persisted when it changed.
func (s *Store) SaveAuth(ctx context.Context, imsi string, state subscriber.AuthState, sequence string) error {
	s.mu.Lock()
	p, ok := s.profiles[imsi]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("profile not found", imsi)
	}
	p.Auth = state
	changed := p.Sequence != sequence
	p.Sequence = sequence
	s.mu.Unlock()

	if changed && sequence != "" {
		s.write(ctx, shared.SectionSequence, imsi, func(ctx context.Context) error {
			return s.sections.Set(ctx, shared.SectionSequence, imsi, sequence)
		})
	}
	return nil
}

func (s *Store) persistRegistered(ctx context.Context, reg *subscriber.Registered) {
	data, err := json.Marshal(reg)
	if err != nil {
		s.logger.Errorw("failed to encode registration", "imsi", reg.IMSI, "error", err)
		return
	}
	s.write(ctx, shared.SectionRegistered, reg.IMSI, func(ctx context.Context) error {
		return s.sections.Set(ctx, shared.SectionRegistered, reg.IMSI, string(data))
	})
}

// write runs one persistence call. Failures raise an alarm; memory stays authoritative.
func (s *Store) write(ctx context.Context, section, key string, fn func(context.Context) error) {
	if s.sections == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.alarms.Raise(alarm.KindPersistence, section, "persistence write failed",
			"section", section,
			"key", key,
			"error", err,
		)
		return
	}
	s.alarms.Clear(alarm.KindPersistence, section)
}
