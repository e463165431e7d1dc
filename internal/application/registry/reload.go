package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/errors"
)

// ReloadReport lists what a reload changed.
type ReloadReport struct {
	Profiles    int      `json:"profiles"`
	Policy      string   `json:"policy"`
	Added       []string `json:"added,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	Deactivated []string `json:"deactivated,omitempty"`
	Renumbered  []string `json:"renumbered,omitempty"`
	ForcedOut   []string `json:"forced_out,omitempty"`
}

// Reload replaces the profile table and policy, then reconciles the current
// registrations against the difference. Sequence counters and auth state
// survive for profiles whose secret did not change. An invalid table leaves
// the store untouched.
func (s *Store) Reload(ctx context.Context, profiles []*subscriber.Profile, policy Policy) (*ReloadReport, error) {
	next := make(map[string]*subscriber.Profile, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, errors.NewConfigError("invalid subscriber profile", err.Error())
		}
		if _, dup := next[p.IMSI]; dup {
			return nil, errors.NewConfigError("duplicate subscriber profile", p.IMSI)
		}
		next[p.IMSI] = p.Clone()
	}

	report := &ReloadReport{Profiles: len(next), Policy: policy.Mode.String()}
	var renumbered []*subscriber.Registered

	s.mu.Lock()
	for imsi, p := range next {
		old, ok := s.profiles[imsi]
		if !ok {
			report.Added = append(report.Added, imsi)
			p.ResetAuth()
			continue
		}
		if old.SameSecret(p) {
			if old.Sequence != "" {
				p.Sequence = old.Sequence
			}
			p.Auth = old.Auth
		} else {
			p.ResetAuth()
		}
	}

	for imsi, old := range s.profiles {
		p, ok := next[imsi]
		switch {
		case !ok:
			report.Removed = append(report.Removed, imsi)
		case old.Active && !p.Active:
			report.Deactivated = append(report.Deactivated, imsi)
		default:
			if reg, registered := s.registered[imsi]; registered && p.Number != "" && p.Number != reg.Number {
				reg.Number = p.Number
				renumbered = append(renumbered, reg.Clone())
				report.Renumbered = append(report.Renumbered, imsi)
			}
			continue
		}
		if reg, registered := s.registered[imsi]; registered && reg.Online() {
			delete(s.registered, imsi)
			report.ForcedOut = append(report.ForcedOut, imsi)
		}
	}

	s.profiles = next
	s.policy = policy
	s.mu.Unlock()

	for _, imsi := range report.ForcedOut {
		s.write(ctx, shared.SectionRegistered, imsi, func(ctx context.Context) error {
			return s.sections.Delete(ctx, shared.SectionRegistered, imsi)
		})
	}
	for _, reg := range renumbered {
		s.persistRegistered(ctx, reg)
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	sort.Strings(report.Deactivated)
	sort.Strings(report.Renumbered)
	sort.Strings(report.ForcedOut)

	s.logger.Infow("subscriber table reloaded",
		"profiles", report.Profiles,
		"policy", report.Policy,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"deactivated", len(report.Deactivated),
		"renumbered", len(report.Renumbered),
		"forced_out", len(report.ForcedOut),
	)
	return report, nil
}

// SetPolicy replaces the policy without touching the table. Used to fall back
// to the unconfigured policy when configuration is broken.
func (s *Store) SetPolicy(policy Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

// Restore loads persisted registrations and sequence counters. Profiles must
// already be loaded for their counters to be applied.
func (s *Store) Restore(ctx context.Context) error {
	if s.sections == nil {
		return nil
	}

	entries, err := s.sections.Load(ctx, shared.SectionRegistered)
	if err != nil {
		return fmt.Errorf("failed to load registrations: %w", err)
	}
	sequences, err := s.sections.Load(ctx, shared.SectionSequence)
	if err != nil {
		return fmt.Errorf("failed to load sequence counters: %w", err)
	}

	restored := 0
	s.mu.Lock()
	for imsi, raw := range entries {
		var reg subscriber.Registered
		if err := json.Unmarshal([]byte(raw), &reg); err != nil {
			s.logger.Warnw("skipping unreadable registration", "imsi", imsi, "error", err)
			continue
		}
		reg.IMSI = imsi
		if err := reg.Validate(); err != nil {
			s.logger.Warnw("skipping invalid registration", "imsi", imsi, "error", err)
			continue
		}
		s.registered[imsi] = &reg
		restored++
	}

	counters := 0
	for imsi, seq := range sequences {
		if p, ok := s.profiles[imsi]; ok && p.Algorithm.HasSequence() {
			p.Sequence = seq
			counters++
		}
	}
	s.mu.Unlock()

	s.logger.Infow("registry state restored",
		"registrations", restored,
		"sequence_counters", counters,
	)
	return nil
}
