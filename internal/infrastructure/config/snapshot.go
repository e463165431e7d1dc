package config

import (
	"context"

	"github.com/orris-inc/cellcore/internal/application/controller"
	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
)

// SnapshotSource re-reads the config file and the subscriber table on every load.
type SnapshotSource struct {
	env  string
	file string
}

func NewSnapshotSource(env, file string) *SnapshotSource {
	return &SnapshotSource{env: env, file: file}
}

func (s *SnapshotSource) Load(ctx context.Context) (*controller.Snapshot, error) {
	cfg, err := Load(s.env, s.file)
	if err != nil {
		return nil, err
	}
	profiles, err := LoadSubscribers(cfg.Registry.SubscribersFile)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(cfg, profiles), nil
}

// BuildSnapshot maps the loaded configuration onto the reloadable settings.
func BuildSnapshot(cfg *Config, profiles []*subscriber.Profile) *controller.Snapshot {
	reg := cfg.Registry
	return &controller.Snapshot{
		Profiles:       profiles,
		PolicyMode:     reg.Policy,
		AcceptPatterns: reg.AcceptPatterns,
		NodeBits:       reg.NodeBits,
		NodeValue:      reg.NodeValue,
		Registration: registration.Settings{
			TTL:          reg.RegistrationTTL,
			NumberLength: reg.NumberLength,
			CountryCode:  reg.CountryCode,
		},
		Routing: routing.Settings{
			EmergencyCode:       reg.EmergencyCode,
			EmergencyTarget:     reg.EmergencyTarget,
			ConferenceCode:      reg.ConferenceCode,
			ConferenceTarget:    reg.ConferenceTarget,
			OutboundTarget:      reg.OutboundTarget,
			InternationalPrefix: reg.InternationalPrefix,
			MinMatchDigits:      reg.MinMatchDigits,
		},
		Queue: smsqueue.Settings{
			TickInterval:    cfg.Queue.TickInterval,
			AttemptBudget:   cfg.Queue.AttemptBudget,
			OfflineCooldown: cfg.Queue.OfflineCooldown,
			RetryBackoff:    cfg.Queue.RetryBackoff,
			SweepEvery:      cfg.Queue.SweepEvery,
			PlaceTimeout:    cfg.Gateway.Timeout,
			WelcomeSender:   reg.WelcomeSender,
			WelcomeText:     reg.WelcomeText,
		},
	}
}
