package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/goroutine"
)

const (
	alarmKeyReload    = "reload"
	alarmKeyPolicy    = "policy"
	alarmKeyPartition = "partition"
	alarmKeyTick      = "tick"
)

// Snapshot is everything a reload re-reads.
type Snapshot struct {
	Profiles       []*subscriber.Profile
	PolicyMode     string
	AcceptPatterns []string
	NodeBits       int
	NodeValue      int
	Registration   registration.Settings
	Routing        routing.Settings
	Queue          smsqueue.Settings
}

// ConfigSource produces a fresh snapshot of the reloadable configuration.
type ConfigSource interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Reload re-reads configuration and reconciles the store. Configuration
// errors raise a standing alarm and leave the store rejecting everything.
func (c *Controller) Reload(ctx context.Context) (*registry.ReloadReport, error) {
	snap, err := c.source.Load(ctx)
	if err != nil {
		c.degrade(alarmKeyReload, "configuration could not be loaded", err)
		return nil, err
	}
	c.alarms.Clear(alarm.KindConfig, alarmKeyReload)

	policy, err := registry.NewPolicy(snap.PolicyMode, snap.AcceptPatterns, len(snap.Profiles) > 0)
	if err != nil {
		c.alarms.RaiseStanding(alarm.KindConfig, alarmKeyPolicy, "registration policy misconfigured", "error", err)
		policy = registry.Unconfigured(err.Error())
	} else {
		c.alarms.Clear(alarm.KindConfig, alarmKeyPolicy)
	}

	if err := c.Allocator.Configure(snap.NodeBits, snap.NodeValue); err != nil {
		c.alarms.RaiseStanding(alarm.KindConfig, alarmKeyPartition, "node partition misconfigured, keeping previous", "error", err)
	} else {
		c.alarms.Clear(alarm.KindConfig, alarmKeyPartition)
	}

	report, err := c.Store.Reload(ctx, snap.Profiles, policy)
	if err != nil {
		c.degrade(alarmKeyReload, "subscriber table rejected", err)
		return nil, err
	}

	c.Registration.Configure(snap.Registration)
	c.Routing.Configure(snap.Routing)
	c.Queue.Configure(snap.Queue)
	c.retimeTick(snap.Queue.TickInterval)

	return report, nil
}

// retimeTick runs off the bus goroutine: the scheduler may be waiting on a
// tick that is queued behind this reload.
func (c *Controller) retimeTick(interval time.Duration) {
	if c.Ticker == nil || interval <= 0 {
		return
	}
	goroutine.SafeGo(c.logger, "tick-reschedule", func() {
		if err := c.Ticker.Reschedule(interval); err != nil {
			c.alarms.Raise(alarm.KindConfig, alarmKeyTick, "tick interval could not be applied", "error", err)
			return
		}
		c.alarms.Clear(alarm.KindConfig, alarmKeyTick)
	})
}

func (c *Controller) degrade(key, message string, err error) {
	c.alarms.RaiseStanding(alarm.KindConfig, key, message, "error", err)
	c.Store.SetPolicy(registry.Unconfigured(err.Error()))
}

// Start loads configuration and restores persisted state. It runs before the
// bus starts, so no handler can observe a half-restored store.
func (c *Controller) Start(ctx context.Context) error {
	if _, err := c.Reload(ctx); err != nil {
		c.logger.Errorw("initial configuration load failed, rejecting registrations", "error", err)
	}

	if err := c.Store.Restore(ctx); err != nil {
		c.alarms.Raise(alarm.KindPersistence, "restore", "failed to restore registrations", "error", err)
	}
	if err := c.Allocator.Load(ctx); err != nil {
		c.alarms.Raise(alarm.KindPersistence, "restore", "failed to restore tmsi counter", "error", err)
	}

	c.logger.Infow("controller started",
		"profiles", len(c.Store.Profiles()),
		"registrations", len(c.Store.RegisteredList()),
		"policy", c.Store.Policy().Mode,
	)
	return nil
}

// String is used in logs.
func (s *Snapshot) String() string {
	return fmt.Sprintf("profiles=%d policy=%q patterns=%d", len(s.Profiles), s.PolicyMode, len(s.AcceptPatterns))
}
