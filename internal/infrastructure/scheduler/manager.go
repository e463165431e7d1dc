// Package scheduler drives the periodic queue tick using gocron v2.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/cellcore/internal/application/controller"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

const minTickTimeout = 5 * time.Second

// SchedulerManager owns the gocron scheduler.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	tickMu       sync.Mutex
	tickJob      gocron.Job
	tickInterval time.Duration
	tickBus      events.EventPublisher

	// Track whether the scheduler has been started
	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a new SchedulerManager instance.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// RegisterTickJob publishes a tick event on the bus every interval. Singleton
// mode keeps ticks from overlapping when a delivery attempt runs long.
func (m *SchedulerManager) RegisterTickJob(interval time.Duration, bus events.EventPublisher) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", interval)
	}

	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.tickJob != nil {
		return fmt.Errorf("tick job already registered")
	}

	job, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		m.tickTask(interval, bus),
		tickJobOptions()...,
	)
	if err != nil {
		return err
	}
	m.tickJob = job
	m.tickInterval = interval
	m.tickBus = bus

	m.logger.Infow("registered queue tick job", "interval", interval)
	return nil
}

// Reschedule replaces the interval of the tick job. An unchanged interval
// is a no-op.
func (m *SchedulerManager) Reschedule(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", interval)
	}

	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.tickJob == nil {
		return fmt.Errorf("tick job not registered")
	}
	if interval == m.tickInterval {
		return nil
	}

	job, err := m.scheduler.Update(
		m.tickJob.ID(),
		gocron.DurationJob(interval),
		m.tickTask(interval, m.tickBus),
		tickJobOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule tick job: %w", err)
	}

	m.logger.Infow("rescheduled queue tick job", "from", m.tickInterval, "to", interval)
	m.tickJob = job
	m.tickInterval = interval
	return nil
}

// TickInterval returns the interval the tick job currently runs at.
func (m *SchedulerManager) TickInterval() time.Duration {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.tickInterval
}

func (m *SchedulerManager) tickTask(interval time.Duration, bus events.EventPublisher) gocron.Task {
	timeout := max(interval, minTickTimeout)
	return gocron.NewTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		m.tick(ctx, bus)
	})
}

func tickJobOptions() []gocron.JobOption {
	return []gocron.JobOption{
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("queue", "tick"),
		gocron.WithName("queue-tick"),
	}
}

func (m *SchedulerManager) tick(ctx context.Context, bus events.EventPublisher) {
	reply, err := bus.Dispatch(ctx, controller.NewTickEvent(biztime.NowUTC()))
	if err != nil {
		m.logger.Errorw("queue tick failed", "error", err)
		return
	}

	report, ok := reply.(smsqueue.TickReport)
	if !ok || (report.Outcome == smsqueue.TickIdle && len(report.Swept) == 0) {
		return
	}
	m.logger.Debugw("queue tick",
		"outcome", report.Outcome,
		"message_id", report.MessageID,
		"swept", len(report.Swept),
		"pending", report.Pending,
	)
}

// Start starts the scheduler.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop gracefully stops the scheduler.
// It waits for all running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
