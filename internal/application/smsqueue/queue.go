// Package smsqueue is the store-and-forward queue for local short messages.
//
// A periodic tick attempts at most one due message. An offline destination
// defers the message without using an attempt; a failed placement uses one
// and backs off; a message with no attempts left is dropped.
package smsqueue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// NumberPlaceholder in the welcome text is replaced with the assigned number.
const NumberPlaceholder = "{number}"

const defaultPlaceTimeout = 10 * time.Second

// Settings are re-applied on every configuration reload.
type Settings struct {
	TickInterval    time.Duration
	AttemptBudget   int
	OfflineCooldown time.Duration
	RetryBackoff    time.Duration
	SweepEvery      time.Duration
	PlaceTimeout    time.Duration
	WelcomeSender   string
	WelcomeText     string
}

// Registrations is the part of the registry the queue needs.
type Registrations interface {
	Registered(imsi string) (*subscriber.Registered, bool)
	Profile(imsi string) (*subscriber.Profile, bool)
	Sweep(ctx context.Context, now time.Time) []string
}

// Router resolves message destinations at enqueue time.
type Router interface {
	RouteSMS(req routing.Request) *routing.Route
}

// Submission is a message offered for delivery.
type Submission struct {
	SenderIMSI     string `json:"sender_imsi"`
	SenderNumber   string `json:"sender_number,omitempty"`
	SenderEndpoint string `json:"sender_endpoint,omitempty"`
	Destination    string `json:"destination"`
	Payload        string `json:"payload"`
}

// TickOutcome describes what a tick did with the message it picked.
type TickOutcome string

const (
	TickIdle      TickOutcome = "idle"
	TickDeferred  TickOutcome = "deferred"
	TickDelivered TickOutcome = "delivered"
	TickRetry     TickOutcome = "retry"
	TickDropped   TickOutcome = "dropped"
)

// TickReport summarizes one tick.
type TickReport struct {
	Outcome   TickOutcome `json:"outcome"`
	MessageID string      `json:"message_id,omitempty"`
	Swept     []string    `json:"swept,omitempty"`
	Pending   int         `json:"pending"`
}

type Queue struct {
	mu       sync.Mutex
	pending  []*message.PendingMessage
	settings Settings

	registrations Registrations
	router        Router
	placer        message.Placer
	now           biztime.Clock
	logger        logger.Interface
}

func NewQueue(registrations Registrations, router Router, placer message.Placer, settings Settings, log logger.Interface) *Queue {
	if log == nil {
		log = logger.NewNop()
	}
	return &Queue{
		settings:      settings,
		registrations: registrations,
		router:        router,
		placer:        placer,
		now:           biztime.NowUTC,
		logger:        log,
	}
}

// WithClock replaces the queue clock.
func (q *Queue) WithClock(clock biztime.Clock) *Queue {
	q.now = clock.OrDefault()
	return q
}

// Configure replaces the queue settings. Queued messages keep their budgets.
func (q *Queue) Configure(settings Settings) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settings = settings
}

func (q *Queue) current() Settings {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settings
}

// Enqueue accepts a message for a local subscriber. Destinations outside the
// network are refused with an unavailable error.
func (q *Queue) Enqueue(ctx context.Context, sub Submission) (*message.PendingMessage, *routing.Route, error) {
	if strings.TrimSpace(sub.Destination) == "" {
		return nil, nil, errors.NewValidationError("destination is required")
	}

	route := q.router.RouteSMS(routing.Request{Caller: sub.SenderIMSI, Destination: sub.Destination})
	if route.Outcome != routing.OutcomeLocal && route.Outcome != routing.OutcomeOffline {
		return nil, route, errors.NewUnavailableError("destination not served by this network", sub.Destination)
	}

	senderNumber := sub.SenderNumber
	if senderNumber == "" && sub.SenderIMSI != "" {
		if reg, ok := q.registrations.Registered(sub.SenderIMSI); ok {
			senderNumber = reg.Number
		}
		if senderNumber == "" {
			if p, ok := q.registrations.Profile(sub.SenderIMSI); ok {
				senderNumber = p.Number
			}
		}
	}

	m, err := q.add(sub.SenderIMSI, senderNumber, sub.SenderEndpoint, route.IMSI, route.Number, sub.Payload)
	if err != nil {
		return nil, route, err
	}
	return m, route, nil
}

// EnqueueWelcome queues the welcome text for a newly numbered subscriber. It
// does nothing when no welcome text is configured.
func (q *Queue) EnqueueWelcome(ctx context.Context, imsi, number string) error {
	settings := q.current()
	if settings.WelcomeText == "" {
		return nil
	}
	text := strings.ReplaceAll(settings.WelcomeText, NumberPlaceholder, number)
	_, err := q.add("", settings.WelcomeSender, "", imsi, number, text)
	return err
}

func (q *Queue) add(senderIMSI, senderNumber, senderEndpoint, destIMSI, destNumber, payload string) (*message.PendingMessage, error) {
	now := q.now()

	q.mu.Lock()
	m, err := message.NewPendingMessage(senderIMSI, senderNumber, senderEndpoint, destIMSI, destNumber, payload, q.settings.AttemptBudget, now)
	if err != nil {
		q.mu.Unlock()
		return nil, errors.NewValidationError("message rejected", err.Error())
	}
	q.pending = append(q.pending, m)
	size := len(q.pending)
	q.mu.Unlock()

	q.logger.Infow("message queued",
		"message_id", m.ID,
		"dest_imsi", destIMSI,
		"dest_number", destNumber,
		"pending", size,
	)
	copied := *m
	return &copied, nil
}

// List returns copies of the queued messages in queue order.
func (q *Queue) List() []*message.PendingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*message.PendingMessage, len(q.pending))
	for i, m := range q.pending {
		c := *m
		out[i] = &c
	}
	return out
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Tick attempts at most one due message and sweeps expired registrations
// when the clock falls in the sweep window.
func (q *Queue) Tick(ctx context.Context) TickReport {
	now := q.now()
	settings := q.current()

	report := q.attempt(ctx, now, settings)

	if inSweepWindow(now, settings.SweepEvery, settings.TickInterval) {
		report.Swept = q.registrations.Sweep(ctx, now)
	}
	report.Pending = q.Len()
	return report
}

func (q *Queue) attempt(ctx context.Context, now time.Time, settings Settings) TickReport {
	m := q.nextDue(now)
	if m == nil {
		return TickReport{Outcome: TickIdle}
	}
	report := TickReport{MessageID: m.ID}

	reg, ok := q.registrations.Registered(m.DestIMSI)
	if !ok || !reg.Online() {
		q.update(m.ID, func(pm *message.PendingMessage) bool {
			pm.Defer(now, settings.OfflineCooldown)
			return true
		})
		q.logger.Debugw("destination offline, message deferred", "message_id", m.ID, "dest_imsi", m.DestIMSI)
		report.Outcome = TickDeferred
		return report
	}

	timeout := settings.PlaceTimeout
	if timeout <= 0 {
		timeout = defaultPlaceTimeout
	}
	placeCtx, cancel := context.WithTimeout(ctx, timeout)
	delivered, err := q.placer.PlaceMessage(placeCtx, m.DeliveryTo(reg.Location))
	cancel()

	if err == nil && delivered {
		q.update(m.ID, func(*message.PendingMessage) bool { return false })
		q.logger.Infow("message delivered", "message_id", m.ID, "dest_imsi", m.DestIMSI)
		report.Outcome = TickDelivered
		return report
	}

	report.Outcome = TickRetry
	q.update(m.ID, func(pm *message.PendingMessage) bool {
		if pm.Fail(now, settings.RetryBackoff) {
			return true
		}
		report.Outcome = TickDropped
		return false
	})

	if report.Outcome == TickDropped {
		q.logger.Warnw("message dropped after exhausting attempts",
			"message_id", m.ID,
			"dest_imsi", m.DestIMSI,
			"dest_number", m.DestNumber,
			"error", err,
		)
	} else {
		q.logger.Infow("message delivery failed, will retry",
			"message_id", m.ID,
			"dest_imsi", m.DestIMSI,
			"error", err,
		)
	}
	return report
}

// nextDue returns a copy of the due message with the earliest next attempt.
func (q *Queue) nextDue(now time.Time) *message.PendingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*message.PendingMessage
	for _, m := range q.pending {
		if m.Due(now) {
			due = append(due, m)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttempt.Before(due[j].NextAttempt) })
	c := *due[0]
	return &c
}

// update applies fn to the queued message with id; fn returning false removes it.
func (q *Queue) update(id string, fn func(*message.PendingMessage) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.pending {
		if m.ID != id {
			continue
		}
		if !fn(m) {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
		}
		return
	}
}

// inSweepWindow reports whether now.Unix() mod every falls within one tick.
func inSweepWindow(now time.Time, every, tick time.Duration) bool {
	period := int64(every / time.Second)
	if period <= 0 {
		return false
	}
	window := int64(tick / time.Second)
	if window < 1 {
		window = 1
	}
	return now.Unix()%period < window
}
