// Package controller binds the core components to the event bus.
//
// Every handler runs on the bus goroutine, so handlers for the same
// subscriber never interleave.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/orris-inc/cellcore/internal/application/auth"
	"github.com/orris-inc/cellcore/internal/application/identity"
	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// Components groups what the controller drives.
type Components struct {
	Store        *registry.Store
	Allocator    *identity.Allocator
	Auth         *auth.Engine
	Registration *registration.Resolver
	Routing      *routing.Resolver
	Queue        *smsqueue.Queue
	// Ticker is optional; when set, reloads re-time the periodic tick.
	Ticker TickScheduler
}

// TickScheduler re-times the job that publishes tick events.
type TickScheduler interface {
	Reschedule(interval time.Duration) error
}

type Controller struct {
	Components
	source ConfigSource
	alarms *alarm.Board
	logger logger.Interface
}

func New(components Components, source ConfigSource, alarms *alarm.Board, log logger.Interface) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	if alarms == nil {
		alarms = alarm.NewBoard(log)
	}
	return &Controller{
		Components: components,
		source:     source,
		alarms:     alarms,
		logger:     log,
	}
}

// Subscribe registers one handler per event type.
func (c *Controller) Subscribe(bus events.EventSubscriber) error {
	handlers := map[string]func(context.Context, events.DomainEvent) (any, error){
		EventRegister:     c.handleRegister,
		EventUnregister:   c.handleUnregister,
		EventAuthenticate: c.handleAuthenticate,
		EventRouteCall:    c.handleRoute,
		EventRouteSMS:     c.handleRoute,
		EventDeliverSMS:   c.handleDeliverSMS,
		EventTick:         c.handleTick,
		EventReload:       c.handleReload,
	}

	for _, eventType := range EventTypes {
		if err := bus.Subscribe(eventType, events.NewSimpleEventHandler(eventType, handlers[eventType])); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", eventType, err)
		}
	}
	return nil
}

func unexpected(event events.DomainEvent) error {
	return errors.NewInternalError("unexpected event payload", fmt.Sprintf("%s: %T", event.GetEventType(), event))
}

func (c *Controller) handleRegister(ctx context.Context, event events.DomainEvent) (any, error) {
	e, ok := event.(*RegisterEvent)
	if !ok {
		return nil, unexpected(event)
	}
	return c.Registration.Register(ctx, e.Request)
}

func (c *Controller) handleUnregister(ctx context.Context, event events.DomainEvent) (any, error) {
	e, ok := event.(*UnregisterEvent)
	if !ok {
		return nil, unexpected(event)
	}
	imsi, err := c.Registration.Unregister(ctx, e.IMSI, e.TMSI)
	if err != nil {
		return nil, err
	}
	return map[string]string{"imsi": imsi}, nil
}

func (c *Controller) handleAuthenticate(ctx context.Context, event events.DomainEvent) (any, error) {
	e, ok := event.(*AuthenticateEvent)
	if !ok {
		return nil, unexpected(event)
	}
	res, err := c.Auth.Authenticate(ctx, e.Request)
	if err != nil {
		return nil, err
	}
	if res.Phase == vo.AuthPhaseFailed {
		return res, errors.NewAuthFailedError("authentication failed", e.Request.IMSI)
	}
	return res, nil
}

func (c *Controller) handleRoute(ctx context.Context, event events.DomainEvent) (any, error) {
	e, ok := event.(*RouteEvent)
	if !ok {
		return nil, unexpected(event)
	}

	var route *routing.Route
	if e.GetEventType() == EventRouteSMS {
		route = c.Routing.RouteSMS(e.Request)
	} else {
		route = c.Routing.RouteCall(e.Request)
	}

	if route.Outcome == routing.OutcomeUnavailable {
		return route, errors.NewUnavailableError("service unavailable", e.Destination)
	}
	return route, nil
}

func (c *Controller) handleDeliverSMS(ctx context.Context, event events.DomainEvent) (any, error) {
	e, ok := event.(*DeliverSMSEvent)
	if !ok {
		return nil, unexpected(event)
	}
	m, _, err := c.Queue.Enqueue(ctx, e.Submission)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Controller) handleTick(ctx context.Context, _ events.DomainEvent) (any, error) {
	return c.Queue.Tick(ctx), nil
}

func (c *Controller) handleReload(ctx context.Context, _ events.DomainEvent) (any, error) {
	return c.Reload(ctx)
}
