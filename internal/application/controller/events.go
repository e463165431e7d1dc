package controller

import (
	"encoding/json"
	"time"

	"github.com/orris-inc/cellcore/internal/application/auth"
	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/shared/errors"
)

// Event types accepted on the bus.
const (
	EventRegister     = "register"
	EventUnregister   = "unregister"
	EventAuthenticate = "authenticate"
	EventRouteCall    = "route-call"
	EventRouteSMS     = "route-sms"
	EventDeliverSMS   = "deliver-sms"
	EventTick         = "tick"
	EventReload       = "reload"
)

// EventTypes lists every type in subscription order.
var EventTypes = []string{
	EventRegister,
	EventUnregister,
	EventAuthenticate,
	EventRouteCall,
	EventRouteSMS,
	EventDeliverSMS,
	EventTick,
	EventReload,
}

type RegisterEvent struct {
	events.BaseEvent
	registration.Request
}

type UnregisterEvent struct {
	events.BaseEvent
	IMSI string `json:"imsi,omitempty"`
	TMSI string `json:"tmsi,omitempty"`
}

type AuthenticateEvent struct {
	events.BaseEvent
	auth.Request
}

// RouteEvent carries both route-call and route-sms.
type RouteEvent struct {
	events.BaseEvent
	routing.Request
}

type DeliverSMSEvent struct {
	events.BaseEvent
	smsqueue.Submission
}

type TickEvent struct {
	events.BaseEvent
}

type ReloadEvent struct {
	events.BaseEvent
}

func NewTickEvent(now time.Time) *TickEvent {
	return &TickEvent{BaseEvent: events.NewBaseEvent(EventTick, "", now)}
}

func NewReloadEvent(now time.Time) *ReloadEvent {
	return &ReloadEvent{BaseEvent: events.NewBaseEvent(EventReload, "", now)}
}

// DecodeEvent builds a bus event from a transport payload. An empty payload
// is accepted for events without fields.
func DecodeEvent(eventType string, data []byte, now time.Time) (events.DomainEvent, error) {
	var (
		target    any
		aggregate func() string
		stamp     func(events.BaseEvent)
	)

	switch eventType {
	case EventRegister:
		e := &RegisterEvent{}
		target, aggregate, stamp = e, func() string { return e.Request.IMSI }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventUnregister:
		e := &UnregisterEvent{}
		target, aggregate, stamp = e, func() string { return e.IMSI }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventAuthenticate:
		e := &AuthenticateEvent{}
		target, aggregate, stamp = e, func() string { return e.Request.IMSI }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventRouteCall, EventRouteSMS:
		e := &RouteEvent{}
		target, aggregate, stamp = e, func() string { return e.Caller }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventDeliverSMS:
		e := &DeliverSMSEvent{}
		target, aggregate, stamp = e, func() string { return e.SenderIMSI }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventTick:
		e := &TickEvent{}
		target, aggregate, stamp = e, func() string { return "" }, func(b events.BaseEvent) { e.BaseEvent = b }
	case EventReload:
		e := &ReloadEvent{}
		target, aggregate, stamp = e, func() string { return "" }, func(b events.BaseEvent) { e.BaseEvent = b }
	default:
		return nil, errors.NewValidationError("unknown event type", eventType)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, target); err != nil {
			return nil, errors.NewValidationError("invalid event payload", err.Error())
		}
	}
	stamp(events.NewBaseEvent(eventType, aggregate(), now))
	return target.(events.DomainEvent), nil
}
