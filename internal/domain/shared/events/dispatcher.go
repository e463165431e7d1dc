package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orris-inc/cellcore/internal/shared/goroutine"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

var (
	ErrNotRunning = errors.New("event dispatcher is not running")
	ErrQueueFull  = errors.New("event channel is full")
	ErrNoHandler  = errors.New("no handler for event")
)

type envelope struct {
	ctx   context.Context
	event DomainEvent
	reply chan result
}

type result struct {
	value any
	err   error
}

// InMemoryEventDispatcher runs every handler on a single goroutine, one event
// at a time, so handlers never observe each other's partial updates.
type InMemoryEventDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	eventCh  chan envelope
	wg       sync.WaitGroup
	logger   logger.Interface
}

// NewInMemoryEventDispatcher creates a new in-memory event dispatcher
func NewInMemoryEventDispatcher(bufferSize int, log logger.Interface) *InMemoryEventDispatcher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &InMemoryEventDispatcher{
		handlers: make(map[string][]EventHandler),
		stopCh:   make(chan struct{}),
		eventCh:  make(chan envelope, bufferSize),
		logger:   log,
	}
}

func (d *InMemoryEventDispatcher) isRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Publish queues an event; its reply is logged on error and otherwise discarded.
func (d *InMemoryEventDispatcher) Publish(event DomainEvent) error {
	if !d.isRunning() {
		return ErrNotRunning
	}

	select {
	case d.eventCh <- envelope{ctx: context.Background(), event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dispatch queues an event and blocks until its handlers have run or ctx ends.
func (d *InMemoryEventDispatcher) Dispatch(ctx context.Context, event DomainEvent) (any, error) {
	if !d.isRunning() {
		return nil, ErrNotRunning
	}

	reply := make(chan result, 1)
	select {
	case d.eventCh <- envelope{ctx: ctx, event: event, reply: reply}:
	case <-d.stopCh:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-d.stopCh:
		// the drain may still have answered before the loop exited
		d.wg.Wait()
		select {
		case r := <-reply:
			return r.value, r.err
		default:
			return nil, ErrNotRunning
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a handler for specific event types
func (d *InMemoryEventDispatcher) Subscribe(eventType string, handler EventHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.handlers[eventType] = append(d.handlers[eventType], handler)
	return nil
}

// Start starts the event dispatcher
func (d *InMemoryEventDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("event dispatcher is already running")
	}

	d.running = true
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		d.processEvents()
	}()

	return nil
}

// Stop drains queued events and stops the dispatcher
func (d *InMemoryEventDispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}

	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()

	return nil
}

func (d *InMemoryEventDispatcher) processEvents() {
	for {
		select {
		case <-d.stopCh:
			for {
				select {
				case env := <-d.eventCh:
					d.handleEvent(env)
				default:
					return
				}
			}
		case env := <-d.eventCh:
			d.handleEvent(env)
		}
	}
}

// handleEvent runs the handlers in subscription order. The reply is the value
// of the last handler; the first error stops the chain.
func (d *InMemoryEventDispatcher) handleEvent(env envelope) {
	eventType := env.event.GetEventType()

	d.mu.RLock()
	handlers := d.handlers[eventType]
	d.mu.RUnlock()

	var res result
	ran := false
	for _, handler := range handlers {
		if !handler.CanHandle(eventType) {
			continue
		}
		ran = true
		res.err = goroutine.Run(d.logger, "event:"+eventType, func() error {
			v, err := handler.Handle(env.ctx, env.event)
			res.value = v
			return err
		})
		if res.err != nil {
			break
		}
	}
	if !ran {
		res.err = fmt.Errorf("%w: %s", ErrNoHandler, eventType)
	}

	if env.reply != nil {
		env.reply <- res
		return
	}
	if res.err != nil {
		d.logger.Warnw("published event failed",
			"event_type", eventType,
			"aggregate_id", env.event.GetAggregateID(),
			"error", res.err,
		)
	}
}

// SimpleEventHandler adapts a function to EventHandler
type SimpleEventHandler struct {
	eventType string
	handler   func(context.Context, DomainEvent) (any, error)
}

// NewSimpleEventHandler creates a new simple event handler
func NewSimpleEventHandler(eventType string, handler func(context.Context, DomainEvent) (any, error)) *SimpleEventHandler {
	return &SimpleEventHandler{
		eventType: eventType,
		handler:   handler,
	}
}

// Handle processes a domain event
func (h *SimpleEventHandler) Handle(ctx context.Context, event DomainEvent) (any, error) {
	if h.handler != nil {
		return h.handler(ctx, event)
	}
	return nil, nil
}

// CanHandle checks if this handler can handle the given event type
func (h *SimpleEventHandler) CanHandle(eventType string) bool {
	return h.eventType == eventType
}
