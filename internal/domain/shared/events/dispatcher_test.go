package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/shared/logger"
)

type testEvent struct {
	BaseEvent
	Value int
}

func newTestEvent(eventType string, v int) *testEvent {
	return &testEvent{BaseEvent: NewBaseEvent(eventType, "", time.Now()), Value: v}
}

func startDispatcher(t *testing.T) *InMemoryEventDispatcher {
	t.Helper()
	d := NewInMemoryEventDispatcher(16, logger.NewNop())
	require.NoError(t, d.Start())
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDispatchReturnsReply(t *testing.T) {
	d := startDispatcher(t)
	require.NoError(t, d.Subscribe("double", NewSimpleEventHandler("double", func(_ context.Context, e DomainEvent) (any, error) {
		return e.(*testEvent).Value * 2, nil
	})))

	got, err := d.Dispatch(context.Background(), newTestEvent("double", 21))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDispatchWithoutHandler(t *testing.T) {
	d := startDispatcher(t)

	_, err := d.Dispatch(context.Background(), newTestEvent("missing", 0))
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatchContainsPanics(t *testing.T) {
	d := startDispatcher(t)
	require.NoError(t, d.Subscribe("boom", NewSimpleEventHandler("boom", func(context.Context, DomainEvent) (any, error) {
		panic("handler bug")
	})))
	require.NoError(t, d.Subscribe("ok", NewSimpleEventHandler("ok", func(context.Context, DomainEvent) (any, error) {
		return "fine", nil
	})))

	_, err := d.Dispatch(context.Background(), newTestEvent("boom", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler bug")

	got, err := d.Dispatch(context.Background(), newTestEvent("ok", 0))
	require.NoError(t, err)
	assert.Equal(t, "fine", got)
}

func TestFirstErrorStopsChain(t *testing.T) {
	d := startDispatcher(t)
	sentinel := errors.New("rejected")
	secondRan := false

	require.NoError(t, d.Subscribe("chain", NewSimpleEventHandler("chain", func(context.Context, DomainEvent) (any, error) {
		return nil, sentinel
	})))
	require.NoError(t, d.Subscribe("chain", NewSimpleEventHandler("chain", func(context.Context, DomainEvent) (any, error) {
		secondRan = true
		return nil, nil
	})))

	_, err := d.Dispatch(context.Background(), newTestEvent("chain", 0))
	assert.ErrorIs(t, err, sentinel)
	assert.False(t, secondRan)
}

func TestHandlersNeverOverlap(t *testing.T) {
	d := startDispatcher(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	require.NoError(t, d.Subscribe("work", NewSimpleEventHandler("work", func(context.Context, DomainEvent) (any, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), newTestEvent("work", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestPublishAndStop(t *testing.T) {
	d := NewInMemoryEventDispatcher(4, nil)
	assert.ErrorIs(t, d.Publish(newTestEvent("x", 0)), ErrNotRunning)

	done := make(chan struct{})
	require.NoError(t, d.Subscribe("x", NewSimpleEventHandler("x", func(context.Context, DomainEvent) (any, error) {
		close(done)
		return nil, nil
	})))
	require.NoError(t, d.Start())
	require.NoError(t, d.Publish(newTestEvent("x", 0)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("published event was not handled")
	}

	require.NoError(t, d.Stop())
	assert.ErrorIs(t, d.Stop(), ErrNotRunning)
}

func TestDispatchRacingStopDoesNotHang(t *testing.T) {
	d := NewInMemoryEventDispatcher(16, logger.NewNop())
	require.NoError(t, d.Subscribe("echo", NewSimpleEventHandler("echo", func(context.Context, DomainEvent) (any, error) {
		return "late", nil
	})))
	require.NoError(t, d.Start())
	require.NoError(t, d.Stop())

	// a caller that read running=true just before Stop flipped it
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := time.Now()
	_, err := d.Dispatch(ctx, newTestEvent("echo", 1))
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Less(t, time.Since(started), time.Second)
}
