package smsqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/testutil"
	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	apperrors "github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// sweep window starts at a multiple of an hour
var start = time.Date(2026, 6, 1, 12, 0, 5, 0, time.UTC)

type queueFixture struct {
	queue  *Queue
	store  *registry.Store
	placer *testutil.MockPlacer
	now    time.Time
}

func (f *queueFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newQueueFixture(t *testing.T, settings Settings) *queueFixture {
	t.Helper()
	store := registry.NewStore(testutil.NewMockSectionStore(), nil, logger.NewNop())
	_, err := store.Reload(context.Background(), nil, registry.Policy{Mode: vo.PolicyTable})
	require.NoError(t, err)

	router := routing.NewResolver(store, routing.Settings{MinMatchDigits: 4, OutboundTarget: "sip:trunk"}, logger.NewNop())
	placer := new(testutil.MockPlacer)
	f := &queueFixture{store: store, placer: placer, now: start}
	f.queue = NewQueue(store, router, placer, settings, logger.NewNop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *queueFixture) register(t *testing.T, imsi, number, location string, ttl time.Duration) {
	t.Helper()
	_, err := f.store.Upsert(context.Background(), &subscriber.Registered{
		IMSI:     imsi,
		TMSI:     "000000" + imsi[len(imsi)-2:],
		Number:   number,
		Location: location,
		Expires:  f.now.Add(ttl),
	})
	require.NoError(t, err)
}

func defaultSettings() Settings {
	return Settings{
		TickInterval:    time.Second,
		AttemptBudget:   message.DefaultAttemptBudget,
		OfflineCooldown: time.Minute,
		RetryBackoff:    10 * time.Second,
		SweepEvery:      time.Hour,
	}
}

func TestEnqueueRejectsOffNetwork(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())

	_, route, err := f.queue.Enqueue(context.Background(), Submission{SenderIMSI: "001", Destination: "4915112345678", Payload: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, routing.OutcomeUnavailable, route.Outcome)
	assert.Zero(t, f.queue.Len())

	_, _, err = f.queue.Enqueue(context.Background(), Submission{Destination: " "})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestEnqueueFillsSenderNumber(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.register(t, "00101", "1001", "sip:a", time.Hour)
	f.register(t, "00102", "1002", "", time.Hour)

	m, route, err := f.queue.Enqueue(context.Background(), Submission{SenderIMSI: "00101", Destination: "1002", Payload: "hi"})
	require.NoError(t, err)
	assert.Equal(t, routing.OutcomeOffline, route.Outcome)
	assert.Equal(t, "1001", m.SenderNumber)
	assert.Equal(t, "00102", m.DestIMSI)
	assert.Equal(t, message.DefaultAttemptBudget, m.Attempts)
}

func TestEnqueueFallsBackToProfileNumber(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	_, err := f.store.Reload(context.Background(), []*subscriber.Profile{
		{IMSI: "00101", Algorithm: vo.AlgorithmNone, Number: "5551001", Active: true},
	}, registry.Policy{Mode: vo.PolicyTable})
	require.NoError(t, err)
	f.register(t, "00102", "1002", "sip:b", time.Hour)

	m, _, err := f.queue.Enqueue(context.Background(), Submission{SenderIMSI: "00101", Destination: "1002", Payload: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "5551001", m.SenderNumber)

	m, _, err = f.queue.Enqueue(context.Background(), Submission{SenderIMSI: "00199", Destination: "1002", Payload: "hi"})
	require.NoError(t, err)
	assert.Empty(t, m.SenderNumber)
}

func TestOfflineDestinationDefersWithoutUsingAttempts(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.register(t, "00102", "1002", "", time.Hour)
	m, _, err := f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "hi"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		report := f.queue.Tick(context.Background())
		assert.Equal(t, TickDeferred, report.Outcome)
		f.advance(time.Minute)
	}

	queued := f.queue.List()
	require.Len(t, queued, 1)
	assert.Equal(t, m.ID, queued[0].ID)
	assert.Equal(t, message.DefaultAttemptBudget, queued[0].Attempts)
	f.placer.AssertNotCalled(t, "PlaceMessage", mock.Anything, mock.Anything)

	report := f.queue.Tick(context.Background())
	assert.Equal(t, TickDeferred, report.Outcome)
	report = f.queue.Tick(context.Background())
	assert.Equal(t, TickIdle, report.Outcome, "cooldown not over")
}

func TestDeliverySuccessRemoves(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.register(t, "00102", "1002", "sip:b@10.0.0.2", time.Hour)
	f.placer.On("PlaceMessage", mock.Anything, mock.MatchedBy(func(d message.Delivery) bool {
		return d.To == "sip:b@10.0.0.2" && d.Payload == "hi"
	})).Return(true, nil).Once()

	_, _, err := f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "hi"})
	require.NoError(t, err)

	report := f.queue.Tick(context.Background())
	assert.Equal(t, TickDelivered, report.Outcome)
	assert.Zero(t, report.Pending)
	f.placer.AssertExpectations(t)
}

func TestDroppedAfterExactlyAttemptBudget(t *testing.T) {
	settings := defaultSettings()
	settings.RetryBackoff = 0
	f := newQueueFixture(t, settings)
	f.register(t, "00102", "1002", "sip:b@10.0.0.2", time.Hour)
	f.placer.On("PlaceMessage", mock.Anything, mock.Anything).Return(false, nil).Once()
	f.placer.On("PlaceMessage", mock.Anything, mock.Anything).Return(false, errors.New("timeout"))

	_, _, err := f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "hi"})
	require.NoError(t, err)

	var outcomes []TickOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, f.queue.Tick(context.Background()).Outcome)
		f.advance(time.Second)
	}

	assert.Equal(t, []TickOutcome{TickRetry, TickRetry, TickDropped, TickIdle, TickIdle}, outcomes)
	f.placer.AssertNumberOfCalls(t, "PlaceMessage", message.DefaultAttemptBudget)
	assert.Zero(t, f.queue.Len())
}

func TestRetryBackoff(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.register(t, "00102", "1002", "sip:b@10.0.0.2", time.Hour)
	f.placer.On("PlaceMessage", mock.Anything, mock.Anything).Return(false, nil).Once()
	f.placer.On("PlaceMessage", mock.Anything, mock.Anything).Return(true, nil).Once()

	_, _, err := f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "hi"})
	require.NoError(t, err)

	assert.Equal(t, TickRetry, f.queue.Tick(context.Background()).Outcome)
	f.advance(5 * time.Second)
	assert.Equal(t, TickIdle, f.queue.Tick(context.Background()).Outcome)
	f.advance(5 * time.Second)
	assert.Equal(t, TickDelivered, f.queue.Tick(context.Background()).Outcome)
}

func TestOneMessagePerTickOldestFirst(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.register(t, "00102", "1002", "sip:b@10.0.0.2", time.Hour)
	f.placer.On("PlaceMessage", mock.Anything, mock.Anything).Return(true, nil)

	first, _, err := f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "one"})
	require.NoError(t, err)
	f.advance(time.Millisecond)
	_, _, err = f.queue.Enqueue(context.Background(), Submission{Destination: "1002", Payload: "two"})
	require.NoError(t, err)

	report := f.queue.Tick(context.Background())
	assert.Equal(t, first.ID, report.MessageID)
	assert.Equal(t, 1, report.Pending)
}

func TestWelcomeMessage(t *testing.T) {
	settings := defaultSettings()
	settings.WelcomeSender = "411"
	settings.WelcomeText = "Welcome, your number is {number}"
	f := newQueueFixture(t, settings)

	require.NoError(t, f.queue.EnqueueWelcome(context.Background(), "00102", "1002"))
	queued := f.queue.List()
	require.Len(t, queued, 1)
	assert.Equal(t, "Welcome, your number is 1002", queued[0].Payload)
	assert.Equal(t, "411", queued[0].SenderNumber)
	assert.Equal(t, "00102", queued[0].DestIMSI)

	f.queue.Configure(defaultSettings())
	require.NoError(t, f.queue.EnqueueWelcome(context.Background(), "00103", "1003"))
	assert.Equal(t, 1, f.queue.Len(), "no text, no welcome")
}

func TestTickSweepsInWindow(t *testing.T) {
	f := newQueueFixture(t, defaultSettings())
	f.now = time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	f.register(t, "00101", "1001", "sip:a", time.Minute)

	f.now = time.Date(2026, 6, 1, 11, 30, 0, 0, time.UTC)
	report := f.queue.Tick(context.Background())
	assert.Empty(t, report.Swept, "outside the window")

	f.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	report = f.queue.Tick(context.Background())
	assert.Equal(t, []string{"00101"}, report.Swept)
}

func TestInSweepWindow(t *testing.T) {
	at := func(sec int64) time.Time { return time.Unix(sec, 0) }

	assert.True(t, inSweepWindow(at(3600), time.Hour, time.Second))
	assert.False(t, inSweepWindow(at(3601), time.Hour, time.Second))
	assert.True(t, inSweepWindow(at(3604), time.Hour, 5*time.Second))
	assert.True(t, inSweepWindow(at(3600), time.Hour, 100*time.Millisecond))
	assert.False(t, inSweepWindow(at(3600), 0, time.Second))
}
