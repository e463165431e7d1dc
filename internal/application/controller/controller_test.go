package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/application/auth"
	"github.com/orris-inc/cellcore/internal/application/identity"
	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/application/testutil"
	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	apperrors "github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

type stubSource struct {
	snap *Snapshot
	err  error
}

func (s *stubSource) Load(context.Context) (*Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func open(imsi, number string) *subscriber.Profile {
	return &subscriber.Profile{
		IMSI:      imsi,
		Algorithm: vo.AlgorithmComp128,
		Secret:    subscriber.Secret{Key: subscriber.AuthDisabledSecret},
		Number:    number,
		Active:    true,
	}
}

func baseSnapshot(profiles ...*subscriber.Profile) *Snapshot {
	return &Snapshot{
		Profiles: profiles,
		Registration: registration.Settings{
			TTL:          time.Hour,
			NumberLength: 4,
		},
		Routing: routing.Settings{
			EmergencyCode:   "911",
			EmergencyTarget: "sip:psap@10.0.0.9",
			OutboundTarget:  "sip:trunk@10.0.0.8",
			MinMatchDigits:  4,
		},
		Queue: smsqueue.Settings{
			TickInterval:    time.Second,
			AttemptBudget:   message.DefaultAttemptBudget,
			OfflineCooldown: time.Minute,
			RetryBackoff:    time.Minute,
			WelcomeSender:   "100",
			WelcomeText:     "your number is {number}",
		},
	}
}

type harness struct {
	ctrl     *Controller
	bus      *events.InMemoryEventDispatcher
	sections *testutil.MockSectionStore
	placer   *testutil.MockPlacer
	alarms   *alarm.Board
}

func newHarness(t *testing.T, source ConfigSource, sections *testutil.MockSectionStore) *harness {
	t.Helper()
	log := logger.NewNop()
	alarms := alarm.NewBoard(log)

	store := registry.NewStore(sections, alarms, log)
	allocator := identity.NewAllocator(store, sections, alarms, log)
	engine := auth.NewEngine(store, new(testutil.MockVectorComputer), log)
	router := routing.NewResolver(store, routing.Settings{}, log)
	placer := new(testutil.MockPlacer)
	queue := smsqueue.NewQueue(store, router, placer, smsqueue.Settings{}, log)
	resolver := registration.NewResolver(store, engine, allocator, routing.NewCandidateGenerator(1, 2), queue, registration.Settings{}, log)

	ctrl := New(Components{
		Store:        store,
		Allocator:    allocator,
		Auth:         engine,
		Registration: resolver,
		Routing:      router,
		Queue:        queue,
	}, source, alarms, log)
	require.NoError(t, ctrl.Start(context.Background()))

	bus := events.NewInMemoryEventDispatcher(16, log)
	require.NoError(t, ctrl.Subscribe(bus))
	require.NoError(t, bus.Start())
	t.Cleanup(func() { _ = bus.Stop() })

	return &harness{ctrl: ctrl, bus: bus, sections: sections, placer: placer, alarms: alarms}
}

func (h *harness) dispatch(t *testing.T, event events.DomainEvent) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.bus.Dispatch(ctx, event)
}

func registerEvent(imsi, location string) *RegisterEvent {
	return &RegisterEvent{
		BaseEvent: events.NewBaseEvent(EventRegister, imsi, time.Now()),
		Request:   registration.Request{IMSI: imsi, Location: location},
	}
}

func routeEvent(eventType, caller, dest string) *RouteEvent {
	return &RouteEvent{
		BaseEvent: events.NewBaseEvent(eventType, caller, time.Now()),
		Request:   routing.Request{Caller: caller, Destination: dest},
	}
}

func TestRegisterAndRouteOverBus(t *testing.T) {
	h := newHarness(t, &stubSource{snap: baseSnapshot(
		open("001010000000001", "5551001"),
		open("001010000000002", "5551002"),
	)}, testutil.NewMockSectionStore())

	reply, err := h.dispatch(t, registerEvent("001010000000001", "sip:a@10.0.0.1"))
	require.NoError(t, err)
	res, ok := reply.(*registration.Result)
	require.True(t, ok)
	assert.Equal(t, registration.StatusRegistered, res.Status)
	assert.Equal(t, "5551001", res.Number)
	assert.Equal(t, "00000001", res.TMSI)

	reply, err = h.dispatch(t, routeEvent(EventRouteCall, "001010000000002", "5551001"))
	require.NoError(t, err)
	route := reply.(*routing.Route)
	assert.Equal(t, routing.OutcomeLocal, route.Outcome)
	assert.Equal(t, "sip:a@10.0.0.1", route.Target)

	reply, err = h.dispatch(t, routeEvent(EventRouteCall, "001010000000002", "911"))
	require.NoError(t, err)
	assert.Equal(t, routing.OutcomeSpecial, reply.(*routing.Route).Outcome)
}

func TestRouteSMSOffNetworkIsUnavailable(t *testing.T) {
	h := newHarness(t, &stubSource{snap: baseSnapshot(open("001010000000001", "5551001"))},
		testutil.NewMockSectionStore())

	reply, err := h.dispatch(t, routeEvent(EventRouteSMS, "001010000000001", "+442071234567"))
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	route, ok := reply.(*routing.Route)
	require.True(t, ok)
	assert.Equal(t, routing.OutcomeUnavailable, route.Outcome)
}

func TestUnregisterFreesRegistration(t *testing.T) {
	h := newHarness(t, &stubSource{snap: baseSnapshot(open("001010000000001", "5551001"))},
		testutil.NewMockSectionStore())

	_, err := h.dispatch(t, registerEvent("001010000000001", "sip:a@10.0.0.1"))
	require.NoError(t, err)

	reply, err := h.dispatch(t, &UnregisterEvent{
		BaseEvent: events.NewBaseEvent(EventUnregister, "", time.Now()),
		TMSI:      "00000001",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"imsi": "001010000000001"}, reply)

	_, ok := h.ctrl.Store.Registered("001010000000001")
	assert.False(t, ok)
	assert.False(t, h.ctrl.Store.NumberInUse("5551001", ""))
}

func TestWelcomeMessageDeliveredOnTick(t *testing.T) {
	h := newHarness(t, &stubSource{snap: baseSnapshot(open("001010000000001", "5551001"))},
		testutil.NewMockSectionStore())
	h.placer.On("PlaceMessage", mock.Anything, mock.MatchedBy(func(d message.Delivery) bool {
		return d.To == "sip:a@10.0.0.1" && d.Payload == "your number is 5551001"
	})).Return(true, nil).Once()

	_, err := h.dispatch(t, registerEvent("001010000000001", "sip:a@10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, 1, h.ctrl.Queue.Len())

	reply, err := h.dispatch(t, NewTickEvent(time.Now()))
	require.NoError(t, err)
	report := reply.(smsqueue.TickReport)
	assert.Equal(t, smsqueue.TickDelivered, report.Outcome)
	assert.Equal(t, 0, report.Pending)
	h.placer.AssertExpectations(t)
}

func TestDeliverSMSQueuesForLocalSubscriber(t *testing.T) {
	snap := baseSnapshot(open("001010000000001", "5551001"), open("001010000000002", "5551002"))
	snap.Queue.WelcomeText = ""
	h := newHarness(t, &stubSource{snap: snap}, testutil.NewMockSectionStore())

	_, err := h.dispatch(t, registerEvent("001010000000002", "sip:b@10.0.0.2"))
	require.NoError(t, err)

	reply, err := h.dispatch(t, &DeliverSMSEvent{
		BaseEvent: events.NewBaseEvent(EventDeliverSMS, "001010000000001", time.Now()),
		Submission: smsqueue.Submission{
			SenderIMSI:  "001010000000001",
			Destination: "5551002",
			Payload:     "hello",
		},
	})
	require.NoError(t, err)
	m := reply.(*message.PendingMessage)
	assert.Equal(t, "001010000000002", m.DestIMSI)
	assert.Equal(t, "5551001", m.SenderNumber)
	assert.Equal(t, 1, h.ctrl.Queue.Len())
}

func TestStartWithBrokenConfigRejectsEverything(t *testing.T) {
	h := newHarness(t, &stubSource{err: errors.New("subscribers file unreadable")},
		testutil.NewMockSectionStore())

	assert.Equal(t, vo.PolicyUnconfigured, h.ctrl.Store.Policy().Mode)
	assert.True(t, h.alarms.Firing(alarm.KindConfig, alarmKeyReload))

	_, err := h.dispatch(t, registerEvent("001010000000001", "sip:a@10.0.0.1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotAllowed(err))
	assert.Equal(t, 1, h.ctrl.Store.Rejections()["001010000000001"])
}

func TestReloadWithTableAndPatternsIsConfigError(t *testing.T) {
	snap := baseSnapshot(open("001010000000001", "5551001"))
	snap.AcceptPatterns = []string{"^00101"}
	source := &stubSource{snap: snap}
	h := newHarness(t, source, testutil.NewMockSectionStore())

	assert.Equal(t, vo.PolicyUnconfigured, h.ctrl.Store.Policy().Mode)
	assert.True(t, h.alarms.Firing(alarm.KindConfig, alarmKeyPolicy))

	snap.PolicyMode = "table"
	reply, err := h.dispatch(t, NewReloadEvent(time.Now()))
	require.NoError(t, err)
	report := reply.(*registry.ReloadReport)
	assert.Equal(t, string(vo.PolicyTable), report.Policy)
	assert.False(t, h.alarms.Firing(alarm.KindConfig, alarmKeyPolicy))
}

type recordingTicker struct {
	intervals chan time.Duration
	err       error
}

func (r *recordingTicker) Reschedule(interval time.Duration) error {
	r.intervals <- interval
	return r.err
}

func TestReloadRetimesTick(t *testing.T) {
	source := &stubSource{snap: baseSnapshot(open("001010000000001", "5551001"))}
	h := newHarness(t, source, testutil.NewMockSectionStore())
	ticker := &recordingTicker{intervals: make(chan time.Duration, 1), err: errors.New("scheduler stopped")}
	h.ctrl.Ticker = ticker

	snap := baseSnapshot(open("001010000000001", "5551001"))
	snap.Queue.TickInterval = 250 * time.Millisecond
	source.snap = snap

	_, err := h.dispatch(t, NewReloadEvent(time.Now()))
	require.NoError(t, err)

	select {
	case got := <-ticker.intervals:
		assert.Equal(t, 250*time.Millisecond, got)
	case <-time.After(2 * time.Second):
		t.Fatal("tick was not rescheduled")
	}
	assert.Eventually(t, func() bool { return h.alarms.Firing(alarm.KindConfig, alarmKeyTick) },
		time.Second, 10*time.Millisecond)
}

func TestReloadRejectsBadPartition(t *testing.T) {
	snap := baseSnapshot(open("001010000000001", "5551001"))
	snap.NodeBits = 11
	h := newHarness(t, &stubSource{snap: snap}, testutil.NewMockSectionStore())

	assert.True(t, h.alarms.Firing(alarm.KindConfig, alarmKeyPartition))
	assert.Equal(t, vo.PolicyTable, h.ctrl.Store.Policy().Mode)
}

func TestRestartRestoresRegistrationsAndCounter(t *testing.T) {
	sections := testutil.NewMockSectionStore()
	source := &stubSource{snap: baseSnapshot(
		open("001010000000001", "5551001"),
		open("001010000000002", "5551002"),
	)}

	first := newHarness(t, source, sections)
	_, err := first.dispatch(t, registerEvent("001010000000001", "sip:a@10.0.0.1"))
	require.NoError(t, err)

	second := newHarness(t, source, sections)
	reg, ok := second.ctrl.Store.Registered("001010000000001")
	require.True(t, ok)
	assert.Equal(t, "00000001", reg.TMSI)
	assert.Equal(t, uint32(1), second.ctrl.Allocator.Last())

	reply, err := second.dispatch(t, registerEvent("001010000000002", "sip:b@10.0.0.2"))
	require.NoError(t, err)
	assert.Equal(t, "00000002", reply.(*registration.Result).TMSI)
}

func TestDecodeEvent(t *testing.T) {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

	e, err := DecodeEvent(EventRegister, []byte(`{"imsi":"001010000000001","location":"sip:a@10.0.0.1"}`), now)
	require.NoError(t, err)
	reg, ok := e.(*RegisterEvent)
	require.True(t, ok)
	assert.Equal(t, "001010000000001", reg.Request.IMSI)
	assert.Equal(t, EventRegister, reg.GetEventType())
	assert.Equal(t, now, reg.GetOccurredAt())

	e, err = DecodeEvent(EventTick, nil, now)
	require.NoError(t, err)
	assert.Equal(t, EventTick, e.GetEventType())

	_, err = DecodeEvent("bogus", nil, now)
	assert.Error(t, err)

	_, err = DecodeEvent(EventRouteCall, []byte(`{`), now)
	assert.Error(t, err)
}
