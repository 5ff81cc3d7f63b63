package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHub_SendReachesLocalConnectionsAndTheBus(t *testing.T) {
	req := require.New(t)
	presence := NewRegistry()
	bus := NewLoopbackBus()
	hub := NewHub(presence, bus)

	tap, err := bus.Subscribe(context.Background())
	req.NoError(err)

	sink := &fakeSink{}
	presence.Register(1, "conn-1", sink)

	payload, err := NewEvent(EventError, ErrorPayload{Message: "ping"})
	req.NoError(err)
	hub.Send(context.Background(), 1, payload)

	req.Equal(1, sink.count(EventError))

	env := <-tap
	req.Equal(hub.id, env.Origin)
	req.Equal(1, env.TargetID)
}

func TestHub_RunRelaysForeignEnvelopes(t *testing.T) {
	req := require.New(t)
	presence := NewRegistry()
	bus := NewLoopbackBus()
	hub := NewHub(presence, bus)

	sink := &fakeSink{}
	presence.Register(7, "conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Give the subscription a moment to attach before publishing.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) > 0
	}, time.Second, 5*time.Millisecond)

	payload, err := NewEvent(EventUserOnline, PresencePayload{UserID: 9, IsOnline: true})
	req.NoError(err)
	req.NoError(bus.Publish(ctx, Envelope{Origin: "peer-instance", TargetID: 7, Payload: payload}))

	require.Eventually(t, func() bool {
		return sink.count(EventUserOnline) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RunSkipsItsOwnEcho(t *testing.T) {
	req := require.New(t)
	presence := NewRegistry()
	bus := NewLoopbackBus()
	hub := NewHub(presence, bus)

	sink := &fakeSink{}
	presence.Register(1, "conn-1", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) > 0
	}, time.Second, 5*time.Millisecond)

	payload, err := NewEvent(EventError, ErrorPayload{Message: "once"})
	req.NoError(err)
	hub.Send(ctx, 1, payload)

	// The local push happened; the loopback echo must not double it.
	req.Equal(1, sink.count(EventError))
	time.Sleep(50 * time.Millisecond)
	req.Equal(1, sink.count(EventError))
}

func TestHub_BroadcastExceptSkipsOneUser(t *testing.T) {
	req := require.New(t)
	presence := NewRegistry()
	hub := NewHub(presence, NewLoopbackBus())

	a := &fakeSink{}
	b := &fakeSink{}
	c := &fakeSink{}
	presence.Register(1, "conn-1", a)
	presence.Register(2, "conn-2", b)
	presence.Register(3, "conn-3", c)

	payload, err := NewEvent(EventUserOffline, PresencePayload{UserID: 2})
	req.NoError(err)
	hub.BroadcastExcept(context.Background(), 2, payload)

	req.Equal(1, a.count(EventUserOffline))
	req.Equal(0, b.count(EventUserOffline))
	req.Equal(1, c.count(EventUserOffline))
}
