package chat

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Hub is the delivery plane: it pushes payloads to locally attached
// connections and mirrors them onto the bus for peer instances. Run
// consumes the bus and replays foreign envelopes into local
// connections.
type Hub struct {
	id       string
	presence *Registry
	bus      Bus
}

func NewHub(presence *Registry, bus Bus) *Hub {
	return &Hub{
		id:       uuid.NewString(),
		presence: presence,
		bus:      bus,
	}
}

// Send delivers payload to every live connection of userID, here and
// on every other instance. Local pushes are independent per
// connection: one dead socket never blocks the rest. Bus errors are
// logged, not returned; the message is already persisted and local
// delivery already happened, so remote delivery is best effort.
func (h *Hub) Send(ctx context.Context, userID int, payload []byte) {
	for _, sink := range h.presence.Connections(userID) {
		if err := sink.Push(payload); err != nil {
			log.Printf("hub: dropping push to user %d: %v", userID, err)
		}
	}
	err := h.bus.Publish(ctx, Envelope{Origin: h.id, TargetID: userID, Payload: payload})
	if err != nil {
		log.Printf("hub: bus publish failed: %v", err)
	}
}

// BroadcastExcept delivers payload to every connected user except
// excludeID. Used for presence transitions.
func (h *Hub) BroadcastExcept(ctx context.Context, excludeID int, payload []byte) {
	for _, sink := range h.presence.Others(excludeID) {
		if err := sink.Push(payload); err != nil {
			log.Printf("hub: dropping broadcast push: %v", err)
		}
	}
	err := h.bus.Publish(ctx, Envelope{Origin: h.id, ExcludeID: excludeID, Payload: payload})
	if err != nil {
		log.Printf("hub: bus publish failed: %v", err)
	}
}

// Run replays envelopes published by other instances into local
// connections. It returns when the bus subscription or the context
// ends.
func (h *Hub) Run(ctx context.Context) error {
	envelopes, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			if env.Origin == h.id {
				continue
			}
			h.dispatch(env)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) dispatch(env Envelope) {
	var sinks []Sink
	if env.TargetID != 0 {
		sinks = h.presence.Connections(env.TargetID)
	} else {
		sinks = h.presence.Others(env.ExcludeID)
	}
	for _, sink := range sinks {
		if err := sink.Push(env.Payload); err != nil {
			log.Printf("hub: dropping relayed push: %v", err)
		}
	}
}

// Shutdown drains every local connection.
func (h *Hub) Shutdown() {
	h.presence.Shutdown()
}
