package chat

import "sync"

// Sink is a live connection's outbound queue. Push must not block;
// implementations drop or disconnect slow consumers. Close releases
// the connection's resources and is safe to call more than once.
type Sink interface {
	Push(payload []byte) error
	Close()
}

// entry is the per-user presence state: every live connection keyed by
// connection id, plus the typing context (at most one conversation).
type entry struct {
	conns    map[string]Sink
	typingIn int // conversation id, 0 when not typing
}

// Registry is the process-wide table of who is reachable right now.
// It is the only mutable state shared across connection goroutines;
// all access goes through the methods below, under one mutex. Fan-out
// callers get snapshots, never live map references.
type Registry struct {
	mu    sync.Mutex
	users map[int]*entry
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int]*entry)}
}

// Register adds a connection to the user's entry, creating the entry
// on the user's first connection. Reports whether this connection took
// the user from offline to online.
func (r *Registry) Register(userID int, connID string, sink Sink) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		e = &entry{conns: make(map[string]Sink)}
		r.users[userID] = e
		first = true
	}
	e.conns[connID] = sink
	return first
}

// Unregister removes a connection. When it was the user's last one the
// entry is dropped entirely and any active typing context is returned
// so the caller can emit the compensating typing:stop.
func (r *Registry) Unregister(userID int, connID string) (last bool, typingIn int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		return false, 0
	}
	delete(e.conns, connID)
	if len(e.conns) > 0 {
		return false, 0
	}
	delete(r.users, userID)
	return true, e.typingIn
}

// Connections returns a snapshot of the user's live connections. A
// user with none is simply absent: the result is empty, not an error.
func (r *Registry) Connections(userID int) []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		return nil
	}
	sinks := make([]Sink, 0, len(e.conns))
	for _, s := range e.conns {
		sinks = append(sinks, s)
	}
	return sinks
}

// Others returns a snapshot of every live connection except those of
// excludeID. Used for presence broadcasts.
func (r *Registry) Others(excludeID int) []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sinks []Sink
	for userID, e := range r.users {
		if userID == excludeID {
			continue
		}
		for _, s := range e.conns {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// SetTyping records the conversation the user is typing into. A user
// types into at most one conversation; a new start replaces the old
// context. No-op for users with no live connection.
func (r *Registry) SetTyping(userID, conversationID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.users[userID]; ok {
		e.typingIn = conversationID
	}
}

// ClearTyping drops the user's typing context.
func (r *Registry) ClearTyping(userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.users[userID]; ok {
		e.typingIn = 0
	}
}

// Shutdown drains the table, closing every connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	users := r.users
	r.users = make(map[int]*entry)
	r.mu.Unlock()

	for _, e := range users {
		for _, s := range e.conns {
			s.Close()
		}
	}
}
