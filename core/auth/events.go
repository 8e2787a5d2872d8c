package auth

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/clubhub/core/member"
)

type EventKind string

// Auth events
const (
	SignedIn       EventKind = "SIGNED_IN"
	SignedOut      EventKind = "SIGNED_OUT"
	TokenRefreshed EventKind = "TOKEN_REFRESHED"
	UserUpdated    EventKind = "USER_UPDATED"
)

type Event struct {
	Kind       EventKind `json:"kind"`
	IdentityID string    `json:"identity_id"`
	// SessionID scopes a SignedOut event to one session; empty means every session of the identity.
	SessionID string           `json:"session_id,omitempty"`
	Identity  *member.Identity `json:"identity,omitempty"`
	At        time.Time        `json:"at"`
}

type (
	Subscriber func(Event)

	// EventBus carries auth events to every interested session.
	EventBus interface {
		Publish(ctx context.Context, ev Event) error
		Subscribe(fn Subscriber) (unsubscribe func())
	}
)

// Hub is the in-process EventBus. Subscribers are called synchronously, in no particular order.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]Subscriber
	next int
}

var _ EventBus = (*Hub)(nil) // interface compliance check

func NewHub() *Hub {
	return &Hub{subs: make(map[int]Subscriber)}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Dispatch(ev)
	return nil
}

// Dispatch delivers ev to the current subscribers.
func (h *Hub) Dispatch(ev Event) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (h *Hub) Subscribe(fn Subscriber) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}
