package fundauth

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Reason classifies why a session ended.
type Reason string

const (
	// ReasonInactivity is published when the idle monitor's deadline elapsed.
	ReasonInactivity Reason = "inactivity"
	// ReasonTokenExpired is published when a renewal attempt failed with an
	// ordinary invalid/expired refresh credential.
	ReasonTokenExpired Reason = "token_expired"
	// ReasonSessionExpired is published when renewal was needed but no
	// refresh credential was stored.
	ReasonSessionExpired Reason = "session_expired"
	// ReasonUserDeleted is published when the server signals that the
	// account behind the session no longer exists.
	ReasonUserDeleted Reason = "user_deleted"
	// ReasonManual is published on a caller-initiated logout.
	ReasonManual Reason = "manual"
)

// Event is a transient session-ending announcement. It is published once,
// never persisted, and delivered to whichever subscribers are registered at
// publish time.
type Event struct {
	Kind    string
	Reason  Reason
	Message string
}

// EventKindLogout is the only event kind the client publishes today.
const EventKindLogout = "logout"

// Subscription identifies a registered bus handler for later removal.
type Subscription uint64

type busEntry struct {
	id Subscription
	fn func(Event)
}

// Bus is a process-wide publish/subscribe channel for session events.
// Delivery is synchronous and in registration order; a panicking subscriber
// is recovered so it cannot block the remaining ones. There is no queueing
// or replay: subscribers must register before the first authenticated
// request can fail. [Client] guarantees this by subscribing during Build,
// before the bus is marked ready.
type Bus struct {
	mu     sync.Mutex
	nextID Subscription
	subs   []busEntry
	ready  atomic.Bool
	logger zerolog.Logger
}

// NewBus returns an empty bus. Events are suppressed until [Bus.MarkReady]
// is called, so a restored page/process cannot announce a spurious logout
// before the stored credentials have been checked.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a token for [Bus.Unsubscribe].
func (b *Bus) Subscribe(fn func(Event)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, busEntry{id: id, fn: fn})
	return id
}

// Unsubscribe removes the handler registered under token. Unknown tokens
// are ignored.
func (b *Bus) Unsubscribe(token Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.subs {
		if entry.id == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// MarkReady lifts the startup suppression gate. It is one-way: once ready,
// the bus stays ready for the life of the process.
func (b *Bus) MarkReady() {
	b.ready.Store(true)
}

// Ready reports whether events are currently deliverable.
func (b *Bus) Ready() bool {
	return b.ready.Load()
}

// Publish delivers event to every registered subscriber, synchronously and
// in registration order. Publishes before MarkReady are dropped.
func (b *Bus) Publish(event Event) {
	if !b.ready.Load() {
		b.logger.Debug().Str("reason", string(event.Reason)).Msg("fundauth: event suppressed before ready")
		return
	}

	b.mu.Lock()
	entries := make([]busEntry, len(b.subs))
	copy(entries, b.subs)
	b.mu.Unlock()

	for _, entry := range entries {
		b.deliver(entry, event)
	}
}

func (b *Bus) deliver(entry busEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Interface("panic", r).Msg("fundauth: event subscriber panicked")
		}
	}()
	entry.fn(event)
}
