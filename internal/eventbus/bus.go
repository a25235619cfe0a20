package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type is the closed set of outbound event categories.
type Type string

const (
	// TypeSay carries a narration line destined for speech playback
	// and the dashboard transcript.
	TypeSay Type = "say"
	// TypeLog carries a session status string ("connected", "disconnected", "error").
	TypeLog Type = "log"
	// TypeChat echoes a viewer message verbatim.
	TypeChat Type = "chat"
)

// Event is a lightweight, in-memory signal used to decouple producers
// (session adapter, narration, promo scheduler) from stream consumers.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// The JSON shape of an Event is exactly what goes over the wire to
// dashboard clients.
type Event struct {
	Type     Type      `json:"type"`
	Text     string    `json:"text,omitempty"`
	Username string    `json:"username,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"-"`
}

func Say(text string) Event { return Event{Type: TypeSay, Text: text} }
func Log(text string) Event { return Event{Type: TypeLog, Text: text} }
func Chat(username, message string) Event {
	return Event{Type: TypeChat, Username: username, Message: message}
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
