package transport

import "context"

// EventKind is the closed set of upstream event categories.
type EventKind string

const (
	KindConnected    EventKind = "connected"
	KindDisconnected EventKind = "disconnected"
	KindError        EventKind = "error"
	KindMember       EventKind = "member"
	KindChat         EventKind = "chat"
)

// Event is one normalized upstream callback.
//
// User is set for member/chat events, Text carries the chat comment or
// the error detail. Events are immutable once produced.
type Event struct {
	Kind EventKind
	User string
	Text string
}

// Session is one live upstream connection.
//
// Events() yields the session's event feed; the channel is closed when
// the session ends (Close, upstream disconnect, or fatal read error).
// Close is idempotent and best-effort.
type Session interface {
	Events() <-chan Event
	Close() error
}

// Dialer opens a session for an already-normalized channel name.
//
// Dial blocks until the upstream handshake completes or fails; a failed
// handshake is reported synchronously and leaves nothing running.
type Dialer interface {
	Dial(ctx context.Context, channel string) (Session, error)
}
