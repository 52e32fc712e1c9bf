// Package wadriver defines the boundary between the session core and
// whatever actually speaks WhatsApp. The core only ever sees this
// contract: an asynchronous connect, an ordered per-session event
// stream, sends, and destroy.
package wadriver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a destroyed handle.
	ErrClosed = errors.New("wadriver: handle closed")
)

type EventKind int

const (
	// EventQR carries a fresh pairing token. The token rotates until
	// consumed; every rotation produces a new event.
	EventQR EventKind = iota
	// EventReady means the session is authenticated and can send.
	EventReady
	// EventMessage is an incoming message on this session.
	EventMessage
	// EventDisconnected is terminal; no event follows it and the event
	// channel closes afterwards.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventQR:
		return "qr"
	case EventReady:
		return "ready"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind

	// QR is set for EventQR.
	QR string

	// From/Body are set for EventMessage.
	From string
	Body string

	// Reason is set for EventDisconnected.
	Reason string
}

// Attachment is media to send alongside a message body. Exactly one of
// Path or URL should be set; the body becomes the caption.
type Attachment struct {
	Path string
	URL  string
	MIME string
}

// StatusUpdate is a remotely-observable status/presence event seen by
// a session.
type StatusUpdate struct {
	ID   string
	From string
	At   time.Time
}

type Config struct {
	// SessionName keys the underlying client's auth state, so a session
	// reconnects to the same account across restarts.
	SessionName string
}

// Handle is one live session connection.
type Handle interface {
	// Events yields this session's events in arrival order. The channel
	// closes after EventDisconnected is delivered.
	Events() <-chan Event

	Send(ctx context.Context, to, body string, att *Attachment) error

	// Destroy releases all resources. Subsequent operations fail with
	// ErrClosed. Idempotent.
	Destroy(ctx context.Context) error
}

// StatusProber is an optional capability of a Handle. The status poll
// loop uses it when available; handles without it are skipped.
type StatusProber interface {
	ProbeStatus(ctx context.Context) ([]StatusUpdate, error)
}

// Factory establishes new session connections. Connect begins an
// asynchronous connection and returns before the session is ready;
// readiness and failures arrive on the handle's event stream.
type Factory interface {
	Connect(ctx context.Context, cfg Config) (Handle, error)
}
