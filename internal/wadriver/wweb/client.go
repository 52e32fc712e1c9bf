// Package wweb implements the wadriver contract against a local
// whatsapp-web bridge process. The bridge owns the browser automation;
// this client speaks a small JSON frame protocol to it over a
// websocket, one connection per session.
package wweb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

type Config struct {
	// URL is the bridge websocket endpoint, e.g. "ws://127.0.0.1:8055/ws".
	URL         string
	DialTimeout time.Duration
}

type Factory struct {
	cfg Config
	log logx.Logger
}

func NewFactory(cfg Config, log logx.Logger) (*Factory, error) {
	if cfg.URL == "" {
		return nil, errors.New("bridge url is empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Factory{cfg: cfg, log: log}, nil
}

func (f *Factory) Connect(ctx context.Context, cfg wadriver.Config) (wadriver.Handle, error) {
	if cfg.SessionName == "" {
		return nil, errors.New("session name is empty")
	}

	u, _ := url.Parse(f.cfg.URL)
	q := u.Query()
	q.Set("session", cfg.SessionName)
	u.RawQuery = q.Encode()

	timeout := f.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial: %w", err)
	}

	c := &client{
		session: cfg.SessionName,
		conn:    conn,
		log:     f.log.With(logx.String("session", cfg.SessionName)),
		events:  make(chan wadriver.Event, 64),
		pending: map[string]chan ackFrame{},
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Frame is the wire format spoken with the bridge, both directions.
type frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// qr / message / disconnected payloads
	Data   string `json:"data,omitempty"`
	From   string `json:"from,omitempty"`
	Body   string `json:"body,omitempty"`
	Reason string `json:"reason,omitempty"`

	// send payload
	To        string `json:"to,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	MIME      string `json:"mime,omitempty"`

	// ack payload
	Error    string        `json:"error,omitempty"`
	Statuses []statusFrame `json:"statuses,omitempty"`
}

type statusFrame struct {
	ID   string    `json:"id"`
	From string    `json:"from,omitempty"`
	At   time.Time `json:"at,omitempty"`
}

type ackFrame struct {
	err      string
	statuses []statusFrame
}

type client struct {
	session string
	log     logx.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	events chan wadriver.Event

	pendMu  sync.Mutex
	pending map[string]chan ackFrame

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *client) Events() <-chan wadriver.Event { return c.events }

func (c *client) readLoop() {
	defer func() {
		c.failPending()
		close(c.events)
	}()

	for {
		var fr frame
		if err := c.conn.ReadJSON(&fr); err != nil {
			select {
			case <-c.closed:
				// Destroy() closed the connection; not a remote drop.
			default:
				c.log.Debug("bridge read failed", logx.Err(err))
				c.emit(wadriver.Event{Kind: wadriver.EventDisconnected, Reason: err.Error()})
			}
			return
		}

		switch fr.Type {
		case "qr":
			c.emit(wadriver.Event{Kind: wadriver.EventQR, QR: fr.Data})
		case "ready":
			c.emit(wadriver.Event{Kind: wadriver.EventReady})
		case "message":
			c.emit(wadriver.Event{Kind: wadriver.EventMessage, From: fr.From, Body: fr.Body})
		case "disconnected":
			c.emit(wadriver.Event{Kind: wadriver.EventDisconnected, Reason: fr.Reason})
			return
		case "ack":
			c.resolve(fr.ID, ackFrame{err: fr.Error, statuses: fr.Statuses})
		default:
			c.log.Debug("bridge sent unknown frame", logx.String("type", fr.Type))
		}
	}
}

func (c *client) emit(e wadriver.Event) {
	// The session pump is the sole consumer and drains promptly; if it
	// ever falls this far behind, dropping beats stalling the socket.
	select {
	case c.events <- e:
	default:
		c.log.Warn("event dropped (consumer behind)", logx.String("kind", e.Kind.String()))
	}
}

func (c *client) Send(ctx context.Context, to, body string, att *wadriver.Attachment) error {
	fr := frame{Type: "send", ID: uuid.NewString(), To: to, Body: body}
	if att != nil {
		fr.MediaPath = att.Path
		fr.MediaURL = att.URL
		fr.MIME = att.MIME
	}
	ack, err := c.roundTrip(ctx, fr)
	if err != nil {
		return err
	}
	if ack.err != "" {
		return fmt.Errorf("bridge send: %s", ack.err)
	}
	return nil
}

func (c *client) ProbeStatus(ctx context.Context) ([]wadriver.StatusUpdate, error) {
	ack, err := c.roundTrip(ctx, frame{Type: "probe_status", ID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	if ack.err != "" {
		return nil, fmt.Errorf("bridge probe: %s", ack.err)
	}
	out := make([]wadriver.StatusUpdate, 0, len(ack.statuses))
	for _, st := range ack.statuses {
		out = append(out, wadriver.StatusUpdate{ID: st.ID, From: st.From, At: st.At})
	}
	return out, nil
}

func (c *client) roundTrip(ctx context.Context, fr frame) (ackFrame, error) {
	select {
	case <-c.closed:
		return ackFrame{}, wadriver.ErrClosed
	default:
	}

	ch := make(chan ackFrame, 1)
	c.pendMu.Lock()
	c.pending[fr.ID] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, fr.ID)
		c.pendMu.Unlock()
	}()

	if err := c.writeJSON(fr); err != nil {
		return ackFrame{}, err
	}

	select {
	case <-ctx.Done():
		return ackFrame{}, ctx.Err()
	case <-c.closed:
		return ackFrame{}, wadriver.ErrClosed
	case ack, ok := <-ch:
		if !ok {
			return ackFrame{}, wadriver.ErrClosed
		}
		return ack, nil
	}
}

func (c *client) resolve(id string, ack ackFrame) {
	if id == "" {
		return
	}
	c.pendMu.Lock()
	ch := c.pending[id]
	delete(c.pending, id)
	c.pendMu.Unlock()
	if ch != nil {
		ch <- ack
	}
}

func (c *client) failPending() {
	c.pendMu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendMu.Unlock()
}

func (c *client) writeJSON(fr frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return wadriver.ErrClosed
	default:
	}
	return c.conn.WriteJSON(fr)
}

func (c *client) Destroy(ctx context.Context) error {
	c.closeOnce.Do(func() {
		// Best-effort: tell the bridge to tear the browser session down
		// before dropping the socket.
		c.writeMu.Lock()
		_ = c.conn.WriteJSON(frame{Type: "destroy"})
		c.writeMu.Unlock()

		close(c.closed)
		_ = c.conn.Close()
	})
	return nil
}
