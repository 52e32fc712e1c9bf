package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wabot/internal/eventbus"
	rtsup "wabot/internal/runtime/supervisor"
	"wabot/internal/storage"
	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

// Notifier delivers short notices to the owning operator. Delivery is
// fire-and-forget; implementations log their own failures.
type Notifier interface {
	NotifyOperator(operatorID, text string)
}

type Config struct {
	// StatusPollInterval is the fixed interval of the per-session
	// status poll loop. Default 30s.
	StatusPollInterval time.Duration

	// AutoView gates automatic viewing of probed statuses. The polling
	// and logging skeleton is wired; the auto action itself is an
	// unresolved extension point.
	AutoView bool

	// BroadcastRatePerSec throttles fan-out sends. Default 5.
	BroadcastRatePerSec int
}

// Manager drives every session through its lifecycle: connect, QR
// pairing, ready, teardown. It owns the registry, the per-session
// event pumps, and the status poller.
type Manager struct {
	cfg     Config
	reg     *Registry
	factory wadriver.Factory
	store   storage.Store
	notif   Notifier
	inbound *Inbound
	bus     eventbus.Bus
	log     logx.Logger

	limiter *rate.Limiter

	sup  *rtsup.Supervisor
	poll *poller
}

func NewManager(cfg Config, factory wadriver.Factory, store storage.Store, notif Notifier, inbound *Inbound, bus eventbus.Bus, log logx.Logger) *Manager {
	if cfg.StatusPollInterval <= 0 {
		cfg.StatusPollInterval = 30 * time.Second
	}
	if cfg.BroadcastRatePerSec <= 0 {
		cfg.BroadcastRatePerSec = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg:     cfg,
		reg:     NewRegistry(),
		factory: factory,
		store:   store,
		notif:   notif,
		inbound: inbound,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.BroadcastRatePerSec), cfg.BroadcastRatePerSec),
	}
	return m
}

// Start wires the background machinery; it must be called before
// Create/Recover. Idempotent.
func (m *Manager) Start(ctx context.Context) {
	if m.sup != nil {
		return
	}
	m.sup = rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "session"))),
		rtsup.WithCancelOnError(false),
	)
	m.poll = newPoller(m.sup.Context(), m.cfg.StatusPollInterval, m.cfg.AutoView, m.reg, m.store, m.log.With(logx.String("comp", "session.poll")))
	m.poll.run()
}

// Stop destroys every live session and waits for the pumps to drain.
func (m *Manager) Stop(ctx context.Context) {
	// Shutdown keeps the durable records active so the next start can
	// recover every session.
	for _, name := range m.reg.Names() {
		if err := m.destroy(ctx, name, false); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn("session teardown failed", logx.String("session", name), logx.Err(err))
		}
	}
	if m.poll != nil {
		m.poll.close()
	}
	if m.sup != nil {
		_ = m.sup.Stop(ctx)
	}
}

// Create starts a new session under name for the given operator. It
// returns as soon as the attempt is accepted; readiness (or failure)
// is reported to the operator asynchronously. ErrAlreadyExists is the
// only name-collision path, checked against the live registry.
func (m *Manager) Create(ctx context.Context, name, operatorID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session name is empty")
	}
	if operatorID == "" {
		return errors.New("operator id is empty")
	}

	s := &Session{
		name:       name,
		operatorID: operatorID,
		createdAt:  time.Now(),
		state:      StateInitializing,
	}
	// Reserve the name before connecting so two concurrent creates
	// can't both reach the driver.
	if err := m.reg.Register(s); err != nil {
		return err
	}

	h, err := m.factory.Connect(ctx, wadriver.Config{SessionName: name})
	if err != nil {
		// Driver failure on creation is a lifecycle event, not a
		// caller error: the create was already accepted.
		m.reg.Remove(name)
		s.markClosed()
		m.log.Error("session connect failed", logx.String("session", name), logx.Err(err))
		m.notif.NotifyOperator(operatorID, fmt.Sprintf("Session %q failed to start: %v", name, err))
		return nil
	}
	if !s.setHandle(h) {
		// Destroyed while the dial was in flight. The handle must not
		// outlive the session, and the name is already free again.
		if err := h.Destroy(ctx); err != nil && !errors.Is(err, wadriver.ErrClosed) {
			m.log.Warn("driver destroy failed", logx.String("session", name), logx.Err(err))
		}
		m.log.Info("session destroyed before connect finished", logx.String("session", name))
		return nil
	}

	m.sup.Go0("session.pump."+name, func(c context.Context) {
		m.pump(c, s)
	})

	m.log.Info("session created", logx.String("session", name), logx.String("operator", operatorID))
	return nil
}

// pump consumes one session's event stream in arrival order. It is the
// only goroutine that mutates the session's lifecycle state after
// creation, which keeps the within-session ordering contract trivial.
func (m *Manager) pump(ctx context.Context, s *Session) {
	events := s.Handle().Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.handleLost(s, "event stream closed")
				return
			}
			// Events already in flight when the session was destroyed
			// are discarded, not processed.
			if s.isClosed() {
				return
			}
			switch ev.Kind {
			case wadriver.EventQR:
				s.setState(StateAwaitingQR)
				m.notif.NotifyOperator(s.operatorID, fmt.Sprintf(
					"Scan this code to connect WhatsApp session %q:\n\n%s\n\nWaiting for authentication...",
					s.name, ev.QR))
			case wadriver.EventReady:
				s.setState(StateReady)
				// Persistence failure is logged but does not demote the
				// session: availability of the running session beats
				// durability bookkeeping. It just won't survive restart.
				if err := m.store.SaveSession(ctx, s.name, s.operatorID); err != nil {
					m.log.Error("session not persisted", logx.String("session", s.name), logx.Err(err))
				}
				m.notif.NotifyOperator(s.operatorID, fmt.Sprintf("Session %q connected successfully.", s.name))
				m.poll.watch(s)
				m.publish(eventbus.TypeSessionReady, s.name)
			case wadriver.EventMessage:
				// Anyone who messages a session becomes a broadcast
				// subscriber of that session.
				if err := m.store.UpsertSubscriber(ctx, ev.From, s.name); err != nil {
					m.log.Warn("subscriber not recorded", logx.String("session", s.name), logx.Err(err))
				}
				// A slow handler must not stall this session's stream
				// (or anyone else's).
				from, body := ev.From, ev.Body
				m.sup.Go0("session.inbound."+s.name, func(c context.Context) {
					m.inbound.Handle(c, s, from, body)
				})
			case wadriver.EventDisconnected:
				m.handleLost(s, ev.Reason)
				return
			}
		}
	}
}

// handleLost performs the Disconnected transition exactly once:
// deregister, stop polling, log. No automatic reconnect; a fresh
// Create is the way back.
func (m *Manager) handleLost(s *Session, reason string) {
	if !s.markClosed() {
		return
	}
	m.reg.Remove(s.name)
	m.poll.unwatch(s.name)
	m.log.Warn("session disconnected", logx.String("session", s.name), logx.String("reason", reason))
	m.publish(eventbus.TypeSessionLost, s.name)
}

// Destroy tears down a live session and retires its durable record.
// Names not live in this process return ErrNotFound; durable storage
// is not consulted for the lookup.
func (m *Manager) Destroy(ctx context.Context, name string) error {
	return m.destroy(ctx, name, true)
}

func (m *Manager) destroy(ctx context.Context, name string, deactivate bool) error {
	s, ok := m.reg.Lookup(name)
	if !ok {
		return ErrNotFound
	}
	if s.markClosed() {
		m.reg.Remove(name)
		m.poll.unwatch(name)
		if h := s.Handle(); h != nil {
			if err := h.Destroy(ctx); err != nil && !errors.Is(err, wadriver.ErrClosed) {
				m.log.Warn("driver destroy failed", logx.String("session", name), logx.Err(err))
			}
		}
		if deactivate {
			if err := m.store.DeactivateSession(ctx, name); err != nil {
				m.log.Warn("session record not deactivated", logx.String("session", name), logx.Err(err))
			}
		}
		m.log.Info("session destroyed", logx.String("session", name))
	}
	return nil
}

// Names lists the sessions currently live in this process.
func (m *Manager) Names() []string {
	return m.reg.Names()
}

// Lookup exposes a session's current state for status displays.
func (m *Manager) Lookup(name string) (State, bool) {
	s, ok := m.reg.Lookup(name)
	if !ok {
		return StateDisconnected, false
	}
	return s.State(), true
}

// Recover replays the durable session records through Create. One
// record failing does not stop the others; this is the partial-failure
// isolation the restart path needs.
func (m *Manager) Recover(ctx context.Context) {
	recs, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		m.log.Error("session recovery: listing failed", logx.Err(err))
		return
	}
	m.log.Info("recovering sessions", logx.Int("count", len(recs)))
	for _, rec := range recs {
		if err := m.Create(ctx, rec.Name, rec.OperatorID); err != nil {
			m.log.Error("session recovery failed", logx.String("session", rec.Name), logx.Err(err))
		}
	}
}

func (m *Manager) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
