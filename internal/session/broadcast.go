package session

import (
	"context"

	"github.com/google/uuid"

	"wabot/internal/eventbus"
	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

// BroadcastResult summarizes one fan-out batch.
type BroadcastResult struct {
	Batch     string
	Sessions  int // distinct sessions a send was attempted through
	Delivered int
	Failed    int
	Skipped   int // recipients whose session was absent or not ready
}

// Broadcast sends body (and an optional attachment) to every stored
// subscriber through that subscriber's session. Delivery is best
// effort: one recipient failing never aborts the batch, and sessions
// that are absent or not ready are skipped, not errored. The only
// error returned is a subscriber-listing or context failure.
func (m *Manager) Broadcast(ctx context.Context, body string, att *wadriver.Attachment) (BroadcastResult, error) {
	res := BroadcastResult{Batch: uuid.NewString()}

	subs, err := m.store.ListSubscribers(ctx)
	if err != nil {
		return res, err
	}
	log := m.log.With(logx.String("batch", res.Batch))
	log.Info("broadcast started", logx.Int("recipients", len(subs)))

	attempted := make(map[string]struct{})
	for _, sub := range subs {
		s, ok := m.reg.Lookup(sub.SessionName)
		if !ok || s.State() != StateReady {
			res.Skipped++
			continue
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return res, err
		}
		attempted[sub.SessionName] = struct{}{}
		if err := s.Handle().Send(ctx, sub.Address, body, att); err != nil {
			res.Failed++
			log.Warn("broadcast send failed",
				logx.String("session", sub.SessionName),
				logx.String("to", sub.Address),
				logx.Err(err))
			continue
		}
		res.Delivered++
	}
	res.Sessions = len(attempted)

	log.Info("broadcast finished",
		logx.Int("sessions", res.Sessions),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", res.Failed),
		logx.Int("skipped", res.Skipped))
	m.publish(eventbus.TypeBroadcast, res)
	return res, nil
}
