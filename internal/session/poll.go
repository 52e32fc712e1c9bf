package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wabot/internal/storage"
	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

// poller runs the fixed-interval status probe for each ready session.
// One cron entry per watched session; entries are added on ready and
// removed on teardown.
type poller struct {
	ctx      context.Context
	interval time.Duration
	autoView bool
	reg      *Registry
	store    storage.Store
	log      logx.Logger

	cr *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	closed  bool
}

func newPoller(ctx context.Context, interval time.Duration, autoView bool, reg *Registry, store storage.Store, log logx.Logger) *poller {
	return &poller{
		ctx:      ctx,
		interval: interval,
		autoView: autoView,
		reg:      reg,
		store:    store,
		log:      log,
		cr:       cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
}

func (p *poller) run() { p.cr.Start() }

func (p *poller) close() {
	p.mu.Lock()
	p.closed = true
	p.entries = make(map[string]cron.EntryID)
	p.mu.Unlock()
	<-p.cr.Stop().Done()
}

// watch schedules the probe for a session. Idempotent: a session
// already watched keeps its existing entry.
func (p *poller) watch(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.entries[s.name]; ok {
		return
	}
	id, err := p.cr.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.probe(s)
	})
	if err != nil {
		p.log.Error("status poll schedule failed", logx.String("session", s.name), logx.Err(err))
		return
	}
	p.entries[s.name] = id
}

// unwatch removes a session's probe entry. Removing a name that is not
// watched is a no-op.
func (p *poller) unwatch(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.entries[name]
	if !ok {
		return
	}
	delete(p.entries, name)
	p.cr.Remove(id)
}

// probe fetches pending status updates for one session and records a
// view row for each. Results from a probe that raced a teardown are
// discarded, never recorded.
func (p *poller) probe(s *Session) {
	if s.isClosed() {
		return
	}
	h := s.Handle()
	prober, ok := h.(wadriver.StatusProber)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	defer cancel()

	statuses, err := prober.ProbeStatus(ctx)
	if err != nil {
		if s.isClosed() {
			return
		}
		p.log.Warn("status probe failed", logx.String("session", s.name), logx.Err(err))
		return
	}
	if s.isClosed() {
		return
	}
	for _, st := range statuses {
		if err := p.store.AppendStatusView(ctx, s.name, st.ID); err != nil {
			p.log.Warn("status view not recorded",
				logx.String("session", s.name),
				logx.String("status", st.ID),
				logx.Err(err))
			continue
		}
		p.log.Debug("status seen",
			logx.String("session", s.name),
			logx.String("from", st.From),
			logx.Bool("auto_view", p.autoView))
	}
}
