package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"wabot/internal/session"
	"wabot/internal/storage"
	kit "wabot/internal/transport"
	"wabot/internal/wadriver"
	logx "wabot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{ch: make(chan string, 64)}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	select {
	case f.ch <- text:
	default:
	}
	return kit.MessageRef{MessageID: 1}, nil
}

func (f *fakeAdapter) SendPhoto(context.Context, kit.ChatTarget, kit.FileRef, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) SendVideo(context.Context, kit.ChatTarget, kit.FileRef, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) awaitText(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a reply")
		return ""
	}
}

func (f *fakeAdapter) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case s := <-f.ch:
		t.Fatalf("unexpected reply: %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

type stubHandle struct {
	events chan wadriver.Event
	once   sync.Once
}

func (h *stubHandle) Events() <-chan wadriver.Event { return h.events }
func (h *stubHandle) Send(context.Context, string, string, *wadriver.Attachment) error {
	return nil
}
func (h *stubHandle) Destroy(context.Context) error {
	h.once.Do(func() { close(h.events) })
	return nil
}

type stubFactory struct{}

func (stubFactory) Connect(context.Context, wadriver.Config) (wadriver.Handle, error) {
	return &stubHandle{events: make(chan wadriver.Event)}, nil
}

type memStore struct {
	mu         sync.Mutex
	operators  map[string]storage.Operator
	sessions   map[string]string
	subscribed []storage.Operator
}

func newMemStore() *memStore {
	return &memStore{operators: map[string]storage.Operator{}, sessions: map[string]string{}}
}

func (s *memStore) SaveSession(_ context.Context, name, op string) error {
	s.mu.Lock()
	s.sessions[name] = op
	s.mu.Unlock()
	return nil
}
func (s *memStore) DeactivateSession(context.Context, string) error { return nil }
func (s *memStore) ListActiveSessions(context.Context) ([]storage.SessionRecord, error) {
	return nil, nil
}
func (s *memStore) ListSessionsByOperator(_ context.Context, op string) ([]storage.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.SessionRecord
	for name, owner := range s.sessions {
		if owner == op {
			out = append(out, storage.SessionRecord{Name: name, OperatorID: owner, Active: true})
		}
	}
	return out, nil
}
func (s *memStore) UpsertOperator(_ context.Context, op storage.Operator) error {
	s.mu.Lock()
	s.operators[op.ID] = op
	s.mu.Unlock()
	return nil
}
func (s *memStore) ListSubscribedOperators(context.Context) ([]storage.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Operator(nil), s.subscribed...), nil
}
func (s *memStore) UpsertSubscriber(context.Context, string, string) error { return nil }
func (s *memStore) ListSubscribers(context.Context) ([]storage.Subscriber, error) {
	return nil, nil
}
func (s *memStore) AppendStatusView(context.Context, string, string) error { return nil }
func (s *memStore) Close() error                                           { return nil }

type nopNotifier struct{}

func (nopNotifier) NotifyOperator(string, string) {}

func startRouter(t *testing.T, admins []int64) (*fakeAdapter, *memStore, chan<- kit.Update) {
	t.Helper()
	ad := newFakeAdapter()
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	m := session.NewManager(session.Config{}, stubFactory{}, store, nopNotifier{},
		session.NewInbound(nil, nil, logx.Nop()), nil, logx.Nop())
	m.Start(ctx)

	r := New(logx.Nop(), ad, &Deps{Manager: m, Store: store}, admins)
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		m.Stop(sctx)
		scancel()
		cancel()
		<-done
	})
	return ad, store, updates
}

func msg(fromID int64, text string, group bool) kit.Update {
	return kit.Update{Message: &kit.Message{
		ID:           1,
		ChatID:       fromID,
		FromID:       fromID,
		FromUsername: "alice",
		FromName:     "Alice",
		Text:         text,
		IsGroup:      group,
	}}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	ad, _, updates := startRouter(t, nil)

	updates <- msg(100, "/help", false)

	got := ad.awaitText(t)
	for _, want := range []string{"/newsession", "/sessions", "/dl", "/anime"} {
		if !strings.Contains(got, want) {
			t.Fatalf("help missing %q:\n%s", want, got)
		}
	}
	// Admin-only commands are hidden from non-admins.
	if strings.Contains(got, "/broadcast") {
		t.Fatalf("non-admin help shows /broadcast:\n%s", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	ad, _, updates := startRouter(t, nil)

	updates <- msg(100, "/bogus", false)
	if got := ad.awaitText(t); !strings.Contains(got, "Unknown command") {
		t.Fatalf("got %q", got)
	}

	// In groups, foreign slash commands stay silent.
	updates <- msg(100, "/bogus", true)
	ad.expectSilence(t)

	// Plain chatter never draws a reply.
	updates <- msg(100, "hello there", false)
	ad.expectSilence(t)
}

func TestBroadcastRequiresAdmin(t *testing.T) {
	t.Parallel()
	ad, _, updates := startRouter(t, []int64{999})

	updates <- msg(100, "/broadcast hi all", false)
	if got := ad.awaitText(t); got != "unauthorized" {
		t.Fatalf("got %q", got)
	}
}

func TestBroadcastBodyDropsBotMention(t *testing.T) {
	t.Parallel()
	ad, store, updates := startRouter(t, []int64{100})
	store.mu.Lock()
	store.subscribed = []storage.Operator{{ID: "200", Subscribed: true}}
	store.mu.Unlock()

	updates <- msg(100, "/broadcast@mybot hello  everyone", false)

	// The operator delivery carries the body, then the summary follows.
	if got := ad.awaitText(t); got != "hello  everyone" {
		t.Fatalf("broadcast body = %q, want the mention stripped", got)
	}
	if got := ad.awaitText(t); !strings.Contains(got, "Telegram: 1 sent") {
		t.Fatalf("summary = %q", got)
	}
}

func TestStartRegistersOperator(t *testing.T) {
	t.Parallel()
	ad, store, updates := startRouter(t, nil)

	updates <- msg(100, "/start", false)
	if got := ad.awaitText(t); !strings.Contains(got, "Welcome") {
		t.Fatalf("got %q", got)
	}
	store.mu.Lock()
	op, ok := store.operators["100"]
	store.mu.Unlock()
	if !ok || op.Username != "alice" {
		t.Fatalf("operator record = %+v, %v", op, ok)
	}
}

func TestNewSessionFlow(t *testing.T) {
	t.Parallel()
	ad, _, updates := startRouter(t, nil)

	updates <- msg(100, "/newsession work", false)
	if got := ad.awaitText(t); !strings.Contains(got, "Starting session") {
		t.Fatalf("got %q", got)
	}

	updates <- msg(100, "/newsession work", false)
	if got := ad.awaitText(t); !strings.Contains(got, "already exists") {
		t.Fatalf("got %q", got)
	}

	updates <- msg(100, "/status", false)
	if got := ad.awaitText(t); !strings.Contains(got, "work") {
		t.Fatalf("status missing session: %q", got)
	}

	updates <- msg(100, "/destroysession work", false)
	if got := ad.awaitText(t); !strings.Contains(got, "destroyed") {
		t.Fatalf("got %q", got)
	}
	updates <- msg(100, "/destroysession work", false)
	if got := ad.awaitText(t); !strings.Contains(got, "No live session") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandNameIsCaseInsensitiveAndStripsBotSuffix(t *testing.T) {
	t.Parallel()
	ad, _, updates := startRouter(t, nil)

	updates <- msg(100, "/HELP", false)
	if got := ad.awaitText(t); !strings.Contains(got, "Commands:") {
		t.Fatalf("got %q", got)
	}
	updates <- msg(100, "/help@mybot", false)
	if got := ad.awaitText(t); !strings.Contains(got, "Commands:") {
		t.Fatalf("got %q", got)
	}
}
