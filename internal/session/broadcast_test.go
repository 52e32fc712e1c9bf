package session

import (
	"context"
	"errors"
	"testing"

	"wabot/internal/storage"
	"wabot/internal/wadriver"
)

func readySession(t *testing.T, m *Manager, factory *fakeFactory, notif *recNotifier, name string) *fakeHandle {
	t.Helper()
	if err := m.Create(context.Background(), name, "100"); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	h := factory.handle(name)
	h.events <- wadriver.Event{Kind: wadriver.EventReady}
	notif.await(t)
	awaitState(t, m, name, StateReady)
	return h
}

func TestBroadcastFansOutPerSubscriberSession(t *testing.T) {
	t.Parallel()
	factory := newFakeFactory()
	store := newFakeStore()
	notif := newRecNotifier()
	m := newTestManager(t, factory, store, notif)

	h1 := readySession(t, m, factory, notif, "alpha")
	h2 := readySession(t, m, factory, notif, "beta")

	store.mu.Lock()
	store.subscribers = []storage.Subscriber{
		{Address: "111@c.us", SessionName: "alpha"},
		{Address: "222@c.us", SessionName: "alpha"},
		{Address: "333@c.us", SessionName: "beta"},
		{Address: "444@c.us", SessionName: "gone"}, // no such session
	}
	store.mu.Unlock()

	res, err := m.Broadcast(context.Background(), "hello all", nil)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Sessions != 2 {
		t.Fatalf("attempted sessions = %d, want 2", res.Sessions)
	}
	if res.Delivered != 3 || res.Failed != 0 || res.Skipped != 1 {
		t.Fatalf("delivered/failed/skipped = %d/%d/%d", res.Delivered, res.Failed, res.Skipped)
	}
	if h1.sentCount() != 2 || h2.sentCount() != 1 {
		t.Fatalf("sends per session = %d/%d", h1.sentCount(), h2.sentCount())
	}
}

func TestBroadcastSkipsNotReadySessions(t *testing.T) {
	t.Parallel()
	factory := newFakeFactory()
	store := newFakeStore()
	notif := newRecNotifier()
	m := newTestManager(t, factory, store, notif)

	// Session exists but is still pairing.
	if err := m.Create(context.Background(), "alpha", "100"); err != nil {
		t.Fatalf("create: %v", err)
	}
	factory.handle("alpha").events <- wadriver.Event{Kind: wadriver.EventQR, QR: "token"}
	notif.await(t)

	store.mu.Lock()
	store.subscribers = []storage.Subscriber{{Address: "111@c.us", SessionName: "alpha"}}
	store.mu.Unlock()

	res, err := m.Broadcast(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Sessions != 0 || res.Skipped != 1 {
		t.Fatalf("sessions/skipped = %d/%d, want 0/1", res.Sessions, res.Skipped)
	}
}

func TestBroadcastRecipientFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	factory := newFakeFactory()
	store := newFakeStore()
	notif := newRecNotifier()
	m := newTestManager(t, factory, store, notif)

	h := readySession(t, m, factory, notif, "alpha")
	h.mu.Lock()
	h.sendErr = map[string]error{"222@c.us": errors.New("recipient rejected")}
	h.mu.Unlock()

	store.mu.Lock()
	store.subscribers = []storage.Subscriber{
		{Address: "111@c.us", SessionName: "alpha"},
		{Address: "222@c.us", SessionName: "alpha"},
		{Address: "333@c.us", SessionName: "alpha"},
	}
	store.mu.Unlock()

	res, err := m.Broadcast(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Delivered != 2 || res.Failed != 1 {
		t.Fatalf("delivered/failed = %d/%d, want 2/1", res.Delivered, res.Failed)
	}
	if res.Sessions != 1 {
		t.Fatalf("attempted sessions = %d, want 1", res.Sessions)
	}
}

func TestBroadcastListingFailure(t *testing.T) {
	t.Parallel()
	factory := newFakeFactory()
	store := newFakeStore()
	store.subsErr = errors.New("db locked")
	m := newTestManager(t, factory, store, newRecNotifier())

	if _, err := m.Broadcast(context.Background(), "hello", nil); err == nil {
		t.Fatalf("expected listing error to surface")
	}
}
