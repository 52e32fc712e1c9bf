package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "wabot/internal/transport"
	logx "wabot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []kit.Notification
	fail  int // fail this many sends before succeeding
	calls int

	ch chan struct{}

	// When set, SendText signals entered and then blocks until block
	// closes. Lets tests hold a worker mid-delivery.
	entered chan struct{}
	block   chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{ch: make(chan struct{}, 64)}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return kit.MessageRef{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, kit.Notification{Target: to, Text: text, Options: opt})
	select {
	case f.ch <- struct{}{}:
	default:
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) SendPhoto(context.Context, kit.ChatTarget, kit.FileRef, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) SendVideo(context.Context, kit.ChatTarget, kit.FileRef, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) awaitSend(t *testing.T) kit.Notification {
	t.Helper()
	select {
	case <-f.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func startService(t *testing.T, ad *fakeAdapter, cfg Config) *Service {
	t.Helper()
	s := New(cfg, ad, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.Stop(sctx)
		scancel()
		cancel()
	})
	return s
}

func TestNotifyOperatorDelivers(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	s := startService(t, ad, Config{RatePerSec: 100})

	s.NotifyOperator("12345", "session ready")

	n := ad.awaitSend(t)
	if n.Target.ChatID != 12345 || n.Text != "session ready" {
		t.Fatalf("delivered %+v", n)
	}
}

func TestNotifyOperatorBadIDDropped(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	s := startService(t, ad, Config{RatePerSec: 100})

	s.NotifyOperator("not-a-chat-id", "hello")

	time.Sleep(100 * time.Millisecond)
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.calls != 0 {
		t.Fatalf("bad operator id reached the adapter")
	}
}

func TestDeliveryRetries(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.fail = 2
	s := startService(t, ad, Config{
		RatePerSec: 100,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
	})

	s.NotifyOperator("100", "retry me")

	n := ad.awaitSend(t)
	if n.Text != "retry me" {
		t.Fatalf("delivered %+v", n)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + 1 success)", ad.calls)
	}
}

func TestNotifyBeforeStartIsRejected(t *testing.T) {
	t.Parallel()
	s := New(Config{}, newFakeAdapter(), logx.Nop())
	if err := s.Notify(kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("got %v, want ErrStopped", err)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.entered = make(chan struct{}, 8)
	ad.block = make(chan struct{})
	s := startService(t, ad, Config{QueueSize: 1, Workers: 1, RatePerSec: 100})

	// First notification occupies the only worker mid-delivery.
	if err := s.Notify(kit.Notification{Text: "first"}); err != nil {
		t.Fatalf("first notify: %v", err)
	}
	select {
	case <-ad.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never picked up the first notification")
	}

	// Second fills the single queue slot, third must be rejected.
	if err := s.Notify(kit.Notification{Text: "second"}); err != nil {
		t.Fatalf("second notify: %v", err)
	}
	if err := s.Notify(kit.Notification{Text: "third"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
	close(ad.block)
}
