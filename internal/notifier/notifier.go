// Package notifier delivers short operator-facing notices over the
// chat transport: pairing prompts, session outcomes, failure notices.
//
// Delivery is fire-and-forget: enqueue failures and send failures are
// logged, never propagated to the code path that triggered the notice.
package notifier

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rtsup "wabot/internal/runtime/supervisor"
	kit "wabot/internal/transport"
	logx "wabot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + bounded retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan kit.Notification
	sup       *rtsup.Supervisor
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	// Burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan kit.Notification, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		name := "worker." + strconv.Itoa(i)
		sup.Go0(name, func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case n, ok := <-q:
					if !ok {
						return
					}
					s.deliver(c, n)
				}
			}
		})
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.accepting = false
	sup := s.sup
	s.sup = nil
	s.queue = nil
	s.mu.Unlock()

	if sup != nil {
		_ = sup.Stop(ctx)
	}
}

// NotifyOperator enqueues a plain-text notice for the operator. The
// operator id is the Telegram chat id in decimal string form, as
// persisted in storage.
func (s *Service) NotifyOperator(operatorID, text string) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(operatorID), 10, 64)
	if err != nil {
		s.log.Warn("notify skipped: bad operator id", logx.String("operator", operatorID))
		return
	}
	n := kit.Notification{Target: kit.ChatTarget{ChatID: chatID}, Text: text}
	if err := s.Notify(n); err != nil {
		s.log.Warn("notify dropped", logx.String("operator", operatorID), logx.Err(err))
	}
}

// Notify enqueues a notification without blocking.
func (s *Service) Notify(n kit.Notification) error {
	s.mu.Lock()
	q := s.queue
	accepting := s.accepting
	s.mu.Unlock()

	if q == nil || !accepting {
		return ErrStopped
	}
	select {
	case q <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) deliver(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	lim := s.limiter
	retryMax := s.cfg.RetryMax
	base := s.cfg.RetryBase
	maxDelay := s.cfg.RetryMaxDelay
	s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			delay := base << (attempt - 1)
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		if err := lim.Wait(ctx); err != nil {
			return
		}
		_, lastErr = s.adapter.SendText(ctx, n.Target, n.Text, n.Options)
		if lastErr == nil {
			return
		}
	}
	s.log.Warn("notification failed",
		logx.Int64("chat_id", n.Target.ChatID),
		logx.Int("attempts", retryMax+1),
		logx.Err(lastErr),
	)
}
