// Package router dispatches Telegram commands to the session fleet,
// the media downloader, and the anime catalog.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "wabot/internal/runtime/supervisor"
	kit "wabot/internal/transport"
	logx "wabot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
	Deps    *Deps
}

// OperatorID is the durable identity the rest of the system keys
// operators by.
func (r *Request) OperatorID() string {
	return strconv.FormatInt(r.FromID, 10)
}

type Router struct {
	mu   sync.RWMutex
	cmds map[string]Command

	admins  []int64
	log     logx.Logger
	adapter kit.Adapter
	deps    *Deps

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, deps *Deps, admins []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:    map[string]Command{},
		admins:  append([]int64(nil), admins...),
		log:     log,
		adapter: adapter,
		deps:    deps,
		jobs:    make(chan func(), 256),
	}
	r.register(r.commands())
	return r
}

func (r *Router) register(cmds []Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		r.cmds[c.Name] = c
	}
}

func (r *Router) adminsSnapshot() []int64 {
	r.mu.RLock()
	cp := append([]int64(nil), r.admins...)
	r.mu.RUnlock()
	return cp
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel
// being closed during shutdown).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is canceled or the channel
// closes. Handlers run on a bounded worker pool so one slow command
// never blocks the next.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; keep the worker
					// alive regardless.
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.routeMessage(ctx, up)
		}
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	r.mu.RLock()
	cmd, ok := r.cmds[strings.ToLower(word)]
	r.mu.RUnlock()
	if !ok {
		// Groups see plenty of slash commands meant for other bots.
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID}, "Unknown command. Try /help", nil)
		}
		return
	}

	admins := r.adminsSnapshot()
	if cmd.Access == AccessAdminOnly && !isAdmin(msg.FromID, admins) {
		_, _ = r.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID}, "unauthorized", nil)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		Deps: r.deps,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)

	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = r.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func isAdmin(id int64, admins []int64) bool {
	for _, a := range admins {
		if a == id {
			return true
		}
	}
	return false
}
