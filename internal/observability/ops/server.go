// Package ops serves the operational HTTP surface: a health check
// reporting that the bot is running and which sessions are live.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	logx "wabot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string // default 127.0.0.1:3000
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:3000"
	}
	return c
}

// Service manages lifecycle for the ops HTTP listener.
type Service struct {
	log      logx.Logger
	cfg      Config
	sessions func() []string

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// New builds the service. sessions supplies the live session names for
// the health payload; nil reports none.
func New(cfg Config, sessions func() []string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sessions == nil {
		sessions = func() []string { return nil }
	}
	return &Service{log: log, cfg: cfg.withDefaults(), sessions: sessions}
}

// Start binds the listener and serves in the background. A disabled
// config is a no-op; a bind failure is returned to the caller so a bad
// addr surfaces at startup, not in a log nobody reads.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server failed", logx.Err(err))
		}
	}()
	s.log.Info("ops server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address, empty when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := s.sessions()
	sort.Strings(names)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status   string   `json:"status"`
		Message  string   `json:"message"`
		Sessions []string `json:"sessions"`
	}{
		Status:   "ok",
		Message:  "Bot is running",
		Sessions: names,
	})
}
