// Package app assembles the process: config, logging, storage, the
// Telegram transport, the session core, and the command router.
package app

import (
	"context"
	"time"

	"wabot/internal/catalog"
	"wabot/internal/config"
	"wabot/internal/eventbus"
	"wabot/internal/media"
	"wabot/internal/notifier"
	"wabot/internal/observability/ops"
	rtsup "wabot/internal/runtime/supervisor"
	"wabot/internal/session"
	"wabot/internal/storage"
	kit "wabot/internal/transport"
	telegram "wabot/internal/transport/telegram/adapter"
	"wabot/internal/transport/telegram/router"
	"wabot/internal/wadriver/wweb"
	logx "wabot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	manager *session.Manager
	dl      *media.Downloader
	router  *router.Router
	ops     *ops.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	dialTimeout, err := config.ParseDurationOrDefault("bridge.dial_timeout", cfg.Bridge.DialTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	factory, err := wweb.NewFactory(wweb.Config{
		URL:         cfg.Bridge.URL,
		DialTimeout: dialTimeout,
	}, logSvc.Logger().With(logx.String("comp", "bridge")))
	if err != nil {
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, logSvc.Logger().With(logx.String("comp", "notifier")))

	catCfg, err := mapCatalogConfig(cfg)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(catCfg, logSvc.Logger().With(logx.String("comp", "catalog")))

	mediaCfg, err := mapMediaConfig(cfg)
	if err != nil {
		return nil, err
	}
	dl := media.New(mediaCfg, logSvc.Logger().With(logx.String("comp", "media")))

	bus := eventbus.New()

	sessCfg, err := mapSessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	inbound := session.NewInbound(cat, dl, logSvc.Logger().With(logx.String("comp", "inbound")))
	manager := session.NewManager(sessCfg, factory, store, notifSvc, inbound, bus,
		logSvc.Logger().With(logx.String("comp", "session")))

	opsSvc := ops.New(mapOpsConfig(cfg), manager.Names,
		logSvc.Logger().With(logx.String("comp", "ops")))

	rt := router.New(
		logSvc.Logger().With(logx.String("comp", "commands")),
		ad,
		&router.Deps{Manager: manager, Store: store, Catalog: cat, Media: dl},
		cfg.Telegram.AdminUserIDs,
	)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notifSvc,
		manager: manager,
		dl:      dl,
		router:  rt,
		ops:     opsSvc,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.manager.Start(a.sup.Context())
	if err := a.ops.Start(a.sup.Context()); err != nil {
		return err
	}

	// Recovery runs in the background; a slow bridge must not delay the
	// command surface coming up.
	a.sup.Go0("session.recover", func(c context.Context) {
		a.manager.Recover(c)
	})

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		err := a.cfgm.Watch(c)
		if c.Err() != nil {
			return nil
		}
		return err
	})

	// Hot reload: only logging applies live. Everything else requires a
	// restart and says so.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded; non-logging changes take effect after restart")
			}
		}
	})

	a.sup.Go0("media.sweep", func(c context.Context) {
		t := time.NewTicker(30 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if err := a.dl.Sweep(c); err != nil && c.Err() == nil {
					a.log.Warn("media sweep failed", logx.Err(err))
				}
			}
		}
	})

	// Lifecycle events are also visible in the log stream at debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	a.log.Info("stopping")

	// Health goes dark before teardown starts. Sessions next: their
	// teardown still wants the notifier and the adapter alive.
	a.ops.Stop(ctx)
	a.manager.Stop(ctx)
	a.notif.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}
