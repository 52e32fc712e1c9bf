package app

import (
	"time"

	"wabot/internal/catalog"
	"wabot/internal/config"
	"wabot/internal/media"
	"wabot/internal/notifier"
	"wabot/internal/observability/ops"
	"wabot/internal/session"
)

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	interval, err := config.ParseDurationOrDefault("session.status_poll_interval", cfg.Session.StatusPollInterval, 30*time.Second)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		StatusPollInterval:  interval,
		AutoView:            cfg.Session.AutoView,
		BroadcastRatePerSec: cfg.Session.BroadcastRatePerSec,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	var out notifier.Config
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	out.Workers = n.Workers
	out.QueueSize = n.QueueSize
	out.RatePerSec = n.RatePerSec
	out.RetryMax = n.RetryMax

	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return out, err
	}
	return out, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	var out ops.Config
	if o := cfg.Ops; o != nil {
		out.Enabled = o.Enabled
		out.Addr = o.Addr
	}
	return out
}

func mapCatalogConfig(cfg *config.Config) (catalog.Config, error) {
	var out catalog.Config
	c := cfg.Catalog
	if c == nil {
		return out, nil
	}
	out.BaseURL = c.BaseURL

	var err error
	if out.Timeout, err = config.ParseDurationField("catalog.timeout", c.Timeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapMediaConfig(cfg *config.Config) (media.Config, error) {
	var out media.Config
	m := cfg.Media
	if m == nil {
		return out, nil
	}
	out.Dir = m.Dir
	out.Binary = m.Binary

	var err error
	if out.Timeout, err = config.ParseDurationField("media.timeout", m.Timeout); err != nil {
		return out, err
	}
	if out.KeepFor, err = config.ParseDurationField("media.keep_for", m.KeepFor); err != nil {
		return out, err
	}
	return out, nil
}
