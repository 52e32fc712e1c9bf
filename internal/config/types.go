package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Bridge   BridgeConfig   `json:"bridge"`
	Session  SessionConfig  `json:"session"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Catalog  *CatalogConfig  `json:"catalog,omitempty"`
	Media    *MediaConfig    `json:"media,omitempty"`
	Ops      *OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs may use /broadcast. Empty means nobody can.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the sqlite store holding durable session
// identity, operators, subscribers and status views.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// BridgeConfig points at the whatsapp-web bridge the session drivers
// connect through.
type BridgeConfig struct {
	// URL is the websocket endpoint of the bridge, e.g. "ws://127.0.0.1:8055/ws".
	URL string `json:"url"`

	DialTimeout string `json:"dial_timeout,omitempty"`
}

// SessionConfig controls the session lifecycle core.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type SessionConfig struct {
	// StatusPollInterval is how often each ready session probes for
	// remote status updates. Default "30s".
	StatusPollInterval string `json:"status_poll_interval,omitempty"`

	// AutoView gates automatic status viewing. Currently only the
	// polling/logging skeleton is wired; the auto action itself is an
	// unresolved extension point.
	AutoView bool `json:"auto_view,omitempty"`

	// BroadcastRatePerSec throttles fan-out sends across all sessions.
	// Default 5.
	BroadcastRatePerSec int `json:"broadcast_rate_per_sec,omitempty"`
}

// NotifierConfig controls the async operator notification pipeline.
// If the whole section is omitted, defaults apply.
type NotifierConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type CatalogConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default: https://api.jikan.moe/v4
	Timeout string `json:"timeout,omitempty"`
}

type MediaConfig struct {
	Dir     string `json:"dir,omitempty"`      // default: <tmpdir>/wabot-media
	Binary  string `json:"binary,omitempty"`   // default: yt-dlp
	Timeout string `json:"timeout,omitempty"`  // per-download, default "5m"
	KeepFor string `json:"keep_for,omitempty"` // sweep retention, default "1h"
}

// OpsConfig controls the operational HTTP surface (/health). Disabled
// unless the section enables it.
type OpsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default: 127.0.0.1:3000
}
