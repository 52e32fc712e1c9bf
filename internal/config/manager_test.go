package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
telegram:
  token: "123:abc"
  admin_user_ids: [100]
storage:
  path: ./bot.db
bridge:
  url: ws://127.0.0.1:8055/ws
logging:
  level: INFO
  console: true
session:
  status_poll_interval: 45s
  broadcast_rate_per_sec: 7
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", minimalYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminUserIDs) != 1 || cfg.Telegram.AdminUserIDs[0] != 100 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Session.StatusPollInterval != "45s" || cfg.Session.BroadcastRatePerSec != 7 {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	body := `{
  "telegram": {"token": "123:abc"},
  "storage": {"path": "./bot.db"},
  "bridge": {"url": "ws://127.0.0.1:8055/ws"}
}`
	m := NewConfigManager(writeConfig(t, "config.json", body))
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	body := minimalYAML + "\nmystery_section:\n  x: 1\n"
	m := NewConfigManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"missing token", `
telegram:
  token: ""
storage:
  path: ./bot.db
bridge:
  url: ws://x/ws
`},
		{"missing storage path", `
telegram:
  token: "123:abc"
storage:
  path: ""
bridge:
  url: ws://x/ws
`},
		{"missing bridge url", `
telegram:
  token: "123:abc"
storage:
  path: ./bot.db
bridge:
  url: ""
`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeConfig(t, "config.yaml", tc.body))
			if _, err := m.Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "  "); err != nil || d != 0 {
		t.Fatalf("empty: %v %v", d, err)
	}
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("1m30s: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatalf("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 30*time.Second); err != nil || d != 30*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "5s", 30*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("explicit: %v %v", d, err)
	}
}
