package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"server": {"addr": ":8080"},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false}},
		"openai": {"api_key": "sk-test", "chat_model": "gpt-5"},
		"tiktok": {"bridge_url": "ws://localhost:9301"},
		"promo": {"idle_window": "3m"},
		"usage": {"token_limit": 1000000}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.OpenAI.ChatModel != "gpt-5" {
		t.Fatalf("chat model = %q", cfg.OpenAI.ChatModel)
	}
	if cfg.Usage.TokenLimit != 1000000 {
		t.Fatalf("token limit = %d", cfg.Usage.TokenLimit)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server:
  addr: ":9090"
logging:
  level: info
  console: true
  file:
    enabled: false
openai:
  api_key: sk-test
tiktok:
  bridge_url: ws://bridge:9301
  session_id: abc
promo:
  idle_window: 90s
usage:
  token_limit: 5000
notifier:
  enabled: true
  token: "123:abc"
  chat_id: -100123
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.TikTok.SessionID != "abc" {
		t.Fatalf("session id = %q", cfg.TikTok.SessionID)
	}
	if cfg.Notifier == nil || cfg.Notifier.ChatID != -100123 {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	d, err := ParseDurationOrDefault("promo.idle_window", cfg.Promo.IdleWindow, 0)
	if err != nil || d.Seconds() != 90 {
		t.Fatalf("idle window = %v err=%v", d, err)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"server": {"addr": ":1"}, "logging": {"level":"info","console":true,"file":{"enabled":false}}, "openai": {"api_key":"x"}, "tiktok": {"bridge_url":"ws://x"}, "promo": {}, "usage": {}, "bogus": 1}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration should be rejected")
	}
	d, err := ParseDurationField("x", "")
	if err != nil || d != 0 {
		t.Fatalf("empty duration: %v %v", d, err)
	}
}
