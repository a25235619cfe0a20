package config

// Config is the root configuration document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "3m").
// Files may be JSON or YAML; both are decoded strictly (unknown fields
// are rejected).
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	OpenAI OpenAIConfig `json:"openai"`
	TikTok TikTokConfig `json:"tiktok"`

	Promo PromoConfig `json:"promo"`
	Usage UsageConfig `json:"usage"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Debug    *DebugConfig    `json:"debug,omitempty"`
}

// DebugConfig controls the optional pprof server. Binding beyond
// loopback requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

type ServerConfig struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `json:"addr"`
	// ShutdownTimeout bounds graceful shutdown. Default "10s".
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
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

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	// ChatModel defaults to "gpt-5".
	ChatModel string `json:"chat_model,omitempty"`
	// SpeechModel defaults to "gpt-4o-mini-tts".
	SpeechModel string `json:"speech_model,omitempty"`
	// Timeout bounds one collaborator call. Default "30s".
	Timeout string `json:"timeout,omitempty"`
}

type TikTokConfig struct {
	// BridgeURL is the ws:// base URL of the live-connector bridge sidecar.
	BridgeURL string `json:"bridge_url"`
	SessionID string `json:"session_id,omitempty"`
	// HandshakeTimeout bounds session dialing. Default "15s".
	HandshakeTimeout string `json:"handshake_timeout,omitempty"`
}

type PromoConfig struct {
	// IdleWindow is the chat silence after which a product line is spoken.
	// Default "3m".
	IdleWindow string `json:"idle_window,omitempty"`
}

type UsageConfig struct {
	// TokenLimit caps completion tokens per accounting day. 0 means unlimited.
	TokenLimit int64 `json:"token_limit,omitempty"`
	// ResetCron is the rollover schedule. Default "0 0 * * *" (midnight).
	ResetCron string `json:"reset_cron,omitempty"`
	// Timezone for the rollover schedule (IANA name, e.g. "Asia/Jakarta").
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the optional Telegram ops sink.
// If the whole section is omitted, the notifier is disabled.
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig configures catalog/settings persistence.
//
// Driver values:
//   - "file": dependency-free JSON snapshot file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and state is
// memory-only.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
