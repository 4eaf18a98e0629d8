package config

import "time"

// Config is the root configuration for crier.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Hub      HubConfig      `yaml:"hub"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Client   ClientConfig   `yaml:"client"`
	Tunnel   TunnelConfig   `yaml:"tunnel"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

// AuthConfig configures bearer credential verification. Tokens are issued
// elsewhere; crier only checks the HMAC signature and reads the subject.
type AuthConfig struct {
	SigningSecret string        `yaml:"signing_secret"`
	SecretDir     string        `yaml:"secret_dir"`
	Issuer        string        `yaml:"issuer"`
	DevTokenTTL   time.Duration `yaml:"dev_token_ttl"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type HubConfig struct {
	Path           string `yaml:"path"`
	SendBufferSize int    `yaml:"send_buffer_size"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	RedisURL       string `yaml:"redis_url"`
	RedisChannel   string `yaml:"redis_channel"`
}

type TasksConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

// ClientConfig drives the `listen` command: the live notification client.
type ClientConfig struct {
	HubURL         string        `yaml:"hub_url"`
	APIURL         string        `yaml:"api_url"`
	Token          string        `yaml:"token"`
	TokenFile      string        `yaml:"token_file"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ToastTTL       time.Duration `yaml:"toast_ttl"`
	DedupWindow    time.Duration `yaml:"dedup_window"`
	ReconcileDelay time.Duration `yaml:"reconcile_delay"`
}

type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8430,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			SecretDir:   "~/.config/crier",
			Issuer:      "crier",
			DevTokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:          "~/.config/crier/crier.db",
			RetentionDays: 90,
		},
		Hub: HubConfig{
			Path:           "/hub/notifications",
			SendBufferSize: 64,
			MaxMessageSize: 64 * 1024,
			RedisChannel:   "crier:notifications",
		},
		Tasks: TasksConfig{
			ExpiryInterval: time.Minute,
		},
		Client: ClientConfig{
			HubURL:         "ws://127.0.0.1:8430/hub/notifications",
			APIURL:         "http://127.0.0.1:8430",
			BackoffBase:    time.Second,
			BackoffCap:     30 * time.Second,
			MaxAttempts:    5,
			ToastTTL:       6 * time.Second,
			DedupWindow:    2 * time.Second,
			ReconcileDelay: 1500 * time.Millisecond,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
