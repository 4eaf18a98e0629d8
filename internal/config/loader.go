package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/crier/crier.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "crier", "crier.yaml"))
	}

	paths = append(paths, "crier.yaml")

	if envPath := os.Getenv("CRIER_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/crier/crier.yaml < ~/.config/crier/crier.yaml < ./crier.yaml < $CRIER_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if secret := os.Getenv("CRIER_SIGNING_SECRET"); secret != "" {
		cfg.Auth.SigningSecret = secret
	}
	if url := os.Getenv("CRIER_REDIS_URL"); url != "" {
		cfg.Hub.RedisURL = url
	}
	if token := os.Getenv("CRIER_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.AuthToken = token
	}
	if token := os.Getenv("CRIER_TOKEN"); token != "" {
		cfg.Client.Token = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !strings.HasPrefix(cfg.Hub.Path, "/") {
		return fmt.Errorf("hub.path must start with /, got %q", cfg.Hub.Path)
	}

	if cfg.Hub.SendBufferSize < 1 {
		return fmt.Errorf("hub.send_buffer_size must be at least 1")
	}

	if cfg.Client.MaxAttempts < 1 {
		return fmt.Errorf("client.max_attempts must be at least 1")
	}

	if cfg.Client.BackoffBase <= 0 || cfg.Client.BackoffCap < cfg.Client.BackoffBase {
		return fmt.Errorf("client.backoff_cap (%s) must be >= client.backoff_base (%s) > 0",
			cfg.Client.BackoffCap, cfg.Client.BackoffBase)
	}

	if cfg.Tunnel.Enabled && cfg.Tunnel.AuthToken == "" {
		return fmt.Errorf("tunnel.authtoken is required when the tunnel is enabled")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.SecretDir = ExpandHome(cfg.Auth.SecretDir)
	cfg.Client.TokenFile = ExpandHome(cfg.Client.TokenFile)

	return nil
}
