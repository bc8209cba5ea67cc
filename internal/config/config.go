// Package config loads the gateway's effective configuration from a JSON
// file on disk, matching the knob set in spec.md §3 and §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the effective runtime configuration (spec.md §3 "Config (effective)").
type Config struct {
	Port                   string   `json:"port"`
	WSMaxPayloadBytes      int64    `json:"wsMaxPayload"`
	WSHeartbeatIntervalMs  int      `json:"wsHeartbeatIntervalMs"`
	WSAuthTimeoutMs        int      `json:"wsAuthTimeoutMs"`
	WSTicketTTLMs          int      `json:"wsTicketTtlMs"`
	WSTicketMaxKubeconfigB int64    `json:"wsTicketMaxKubeconfigBytes"`
	WSAllowedOrigins       []string `json:"wsAllowedOrigins"`
	Debug                  bool     `json:"debug"`
	Auth                   Auth     `json:"auth"`
}

// Auth holds the optional operator-authentication gate in front of
// POST /ws-ticket (see SPEC_FULL.md "Operator authentication").
type Auth struct {
	GitHubEnabled      bool     `json:"githubEnabled"`
	GitHubClientID     string   `json:"githubClientId"`
	GitHubClientSecret string   `json:"githubClientSecret"` // pragma: allowlist secret
	BaseURL            string   `json:"baseUrl"`
	AllowedUsers       []string `json:"allowedUsers"`
}

// HeartbeatInterval returns the heartbeat interval as a time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.WSHeartbeatIntervalMs) * time.Millisecond
}

// AuthTimeout returns the auth timeout as a time.Duration.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.WSAuthTimeoutMs) * time.Millisecond
}

// TicketTTL returns the ticket TTL as a time.Duration.
func (c *Config) TicketTTL() time.Duration {
	return time.Duration(c.WSTicketTTLMs) * time.Millisecond
}

func defaults() *Config {
	return &Config{
		Port:                   "8080",
		WSMaxPayloadBytes:      2 << 20, // 2 MiB
		WSHeartbeatIntervalMs:  30_000,
		WSAuthTimeoutMs:        10_000,
		WSTicketTTLMs:          60_000,
		WSTicketMaxKubeconfigB: 256 << 10, // 256 KiB
		WSAllowedOrigins:       []string{},
		Debug:                  false,
	}
}

// Load reads configuration from the JSON file at path, applying defaults
// for any key absent from the file. It attempts to source a .env file
// first (ignoring its absence) so CONFIG_PATH can be supplied for local
// development.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.json"
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}
