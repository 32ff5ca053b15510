// Package config loads connection-core settings from a JSONC file with
// environment overrides. Comments and trailing commas are allowed in the
// file so configs stay hand-editable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/mcpcore/internal/mcp"
)

// Settings is the on-disk configuration shape.
type Settings struct {
	Servers []mcp.ServerConfig `json:"servers"`

	ClientName    string `json:"clientName,omitempty"`
	ClientVersion string `json:"clientVersion,omitempty"`

	ConnectTimeoutMs     int `json:"connectTimeoutMs,omitempty"`
	CallTimeoutMs        int `json:"callTimeoutMs,omitempty"`
	HealthCheckIntervalS int `json:"healthCheckIntervalSeconds,omitempty"`

	ReconnectMaxAttempts      int `json:"reconnectMaxAttempts,omitempty"`
	ReconnectInitialBackoffMs int `json:"reconnectInitialBackoffMs,omitempty"`
	ReconnectMaxBackoffMs     int `json:"reconnectMaxBackoffMs,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
}

func defaults() Settings {
	return Settings{
		ClientName:                "mcpcore",
		ClientVersion:             "1.0.0",
		ConnectTimeoutMs:          10_000,
		CallTimeoutMs:             30_000,
		HealthCheckIntervalS:      30,
		ReconnectMaxAttempts:      5,
		ReconnectInitialBackoffMs: 1_000,
		ReconnectMaxBackoffMs:     30_000,
		LogLevel:                  "info",
	}
}

// Load reads settings from path, layering file values over defaults and
// MCPCORE_* environment variables over both. A missing file is not an
// error; defaults apply.
func Load(path string) (*Settings, error) {
	s := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(&s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("MCPCORE_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("MCPCORE_CLIENT_NAME"); v != "" {
		s.ClientName = v
	}
	overrideInt(&s.ConnectTimeoutMs, "MCPCORE_CONNECT_TIMEOUT_MS")
	overrideInt(&s.CallTimeoutMs, "MCPCORE_CALL_TIMEOUT_MS")
	overrideInt(&s.HealthCheckIntervalS, "MCPCORE_HEALTH_CHECK_INTERVAL_S")
	overrideInt(&s.ReconnectMaxAttempts, "MCPCORE_RECONNECT_MAX_ATTEMPTS")
	overrideInt(&s.ReconnectInitialBackoffMs, "MCPCORE_RECONNECT_INITIAL_BACKOFF_MS")
	overrideInt(&s.ReconnectMaxBackoffMs, "MCPCORE_RECONNECT_MAX_BACKOFF_MS")
}

func overrideInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// Validate checks settings shape, including every server config.
func (s *Settings) Validate() error {
	if s.ConnectTimeoutMs <= 0 || s.CallTimeoutMs <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if s.HealthCheckIntervalS < 0 {
		return fmt.Errorf("healthCheckIntervalSeconds must not be negative")
	}
	if s.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("reconnectMaxAttempts must be positive")
	}
	seen := make(map[string]bool, len(s.Servers))
	for i := range s.Servers {
		if err := s.Servers[i].Validate(); err != nil {
			return fmt.Errorf("server %d: %w", i, err)
		}
		if seen[s.Servers[i].Name] {
			return fmt.Errorf("duplicate server name %q", s.Servers[i].Name)
		}
		seen[s.Servers[i].Name] = true
	}
	return nil
}

// ManagerOptions maps settings onto manager options.
func (s *Settings) ManagerOptions() *mcp.Options {
	return &mcp.Options{
		ClientName:              s.ClientName,
		ClientVersion:           s.ClientVersion,
		ConnectTimeout:          time.Duration(s.ConnectTimeoutMs) * time.Millisecond,
		CallTimeout:             time.Duration(s.CallTimeoutMs) * time.Millisecond,
		HealthCheckInterval:     time.Duration(s.HealthCheckIntervalS) * time.Second,
		ReconnectMaxAttempts:    s.ReconnectMaxAttempts,
		ReconnectInitialBackoff: time.Duration(s.ReconnectInitialBackoffMs) * time.Millisecond,
		ReconnectMaxBackoff:     time.Duration(s.ReconnectMaxBackoffMs) * time.Millisecond,
	}
}
