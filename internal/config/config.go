// Package config holds the runtime configuration of a docstore server,
// parsed from flags, environment and an optional INI file by go-flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StoreConfig configures the backing file and how it's kept in sync.
type StoreConfig struct {
	Path          string        `long:"path" env:"PATH" default:"./db.json" description:"Path of the JSON database file"`
	Seed          string        `long:"seed" env:"SEED" description:"JSON file whose content replaces the built-in default database"`
	Watch         bool          `long:"watch" env:"WATCH" description:"Reload the database when its file is modified externally"`
	WatchDebounce time.Duration `long:"watch-debounce" env:"WATCH_DEBOUNCE" default:"100ms" description:"Quiet period coalescing bursts of file events into one reload"`
	Strict        bool          `long:"strict-persistence" env:"STRICT_PERSISTENCE" description:"Fail mutations with 500 when the database file cannot be written"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Host            string        `long:"host" env:"HOST" default:"127.0.0.1" description:"Host or IP address to listen on"`
	Port            uint16        `long:"port" env:"PORT" default:"5000" description:"Port to listen on"`
	MaxBody         int64         `long:"max-body" env:"MAX_BODY" default:"52428800" description:"Maximum accepted request body, in bytes"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"5s" description:"Time allowed for in-flight requests at shutdown"`
}

// Addr returns the listen address of the HTTPConfig.
func (c HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// AuthConfig configures the shared-secret gate in front of /api and /admin.
// The gate is open unless Enabled is set.
type AuthConfig struct {
	Enabled bool   `long:"enabled" env:"ENABLED" description:"Require a shared API key on /api and /admin requests"`
	Key     string `long:"key" env:"KEY" description:"Shared API key expected when the gate is enabled"`
	Header  string `long:"header" env:"HEADER" default:"x-api-key" description:"Request header carrying the API key"`
}

// Validate returns an error if an enabled gate has no key to check.
func (c AuthConfig) Validate() error {
	if c.Enabled && c.Key == "" {
		return fmt.Errorf("auth is enabled but no key is configured")
	}
	return nil
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Path string `long:"path" env:"PATH" default:"/metrics" description:"Path serving prometheus metrics; empty disables it"`
}

// Config is the top-level configuration of a docstore server.
type Config struct {
	Store   StoreConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	HTTP    HTTPConfig    `group:"HTTP" namespace:"http" env-namespace:"HTTP"`
	Auth    AuthConfig    `group:"Auth" namespace:"auth" env-namespace:"AUTH"`
	Metrics MetricsConfig `group:"Metrics" namespace:"metrics" env-namespace:"METRICS"`
	Log     LogConfig     `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

// NormalizeServerURL turns a user-supplied server address into a base URL.
// Bare "host:port" forms are assumed to be http.
func NormalizeServerURL(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	// Try to parse as a full URL.
	if u, err := url.Parse(addr); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.TrimRight(u.String(), "/")
	}
	return "http://" + strings.TrimRight(addr, "/")
}
