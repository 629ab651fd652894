package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultLanguage   = "en-US"
	DefaultLogLevel   = "info"
	DefaultTimeoutMS  = 30_000
	MaxTimeoutMS      = 600_000
)

// DefaultFlags are the categories streamed when nothing is configured.
const DefaultFlags = events.Recognized

// Config captures bootstrap configuration extracted from a YAML file,
// an injected JSON payload (`NUPI_ADAPTER_CONFIG`) and environment variables.
type Config struct {
	ListenAddr         string
	LogLevel           string
	SubscriptionKey    string
	AuthToken          string
	Region             string
	Endpoint           string
	Language           string
	AudioFile          string
	Flags              events.Flags
	TimeoutMS          int
	UseSimulatedEngine bool
	ConfigFile         string
}

// Timeout returns the bounded wait used for engine async operations.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// HasCredentials reports whether a speech config can be built from c.
func (c Config) HasCredentials() bool {
	if c.Endpoint != "" {
		return true
	}
	return c.Region != "" && (c.SubscriptionKey != "" || c.AuthToken != "")
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Flags == 0 {
		c.Flags = DefaultFlags
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if c.TimeoutMS < 0 || c.TimeoutMS > MaxTimeoutMS {
		return fmt.Errorf("config: timeout_ms must be within 1..%d, got %d", MaxTimeoutMS, c.TimeoutMS)
	}
	if c.SubscriptionKey != "" && c.AuthToken != "" {
		return fmt.Errorf("config: subscription key and authorization token are mutually exclusive")
	}
	if !c.UseSimulatedEngine && !c.HasCredentials() {
		return fmt.Errorf("config: region with a key or token, or an endpoint, is required unless the simulator is used")
	}
	return nil
}
