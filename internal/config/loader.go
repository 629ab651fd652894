package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
)

// Loader loads configuration from an optional YAML file, a JSON payload and
// environment variables, in that order. Tests can override Lookup and
// ReadFile to inject deterministic inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load retrieves the adapter configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_CONFIG_FILE", &cfg.ConfigFile)
	if cfg.ConfigFile != "" {
		raw, err := l.ReadFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", cfg.ConfigFile, err)
		}
		var payload filePayload
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", cfg.ConfigFile, err)
		}
		payload.apply(&cfg)
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		var payload filePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
		}
		payload.apply(&cfg)
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "AZURE_SPEECH_KEY", &cfg.SubscriptionKey)
	overrideString(l.Lookup, "AZURE_SPEECH_TOKEN", &cfg.AuthToken)
	overrideString(l.Lookup, "AZURE_SPEECH_REGION", &cfg.Region)
	overrideString(l.Lookup, "AZURE_SPEECH_ENDPOINT", &cfg.Endpoint)
	overrideString(l.Lookup, "NUPI_LANGUAGE_HINT", &cfg.Language)
	overrideString(l.Lookup, "NUPI_ADAPTER_AUDIO_FILE", &cfg.AudioFile)

	if value, ok := lookupTrimmed(l.Lookup, "NUPI_ADAPTER_EVENT_FLAGS"); ok {
		flags, err := events.ParseFlags(value)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_ADAPTER_EVENT_FLAGS: %w", err)
		}
		cfg.Flags = flags
	}
	if value, ok := lookupTrimmed(l.Lookup, "NUPI_ADAPTER_USE_SIMULATOR"); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_ADAPTER_USE_SIMULATOR: %w", err)
		}
		cfg.UseSimulatedEngine = b
	}
	if value, ok := lookupTrimmed(l.Lookup, "NUPI_ADAPTER_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_ADAPTER_TIMEOUT_MS: %w", err)
		}
		cfg.TimeoutMS = ms
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// filePayload is shared by the YAML file and the JSON payload. Zero values
// leave the current setting untouched.
type filePayload struct {
	ListenAddr         string        `yaml:"listen_addr" json:"listen_addr"`
	LogLevel           string        `yaml:"log_level" json:"log_level"`
	SubscriptionKey    string        `yaml:"subscription_key" json:"subscription_key"`
	AuthToken          string        `yaml:"auth_token" json:"auth_token"`
	Region             string        `yaml:"region" json:"region"`
	Endpoint           string        `yaml:"endpoint" json:"endpoint"`
	Language           string        `yaml:"language" json:"language"`
	AudioFile          string        `yaml:"audio_file" json:"audio_file"`
	Flags              *events.Flags `yaml:"event_flags" json:"event_flags"`
	TimeoutMS          *int          `yaml:"timeout_ms" json:"timeout_ms"`
	UseSimulatedEngine *bool         `yaml:"use_simulator" json:"use_simulator"`
}

func (p filePayload) apply(cfg *Config) {
	setString(&cfg.ListenAddr, p.ListenAddr)
	setString(&cfg.LogLevel, p.LogLevel)
	setString(&cfg.SubscriptionKey, p.SubscriptionKey)
	setString(&cfg.AuthToken, p.AuthToken)
	setString(&cfg.Region, p.Region)
	setString(&cfg.Endpoint, p.Endpoint)
	setString(&cfg.Language, p.Language)
	setString(&cfg.AudioFile, p.AudioFile)
	if p.Flags != nil {
		cfg.Flags = *p.Flags
	}
	if p.TimeoutMS != nil {
		cfg.TimeoutMS = *p.TimeoutMS
	}
	if p.UseSimulatedEngine != nil {
		cfg.UseSimulatedEngine = *p.UseSimulatedEngine
	}
}

func setString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}
