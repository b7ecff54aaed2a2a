package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for whatsbridge.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Delivery DeliveryConfig `json:"delivery" yaml:"delivery"`
	Inbox    InboxConfig    `json:"inbox" yaml:"inbox"`
	Media    MediaConfig    `json:"media" yaml:"media"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

type ServerConfig struct {
	Host       string `json:"host" yaml:"host"` // empty = all interfaces
	Port       int    `json:"port" yaml:"port"`
	StaticDir  string `json:"staticDir" yaml:"staticDir"`
	MaxClients int    `json:"maxClients" yaml:"maxClients"`
	SendBuffer int    `json:"sendBuffer" yaml:"sendBuffer"` // frames queued per client before it is dropped
}

type WhatsAppConfig struct {
	SessionDB                string `json:"sessionDB" yaml:"sessionDB"`
	PrintQR                  bool   `json:"printQR" yaml:"printQR"`
	ReinitializeOnDisconnect bool   `json:"reinitializeOnDisconnect" yaml:"reinitializeOnDisconnect"`
	ReinitializeDelaySeconds int    `json:"reinitializeDelaySeconds" yaml:"reinitializeDelaySeconds"`
	LookupTimeoutSeconds     int    `json:"lookupTimeoutSeconds" yaml:"lookupTimeoutSeconds"` // 0 = none
}

type DeliveryConfig struct {
	MaxAttempts        int     `json:"maxAttempts" yaml:"maxAttempts"`
	RetryDelayMillis   int     `json:"retryDelayMillis" yaml:"retryDelayMillis"`
	RateLimitPerMinute float64 `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"` // per client
	RateLimitBurst     int     `json:"rateLimitBurst" yaml:"rateLimitBurst"`
}

type InboxConfig struct {
	IncludeOutgoingEchoes bool `json:"includeOutgoingEchoes" yaml:"includeOutgoingEchoes"`
	QueueSize             int  `json:"queueSize" yaml:"queueSize"` // inbound events buffered ahead of the pipeline
}

type MediaConfig struct {
	MaxBytes               int64 `json:"maxBytes" yaml:"maxBytes"`
	DownloadTimeoutSeconds int   `json:"downloadTimeoutSeconds" yaml:"downloadTimeoutSeconds"` // 0 = none
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.whatsbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".whatsbridge"
	}
	return filepath.Join(home, ".whatsbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a .json, .yaml or .yml config file over the defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
		cfg.expandPaths()
		return cfg, nil
	}
	return cfg, err
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg in the format implied by the file extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.MaxClients < 1 {
		errs = append(errs, "server.maxClients must be >= 1")
	}
	if cfg.Server.SendBuffer < 1 {
		errs = append(errs, "server.sendBuffer must be >= 1")
	}

	if cfg.WhatsApp.SessionDB == "" {
		errs = append(errs, "whatsapp.sessionDB is required")
	}
	if cfg.WhatsApp.ReinitializeDelaySeconds < 0 {
		errs = append(errs, "whatsapp.reinitializeDelaySeconds must be >= 0")
	}
	if cfg.WhatsApp.LookupTimeoutSeconds < 0 {
		errs = append(errs, "whatsapp.lookupTimeoutSeconds must be >= 0")
	}

	if cfg.Delivery.MaxAttempts < 1 || cfg.Delivery.MaxAttempts > 10 {
		errs = append(errs, "delivery.maxAttempts must be between 1 and 10")
	}
	if cfg.Delivery.RetryDelayMillis < 0 {
		errs = append(errs, "delivery.retryDelayMillis must be >= 0")
	}
	if cfg.Delivery.RateLimitPerMinute <= 0 {
		errs = append(errs, "delivery.rateLimitPerMinute must be > 0")
	}
	if cfg.Delivery.RateLimitBurst < 1 {
		errs = append(errs, "delivery.rateLimitBurst must be >= 1")
	}

	if cfg.Inbox.QueueSize < 1 {
		errs = append(errs, "inbox.queueSize must be >= 1")
	}

	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Media.DownloadTimeoutSeconds < 0 {
		errs = append(errs, "media.downloadTimeoutSeconds must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (cfg *Config) expandPaths() {
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.WhatsApp.SessionDB = ExpandPath(cfg.WhatsApp.SessionDB)
	cfg.Server.StaticDir = ExpandPath(cfg.Server.StaticDir)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
