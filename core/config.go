package core

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults for process configuration.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8000
	DefaultProfilePath     = "krita_config.yaml"
	DefaultEngineURL       = "http://127.0.0.1:7860"
	DefaultEngineTimeout   = 600 // seconds; large batches take minutes
	DefaultLogFile         = "gateway.log"
	DefaultHistoryFile     = "history.db"
	DefaultShutdownTimeout = 60 // seconds
	DefaultRateLimitBurst  = 1
	DefaultRetentionDays   = 30

	// HistoryDisabled as HISTORY_DB turns the history store off.
	HistoryDisabled = "off"
)

// Config holds process-level configuration read once from the environment.
// Per-request generation defaults live in the profile file instead.
type Config struct {
	// HTTP listener
	Host string
	Port int

	// ProfilePath is the YAML file re-read on every request
	ProfilePath string

	// Inference engine (AUTOMATIC1111-compatible webui API)
	EngineURL     string
	EngineAuth    string // user:password, empty when the webui has no --api-auth
	EngineTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel string
	DevMode  bool

	// HistoryDB is the sqlite path, empty when disabled
	HistoryDB string
	// HistoryRetention prunes older rows at startup; zero keeps everything
	HistoryRetention time.Duration

	// Rate limiting; RateLimitRPS <= 0 disables it
	RateLimitRPS   float64
	RateLimitBurst int

	MetricsEnabled  bool
	ShutdownTimeout time.Duration
}

// LoadConfig reads the environment, applies defaults and validates the result.
// Invalid values are reported as *ConfigError.
func LoadConfig() (*Config, error) {
	historyDB := GetEnvOrDefault("HISTORY_DB", GetDataFilePath(DefaultHistoryFile))
	if strings.EqualFold(historyDB, HistoryDisabled) {
		historyDB = ""
	}

	cfg := &Config{
		Host:             GetEnvOrDefault("GATEWAY_HOST", DefaultHost),
		Port:             ParseIntEnv("GATEWAY_PORT", DefaultPort),
		ProfilePath:      GetEnvOrDefault("GATEWAY_CONFIG_FILE", DefaultProfilePath),
		EngineURL:        strings.TrimRight(GetEnvOrDefault("ENGINE_URL", DefaultEngineURL), "/"),
		EngineAuth:       GetEnvOrDefault("ENGINE_AUTH", ""),
		EngineTimeout:    ParseDurationEnv("ENGINE_TIMEOUT", DefaultEngineTimeout),
		LogFile:          GetEnvOrDefault("LOG_FILE", DefaultLogFile),
		LogLevel:         GetEnvOrDefault("LOG_LEVEL", ""),
		DevMode:          ParseBoolEnv("DEV_MODE", false),
		HistoryDB:        historyDB,
		HistoryRetention: time.Duration(ParseIntEnv("HISTORY_RETENTION_DAYS", DefaultRetentionDays)) * 24 * time.Hour,
		RateLimitRPS:     ParseFloat64Env("RATE_LIMIT_RPS", 0),
		RateLimitBurst:   ParseIntEnv("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		MetricsEnabled:   ParseBoolEnv("METRICS_ENABLED", true),
		ShutdownTimeout:  ParseDurationEnv("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It does not touch the network or filesystem.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("GATEWAY_PORT", c.Port, "must be between 1 and 65535")
	}

	u, err := url.Parse(c.EngineURL)
	if err != nil {
		return ErrInvalidEngineURL(c.EngineURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidEngineURL(c.EngineURL, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidEngineURL(c.EngineURL, "missing host")
	}

	if c.EngineAuth != "" {
		user, _, ok := strings.Cut(c.EngineAuth, ":")
		if !ok || user == "" {
			return ErrInvalidAuth()
		}
	}

	if c.EngineTimeout <= 0 {
		return ErrInvalidValue("ENGINE_TIMEOUT", c.EngineTimeout, "must be positive")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return ErrInvalidValue("RATE_LIMIT_BURST", c.RateLimitBurst, "must be at least 1 when rate limiting is enabled")
	}
	if c.HistoryRetention < 0 {
		return ErrInvalidValue("HISTORY_RETENTION_DAYS", c.HistoryRetention, "must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidValue("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, "must be positive")
	}
	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HistoryEnabled reports whether generation history is recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}
