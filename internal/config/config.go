package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Codeloom configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Model    ModelConfig    `mapstructure:"model"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	// Host is the address the server binds to (default: "0.0.0.0")
	Host string `mapstructure:"host"`
	// Port is the TCP port the server listens on (default: 8080)
	Port int `mapstructure:"port"`
	// ShutdownTimeoutSeconds is how long to wait for in-flight requests
	// during graceful shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// CORSOrigins is the list of allowed CORS origins. An empty list
	// allows all origins, matching local development usage.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// PathsConfig controls where Codeloom stores data
type PathsConfig struct {
	// OutputDir is the root directory for per-session generated files.
	// If empty, defaults to "generated_projects" in the working directory.
	// Supports ~ for home directory expansion.
	OutputDir string `mapstructure:"output_dir"`
	// LogDir is the directory for the debug log file. If empty, logs go
	// to stderr.
	LogDir string `mapstructure:"log_dir"`
}

// ModelConfig controls the language model backend
type ModelConfig struct {
	// Name is the model identifier passed to the Gemini API
	// (default: "gemini-2.0-flash")
	Name string `mapstructure:"name"`
	// APIKey is the Gemini API key. When empty, the GEMINI_API_KEY
	// environment variable is used instead.
	APIKey string `mapstructure:"api_key"`
	// Temperature controls sampling randomness (default: 0.2)
	Temperature float64 `mapstructure:"temperature"`
	// MaxOutputTokens caps the model response length, 0 = provider default
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
}

// PipelineConfig controls pipeline execution behavior
type PipelineConfig struct {
	// StageTimeoutSeconds is the maximum runtime for a single stage
	// before it is failed (default: 300, 0 = no timeout)
	StageTimeoutSeconds int `mapstructure:"stage_timeout_seconds"`
	// MaxConcurrentSessions limits how many sessions run their pipelines
	// at once, 0 = unlimited (default: 0)
	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`
}

// SessionConfig controls session registry behavior
type SessionConfig struct {
	// SubscriberBuffer is the channel buffer size for each event
	// subscriber. Subscribers that fall this far behind are dropped
	// (default: 256).
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	// SweepEnabled turns on periodic removal of old terminal sessions
	// (default: false, sessions are kept until deleted)
	SweepEnabled bool `mapstructure:"sweep_enabled"`
	// SweepIntervalMinutes is how often the sweeper runs (default: 30)
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	// MaxAgeHours is the age past which terminal sessions are swept
	// (default: 24)
	MaxAgeHours int `mapstructure:"max_age_hours"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// ResolveOutputDir returns the resolved output directory path.
// If OutputDir is empty, it returns the default path relative to baseDir.
// If OutputDir starts with ~, it expands to the user's home directory.
// If OutputDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveOutputDir(baseDir string) string {
	if p.OutputDir == "" {
		return filepath.Join(baseDir, "generated_projects")
	}

	path := p.OutputDir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// If relative path, resolve relative to baseDir
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// StageTimeout returns the stage timeout as a time.Duration (0 means disabled)
func (c *PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the shutdown timeout as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// SweepInterval returns the sweep interval as a time.Duration
func (c *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// MaxAge returns the terminal session retention as a time.Duration
func (c *SessionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// ResolveAPIKey returns the configured API key, falling back to the
// GEMINI_API_KEY environment variable.
func (c *ModelConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ShutdownTimeoutSeconds: 10,
			CORSOrigins:            []string{},
		},
		Paths: PathsConfig{
			OutputDir: "", // Empty means use default: generated_projects
			LogDir:    "",
		},
		Model: ModelConfig{
			Name:            "gemini-2.0-flash",
			APIKey:          "", // Empty means use GEMINI_API_KEY
			Temperature:     0.2,
			MaxOutputTokens: 0,
		},
		Pipeline: PipelineConfig{
			StageTimeoutSeconds:   300,
			MaxConcurrentSessions: 0, // No limit by default
		},
		Session: SessionConfig{
			SubscriberBuffer:     256,
			SweepEnabled:         false, // Sessions are kept until deleted
			SweepIntervalMinutes: 30,
			MaxAgeHours:          24,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Server defaults
	viper.SetDefault("server.host", defaults.Server.Host)
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)
	viper.SetDefault("server.cors_origins", defaults.Server.CORSOrigins)

	// Paths defaults
	viper.SetDefault("paths.output_dir", defaults.Paths.OutputDir)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)

	// Model defaults
	viper.SetDefault("model.name", defaults.Model.Name)
	viper.SetDefault("model.api_key", defaults.Model.APIKey)
	viper.SetDefault("model.temperature", defaults.Model.Temperature)
	viper.SetDefault("model.max_output_tokens", defaults.Model.MaxOutputTokens)

	// Pipeline defaults
	viper.SetDefault("pipeline.stage_timeout_seconds", defaults.Pipeline.StageTimeoutSeconds)
	viper.SetDefault("pipeline.max_concurrent_sessions", defaults.Pipeline.MaxConcurrentSessions)

	// Session defaults
	viper.SetDefault("session.subscriber_buffer", defaults.Session.SubscriberBuffer)
	viper.SetDefault("session.sweep_enabled", defaults.Session.SweepEnabled)
	viper.SetDefault("session.sweep_interval_minutes", defaults.Session.SweepIntervalMinutes)
	viper.SetDefault("session.max_age_hours", defaults.Session.MaxAgeHours)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeloom")
	}
	// Fall back to ~/.config/codeloom
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeloom"
	}
	return filepath.Join(home, ".config", "codeloom")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
