// Package config loads server configuration from defaults, an optional
// config.yaml, a .env file and DAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the loader
const EnvPrefix = "DAM"

// MinAuthSecretLength is the shortest accepted auth.secret when auth is enabled
const MinAuthSecretLength = 32

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		Mode            string        `mapstructure:"mode"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	// Logging configuration
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	// Bearer token authentication for the HTTP transport
	Auth struct {
		Enabled  bool          `mapstructure:"enabled"`
		Secret   string        `mapstructure:"secret"` // Sensitive
		Issuer   string        `mapstructure:"issuer"`
		Audience string        `mapstructure:"audience"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	RateLimit struct {
		Enabled bool    `mapstructure:"enabled"`
		RPS     float64 `mapstructure:"rps"`
		Burst   int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	// Scanner process settings
	Scanner struct {
		Timeout        time.Duration `mapstructure:"timeout"`
		MaxConcurrent  int           `mapstructure:"max_concurrent"`
		NpmBinary      string        `mapstructure:"npm_binary"`
		PipAuditBinary string        `mapstructure:"pip_audit_binary"`
		PythonBinary   string        `mapstructure:"python_binary"`
	} `mapstructure:"scanner"`

	// GitHub contents API access for remote targets
	GitHub struct {
		APIURL            string        `mapstructure:"api_url"`
		Token             string        `mapstructure:"token"` // Sensitive
		Timeout           time.Duration `mapstructure:"timeout"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	} `mapstructure:"github"`

	History struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"history"`
}

// Option configures the loader
type Option func(*loader)

type loader struct {
	v           *viper.Viper
	configFile  string
	searchPaths []string
	envFiles    []string
	log         *logrus.Logger
}

// WithConfigFile reads the given file instead of searching for config.yaml
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithSearchPaths replaces the directories searched for config.yaml
func WithSearchPaths(paths ...string) Option {
	return func(l *loader) {
		l.searchPaths = paths
	}
}

// WithEnvFiles replaces the dotenv files loaded before the environment is read
func WithEnvFiles(files ...string) Option {
	return func(l *loader) {
		l.envFiles = files
	}
}

// WithLogger sets the logger used for load warnings
func WithLogger(logger *logrus.Logger) Option {
	return func(l *loader) {
		l.log = logger
	}
}

// LoadConfig loads the configuration from defaults, file and environment
func LoadConfig(options ...Option) (*Config, error) {
	l := &loader{
		v:           viper.New(),
		searchPaths: []string{".", "./config", "/etc/dep-audit-mcp"},
		envFiles:    []string{".env"},
		log:         logrus.StandardLogger(),
	}
	for _, option := range options {
		option(l)
	}

	setDefaults(l.v)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	l.loadDotEnv()

	if err := loadEnvVars(l.v); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SafeString returns a string with sensitive information masked
func SafeString(val string) string {
	if val == "" {
		return ""
	}
	return "********"
}

// MaskSensitiveFields returns a copy of the config with sensitive fields masked
func (c *Config) MaskSensitiveFields() Config {
	masked := *c
	masked.Auth.Secret = SafeString(masked.Auth.Secret)
	masked.GitHub.Token = SafeString(masked.GitHub.Token)
	return masked
}

// LogFields summarises the effective configuration for startup logs
func (c *Config) LogFields() logrus.Fields {
	masked := c.MaskSensitiveFields()
	return logrus.Fields{
		"address":                masked.Address(),
		"mode":                   masked.Server.Mode,
		"auth_enabled":           masked.Auth.Enabled,
		"rate_limit_enabled":     masked.RateLimit.Enabled,
		"scanner_timeout":        masked.Scanner.Timeout.String(),
		"scanner_max_concurrent": masked.Scanner.MaxConcurrent,
		"github_api_url":         masked.GitHub.APIURL,
		"github_token":           masked.GitHub.Token,
		"history_capacity":       masked.History.Capacity,
	}
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trusted_proxies", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "dep-audit-mcp")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	// Scanner defaults
	v.SetDefault("scanner.timeout", "2m")
	v.SetDefault("scanner.max_concurrent", 4)
	v.SetDefault("scanner.npm_binary", "npm")
	v.SetDefault("scanner.pip_audit_binary", "pip-audit")
	v.SetDefault("scanner.python_binary", "python3")

	// GitHub defaults
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.requests_per_second", 10.0)

	v.SetDefault("history.capacity", 20)
}

// loadConfigFile loads configuration from a file
func (l *loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		return l.v.ReadInConfig()
	}

	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")
	for _, path := range l.searchPaths {
		l.v.AddConfigPath(path)
	}

	if err := l.v.ReadInConfig(); err != nil {
		// It's ok if config file is not found
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	l.log.WithField("file", l.v.ConfigFileUsed()).Debug("Loaded config file")
	return nil
}

// loadDotEnv populates the process environment from dotenv files without
// overriding variables that are already set
func (l *loader) loadDotEnv() {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			l.log.WithError(err).WithField("file", file).Warn("Failed to load env file")
			continue
		}
		l.log.WithField("file", file).Debug("Loaded env file")
	}
}

// loadEnvVars binds DAM_* environment variables, with GITHUB_TOKEN as a
// fallback for github.token
func loadEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
}

// ValidationResult holds validation results
type ValidationResult struct {
	Errors []ValidationError
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (r *ValidationResult) add(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	result := ValidationResult{}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		result.add("server.port", "invalid server port: %d", config.Server.Port)
	}
	switch config.Server.Mode {
	case "debug", "release", "test":
	default:
		result.add("server.mode", "unsupported server mode %q (want debug, release or test)", config.Server.Mode)
	}
	if config.Server.ReadTimeout <= 0 {
		result.add("server.read_timeout", "read timeout must be positive")
	}
	if config.Server.WriteTimeout <= 0 {
		result.add("server.write_timeout", "write timeout must be positive")
	}
	if config.Server.ShutdownTimeout <= 0 {
		result.add("server.shutdown_timeout", "shutdown timeout must be positive")
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		result.add("logging.level", "unknown log level %q", config.Logging.Level)
	}
	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		result.add("logging.format", "unsupported log format %q (want text or json)", config.Logging.Format)
	}

	if config.Auth.Enabled {
		if config.Auth.Secret == "" {
			result.add("auth.secret", "auth secret is empty")
		} else if len(config.Auth.Secret) < MinAuthSecretLength {
			result.add("auth.secret", "auth secret must be at least %d characters", MinAuthSecretLength)
		}
		if config.Auth.TokenTTL <= 0 {
			result.add("auth.token_ttl", "token ttl must be positive")
		}
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RPS <= 0 {
			result.add("rate_limit.rps", "requests per second must be positive")
		}
		if config.RateLimit.Burst < 1 {
			result.add("rate_limit.burst", "burst must be at least 1")
		}
	}

	if config.Scanner.Timeout <= 0 {
		result.add("scanner.timeout", "scanner timeout must be positive")
	}
	if config.Scanner.MaxConcurrent < 1 {
		result.add("scanner.max_concurrent", "at least one concurrent scan is required")
	}
	if config.Scanner.NpmBinary == "" {
		result.add("scanner.npm_binary", "npm binary cannot be empty")
	}
	if config.Scanner.PipAuditBinary == "" {
		result.add("scanner.pip_audit_binary", "pip-audit binary cannot be empty")
	}

	if !strings.HasPrefix(config.GitHub.APIURL, "http://") && !strings.HasPrefix(config.GitHub.APIURL, "https://") {
		result.add("github.api_url", "GitHub API URL must be http(s): %q", config.GitHub.APIURL)
	}
	if config.GitHub.Timeout <= 0 {
		result.add("github.timeout", "GitHub timeout must be positive")
	}
	if config.GitHub.RequestsPerSecond < 0 {
		result.add("github.requests_per_second", "requests per second cannot be negative")
	}

	if config.History.Capacity < 1 {
		result.add("history.capacity", "history capacity must be at least 1")
	}

	if len(result.Errors) > 0 {
		errMsgs := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
		}
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errMsgs, "; "))
	}

	return nil
}
