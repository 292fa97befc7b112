package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wayfarer/cli/internal/utils"
)

// DefaultConfigName is the config file created in the home directory
const DefaultConfigName = ".wayfarer.yaml"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig `yaml:"server" mapstructure:"server"`
	Cookies CookieConfig `yaml:"cookies" mapstructure:"cookies"`
	State   StateConfig  `yaml:"state" mapstructure:"state"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
	Auth    AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Format  FormatConfig `yaml:"format" mapstructure:"format"`
}

// ServerConfig contains server connection settings
type ServerConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// CookieConfig names the anti-forgery cookie and the header it is echoed in
type CookieConfig struct {
	CSRFName   string `yaml:"csrf_name" mapstructure:"csrf_name"`
	CSRFHeader string `yaml:"csrf_header" mapstructure:"csrf_header"`
}

// StateConfig locates the local state database (cookies, pending markers)
type StateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig contains diagnostic log settings
type LogConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Level      string `yaml:"level" mapstructure:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// AuthConfig contains account flow timings
type AuthConfig struct {
	ResendCooldown string `yaml:"resend_cooldown" mapstructure:"resend_cooldown"`
	LoginLockout   string `yaml:"login_lockout" mapstructure:"login_lockout"`
}

// FormatConfig contains output formatting settings
type FormatConfig struct {
	Default string `yaml:"default" mapstructure:"default"`
	Colors  bool   `yaml:"colors" mapstructure:"colors"`
}

const (
	defaultServerURL      = "http://localhost:8000"
	defaultTimeout        = 10 * time.Second
	defaultResendCooldown = 60 * time.Second
	defaultLoginLockout   = 15 * time.Minute
)

// TimeoutDuration returns the request timeout, falling back to 10s
func (s ServerConfig) TimeoutDuration() time.Duration {
	return parseDuration(s.Timeout, defaultTimeout)
}

// ResendCooldownDuration returns the resend cooldown, falling back to 60s
func (a AuthConfig) ResendCooldownDuration() time.Duration {
	return parseDuration(a.ResendCooldown, defaultResendCooldown)
}

// LoginLockoutDuration returns how long a rate-limited login stays blocked
func (a AuthConfig) LoginLockoutDuration() time.Duration {
	return parseDuration(a.LoginLockout, defaultLoginLockout)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var (
	globalConfig *Config
	debug        bool
	outputFormat string
	configPath   string
)

// Initialize loads the configuration from file
func Initialize(configFile string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not get home directory: %w", err)
	}

	if configFile == "" {
		configFile = filepath.Join(home, DefaultConfigName)
	}
	configPath = configFile
	viper.SetConfigFile(configFile)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("WAYFARER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults(home)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found; create default config
			if err := createDefaultConfig(configFile, home); err != nil {
				return fmt.Errorf("could not create default config: %w", err)
			}
		} else {
			return fmt.Errorf("could not read config file: %w", err)
		}
	}

	// Unmarshal config
	globalConfig = &Config{}
	if err := viper.Unmarshal(globalConfig); err != nil {
		return fmt.Errorf("could not unmarshal config: %w", err)
	}

	globalConfig.State.Path = expandHome(globalConfig.State.Path, home)
	globalConfig.Log.Path = expandHome(globalConfig.Log.Path, home)

	return nil
}

// setDefaults sets default configuration values
func setDefaults(home string) {
	d := Defaults(home)
	viper.SetDefault("server.url", d.Server.URL)
	viper.SetDefault("server.timeout", d.Server.Timeout)
	viper.SetDefault("cookies.csrf_name", d.Cookies.CSRFName)
	viper.SetDefault("cookies.csrf_header", d.Cookies.CSRFHeader)
	viper.SetDefault("state.path", d.State.Path)
	viper.SetDefault("log.path", d.Log.Path)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	viper.SetDefault("log.max_backups", d.Log.MaxBackups)
	viper.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	viper.SetDefault("auth.resend_cooldown", d.Auth.ResendCooldown)
	viper.SetDefault("auth.login_lockout", d.Auth.LoginLockout)
	viper.SetDefault("format.default", d.Format.Default)
	viper.SetDefault("format.colors", d.Format.Colors)
}

// Defaults returns the built-in configuration rooted at home
func Defaults(home string) Config {
	dataDir := filepath.Join(home, ".wayfarer")
	return Config{
		Server: ServerConfig{
			URL:     defaultServerURL,
			Timeout: defaultTimeout.String(),
		},
		Cookies: CookieConfig{
			CSRFName:   "csrf_token",
			CSRFHeader: "X-CSRFToken",
		},
		State: StateConfig{
			Path: filepath.Join(dataDir, "state.db"),
		},
		Log: LogConfig{
			Path:       filepath.Join(dataDir, "wayfarer.log"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Auth: AuthConfig{
			ResendCooldown: defaultResendCooldown.String(),
			LoginLockout:   defaultLoginLockout.String(),
		},
		Format: FormatConfig{
			Default: "table",
			Colors:  true,
		},
	}
}

// createDefaultConfig creates a default configuration file
func createDefaultConfig(path, home string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(Defaults(home))
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		d := Defaults(os.TempDir())
		globalConfig = &d
	}
	return globalConfig
}

// Flatten lists the configuration under the dotted keys `config set` uses
func (c *Config) Flatten() map[string]interface{} {
	return map[string]interface{}{
		"server.url":           c.Server.URL,
		"server.timeout":       c.Server.Timeout,
		"cookies.csrf_name":    c.Cookies.CSRFName,
		"cookies.csrf_header":  c.Cookies.CSRFHeader,
		"state.path":           c.State.Path,
		"log.path":             c.Log.Path,
		"log.level":            c.Log.Level,
		"log.max_size_mb":      c.Log.MaxSizeMB,
		"log.max_backups":      c.Log.MaxBackups,
		"log.max_age_days":     c.Log.MaxAgeDays,
		"auth.resend_cooldown": c.Auth.ResendCooldown,
		"auth.login_lockout":   c.Auth.LoginLockout,
		"format.default":       c.Format.Default,
		"format.colors":        c.Format.Colors,
	}
}

// Path returns the config file in use
func Path() string {
	return configPath
}

// settableKeys are the keys `config set` accepts, with their validators
var settableKeys = map[string]func(string) error{
	"server.url":           utils.ValidateURL,
	"server.timeout":       validateDuration,
	"cookies.csrf_name":    requireValue,
	"cookies.csrf_header":  requireValue,
	"state.path":           requireValue,
	"log.path":             func(string) error { return nil },
	"log.level":            validateLevel,
	"auth.resend_cooldown": validateDuration,
	"auth.login_lockout":   validateDuration,
	"format.default":       validateFormat,
	"format.colors":        validateBool,
}

// Set validates and persists a single key
func Set(key, value string) error {
	validate, ok := settableKeys[key]
	if !ok {
		return utils.NewValidationError(key, "unknown configuration key")
	}
	if err := validate(value); err != nil {
		return err
	}

	if key == "format.colors" {
		viper.Set(key, value == "true")
	} else {
		viper.Set(key, value)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("could not unmarshal config: %w", err)
	}
	home, _ := os.UserHomeDir()
	cfg.State.Path = expandHome(cfg.State.Path, home)
	cfg.Log.Path = expandHome(cfg.Log.Path, home)
	globalConfig = cfg

	return Save()
}

func requireValue(v string) error {
	return utils.ValidateRequired(v, "value")
}

func validateDuration(v string) error {
	if d, err := time.ParseDuration(v); err != nil || d <= 0 {
		return utils.NewValidationError("value", "must be a positive duration such as 10s")
	}
	return nil
}

func validateLevel(v string) error {
	switch v {
	case "debug", "info", "warn", "error":
		return nil
	}
	return utils.NewValidationError("value", "must be one of debug, info, warn, error")
}

func validateFormat(v string) error {
	switch v {
	case "table", "json", "json-compact", "yaml", "text":
		return nil
	}
	return utils.NewValidationError("value", "must be one of table, json, json-compact, yaml, text")
}

func validateBool(v string) error {
	if v != "true" && v != "false" {
		return utils.NewValidationError("value", "must be true or false")
	}
	return nil
}

// Save saves the current configuration to file
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("no configuration to save")
	}
	if configPath == "" {
		return fmt.Errorf("configuration not initialized")
	}

	data, err := yaml.Marshal(globalConfig)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0o600)
}

// SetDebug sets the debug mode
func SetDebug(enabled bool) {
	debug = enabled
}

// IsDebug returns whether debug mode is enabled
func IsDebug() bool {
	return debug
}

// SetOutputFormat sets the output format
func SetOutputFormat(format string) {
	outputFormat = format
}

// GetOutputFormat returns the current output format
func GetOutputFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	if globalConfig != nil && globalConfig.Format.Default != "" {
		return globalConfig.Format.Default
	}
	return "table"
}

// SetServerURL overrides the server URL for this invocation only
func SetServerURL(url string) {
	Get().Server.URL = url
}

// Reset clears global state; tests use it between cases
func Reset() {
	viper.Reset()
	globalConfig = nil
	debug = false
	outputFormat = ""
	configPath = ""
}
