// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatdesk.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatdesk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatdesk configuration.
type Config struct {
	// Remote model endpoint
	Provider ProviderConfig `toml:"provider" json:"provider"`

	// Cost estimation rates
	Pricing PricingConfig `toml:"pricing" json:"pricing"`

	// Cost ledger storage
	Ledger LedgerConfig `toml:"ledger" json:"ledger"`

	// Transcript files
	Transcripts TranscriptsConfig `toml:"transcripts" json:"transcripts"`

	// First-message context documents
	Context ContextConfig `toml:"context" json:"context"`

	// Input plugins
	Plugins PluginsConfig `toml:"plugins" json:"plugins"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`

	// Local HTTP surface
	Server ServerConfig `toml:"server" json:"server"`

	// Logging
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ProviderConfig configures the remote completion endpoint.
type ProviderConfig struct {
	// APIKey for the Anthropic API. Falls back to ANTHROPIC_API_KEY.
	APIKey string `toml:"api_key" json:"api_key"`

	BaseURL      string  `toml:"base_url" json:"base_url"`
	Model        string  `toml:"model" json:"model"`
	MaxTokens    int     `toml:"max_tokens" json:"max_tokens"`
	Temperature  float64 `toml:"temperature" json:"temperature"`
	SystemPrompt string  `toml:"system_prompt" json:"system_prompt"`

	// TimeoutSeconds bounds one request attempt.
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`

	// MaxRetries is the number of attempts for transient failures.
	MaxRetries int `toml:"max_retries" json:"max_retries"`

	// RequestsPerMinute limits outgoing calls (0 = unlimited).
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`

	// Mock answers locally without network access or cost.
	Mock bool `toml:"mock" json:"mock"`
}

// PricingConfig holds per-million-token rates in USD.
type PricingConfig struct {
	InputPerMTok      float64 `toml:"input_per_mtok" json:"input_per_mtok"`
	ImagePerMTok      float64 `toml:"image_per_mtok" json:"image_per_mtok"`
	OutputPerMTok     float64 `toml:"output_per_mtok" json:"output_per_mtok"`
	ImageTokenDivisor float64 `toml:"image_token_divisor" json:"image_token_divisor"`
}

// LedgerConfig selects where call costs are recorded.
type LedgerConfig struct {
	// Backend is "file" (append-only CSV lines) or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
}

// TranscriptsConfig sets where conversations are written.
type TranscriptsConfig struct {
	Dir string `toml:"dir" json:"dir"`
}

// ContextConfig sets the context document directory. Empty disables it.
type ContextConfig struct {
	Dir string `toml:"dir" json:"dir"`
}

// PluginsConfig lists enabled plugins in priority order.
type PluginsConfig struct {
	Enabled []string `toml:"enabled" json:"enabled"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`

	// TickMS is the delivery queue drain interval.
	TickMS int `toml:"tick_ms" json:"tick_ms"`

	// PreviewLen is the number of characters shown for user messages.
	PreviewLen int `toml:"preview_len" json:"preview_len"`
}

// ServerConfig configures `chatdesk serve`.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`

	// Output is "stderr", "stdout" or a file path.
	Output string `toml:"output" json:"output"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:           "https://api.anthropic.com",
			Model:             "claude-3-5-sonnet-latest",
			MaxTokens:         1000,
			Temperature:       0.8,
			SystemPrompt:      "You are a helpful assistant",
			TimeoutSeconds:    120,
			MaxRetries:        3,
			RequestsPerMinute: 0,
		},
		Pricing: PricingConfig{
			InputPerMTok:      3,
			ImagePerMTok:      3,
			OutputPerMTok:     15,
			ImageTokenDivisor: 750,
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "cost_log.txt",
		},
		Transcripts: TranscriptsConfig{
			Dir: "conversations",
		},
		Plugins: PluginsConfig{
			Enabled: []string{"image_input"},
		},
		UI: UIConfig{
			Theme:      "auto",
			TickMS:     100,
			PreviewLen: 30,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory.
const HomeEnv = "CHATDESK_HOME"

// ConfigDir returns the chatdesk configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatdesk"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ResolvePath returns p unchanged when absolute, expands a leading "~/",
// and otherwise joins p onto the config directory.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	dir, err := ConfigDir()
	if err != nil {
		return p
	}
	return filepath.Join(dir, p)
}

// ensureSecurePermissions tightens the config file to 0600 since it may
// hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.chatdesk/config.toml when present, applies defaults and
// environment overrides, then validates.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML or JSON file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config from %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config from %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = d.Provider.BaseURL
	}
	if c.Provider.Model == "" {
		c.Provider.Model = d.Provider.Model
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = d.Provider.MaxTokens
	}
	if c.Provider.SystemPrompt == "" {
		c.Provider.SystemPrompt = d.Provider.SystemPrompt
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = d.Provider.TimeoutSeconds
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = d.Provider.MaxRetries
	}

	if c.Pricing.ImageTokenDivisor == 0 {
		c.Pricing.ImageTokenDivisor = d.Pricing.ImageTokenDivisor
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = d.Ledger.Backend
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = d.Ledger.Path
	}
	if c.Transcripts.Dir == "" {
		c.Transcripts.Dir = d.Transcripts.Dir
	}

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.TickMS == 0 {
		c.UI.TickMS = d.UI.TickMS
	}
	if c.UI.PreviewLen == 0 {
		c.UI.PreviewLen = d.UI.PreviewLen
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# chatdesk configuration file\n")
	sb.WriteString("# Relative paths are resolved against the directory holding this file.\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []*ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.As.
func (e ValidateErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Provider
	if !c.Provider.Mock {
		if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("provider.base_url", "invalid URL %q", c.Provider.BaseURL)
		}
	}
	if c.Provider.MaxTokens < 1 {
		add("provider.max_tokens", "must be positive, got %d", c.Provider.MaxTokens)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 1 {
		add("provider.temperature", "must be between 0 and 1, got %g", c.Provider.Temperature)
	}
	if c.Provider.TimeoutSeconds < 1 || c.Provider.TimeoutSeconds > 600 {
		add("provider.timeout_seconds", "must be 1-600, got %d", c.Provider.TimeoutSeconds)
	}
	if c.Provider.MaxRetries < 1 || c.Provider.MaxRetries > 10 {
		add("provider.max_retries", "must be 1-10, got %d", c.Provider.MaxRetries)
	}
	if c.Provider.RequestsPerMinute < 0 {
		add("provider.requests_per_minute", "cannot be negative")
	}

	// Pricing
	if c.Pricing.InputPerMTok < 0 || c.Pricing.ImagePerMTok < 0 || c.Pricing.OutputPerMTok < 0 {
		add("pricing", "rates cannot be negative")
	}
	if c.Pricing.ImageTokenDivisor <= 0 {
		add("pricing.image_token_divisor", "must be positive")
	}

	// Storage
	switch strings.ToLower(c.Ledger.Backend) {
	case "file", "sqlite":
	default:
		add("ledger.backend", "invalid backend '%s', must be one of: file, sqlite", c.Ledger.Backend)
	}
	if c.Ledger.Path == "" {
		add("ledger.path", "cannot be empty")
	}
	if c.Transcripts.Dir == "" {
		add("transcripts.dir", "cannot be empty")
	}

	// Plugins
	seen := make(map[string]bool)
	for _, name := range c.Plugins.Enabled {
		if name == "" {
			add("plugins.enabled", "plugin name cannot be empty")
			continue
		}
		if seen[name] {
			add("plugins.enabled", "plugin '%s' listed twice", name)
		}
		seen[name] = true
	}

	// UI
	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}
	if c.UI.TickMS < 10 || c.UI.TickMS > 5000 {
		add("ui.tick_ms", "must be 10-5000, got %d", c.UI.TickMS)
	}
	if c.UI.PreviewLen < 1 {
		add("ui.preview_len", "must be positive, got %d", c.UI.PreviewLen)
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATDESK_API_KEY: overrides provider.api_key
//   - ANTHROPIC_API_KEY: used when provider.api_key is still empty
//   - CHATDESK_MODEL: overrides provider.model
//   - CHATDESK_BASE_URL: overrides provider.base_url
//   - CHATDESK_MOCK: "1" or "true" answers locally
//   - CHATDESK_CONTEXT_DIR: overrides context.dir
//   - CHATDESK_TRANSCRIPTS_DIR: overrides transcripts.dir
//   - CHATDESK_LEDGER_BACKEND: overrides ledger.backend
//   - CHATDESK_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("CHATDESK_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model := os.Getenv("CHATDESK_MODEL"); model != "" {
		c.Provider.Model = model
	}
	if base := os.Getenv("CHATDESK_BASE_URL"); base != "" {
		c.Provider.BaseURL = base
	}
	if mock := os.Getenv("CHATDESK_MOCK"); mock != "" {
		c.Provider.Mock = mock == "1" || strings.EqualFold(mock, "true")
	}
	if dir, ok := os.LookupEnv("CHATDESK_CONTEXT_DIR"); ok {
		c.Context.Dir = dir
	}
	if dir := os.Getenv("CHATDESK_TRANSCRIPTS_DIR"); dir != "" {
		c.Transcripts.Dir = dir
	}
	if backend := os.Getenv("CHATDESK_LEDGER_BACKEND"); backend != "" {
		c.Ledger.Backend = backend
	}
	if level := os.Getenv("CHATDESK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "provider.model").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
// "api_key" becomes "ApiKey", which matches APIKey case-insensitively.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets field from value with string conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Plugins.Enabled != nil {
		clone.Plugins.Enabled = append([]string(nil), c.Plugins.Enabled...)
	}
	return &clone
}

// String returns the config as JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Provider.APIKey != "" {
		safe.Provider.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
