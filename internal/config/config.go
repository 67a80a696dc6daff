// Package config loads and validates the YAML configuration surface for
// agentcore: session storage, approval timeouts, model adapter selection,
// per-tool policy overrides, and observability settings.
//
// Grounded on internal/config/config.go's struct-family-per-section layout,
// yaml struct tags, and applyDefaults/validateConfig split, narrowed to the
// handful of sections this core actually needs.
package config

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Config is the root of the YAML configuration document.
type Config struct {
	SessionsDir   string          `yaml:"sessions_dir"`
	Storage       StorageConfig   `yaml:"storage"`
	Approval      ApprovalConfig  `yaml:"approval"`
	Models        ModelsConfig    `yaml:"models"`
	Tools         ToolsConfig     `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig controls whether and how turns are persisted to the
// Transcript Store.
type StorageConfig struct {
	Enabled     bool `yaml:"enabled"`
	AutoSave    bool `yaml:"auto_save"`
	MaxMessages int  `yaml:"max_messages"`
}

// ApprovalConfig controls the Approval Manager's default rendezvous timeout.
type ApprovalConfig struct {
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`
}

// ModelsConfig selects the default model and the API key environment
// variable each adapter reads from.
type ModelsConfig struct {
	Default   string               `yaml:"default"`
	Anthropic ModelProviderConfig  `yaml:"anthropic"`
	OpenAI    ModelProviderConfig  `yaml:"openai"`
}

// ModelProviderConfig names the environment variable holding a provider's
// API key. The key itself never appears in the config file.
type ModelProviderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
}

// ToolsConfig carries per-tool policy overrides layered onto whatever
// policy a tool registers with in code.
type ToolsConfig struct {
	Overrides map[string]ToolOverrideConfig `yaml:"overrides"`
}

// ToolOverrideConfig overrides a subset of a registered Tool's ToolPolicy.
// Fields left at their zero value do not override anything; a tool cannot be
// made to require fewer restrictions than its code-registered policy by
// omission, only by explicit override.
type ToolOverrideConfig struct {
	RequiresApproval    bool     `yaml:"requires_approval"`
	AllowedSessionTypes []string `yaml:"allowed_session_types"`
}

// ObservabilityConfig controls log verbosity/format and the metrics listener
// address.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads path, resolving $include directives and expanding $VAR
// references, and returns a validated Config with defaults applied.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = "./sessions"
	}
	if cfg.Storage.MaxMessages == 0 {
		cfg.Storage.MaxMessages = 200
	}
	if cfg.Approval.DefaultTimeoutMS == 0 {
		cfg.Approval.DefaultTimeoutMS = 300000
	}
	if cfg.Models.Anthropic.APIKeyEnv == "" {
		cfg.Models.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Models.OpenAI.APIKeyEnv == "" {
		cfg.Models.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
	if cfg.Observability.MetricsAddr == "" {
		cfg.Observability.MetricsAddr = ":9090"
	}
}

// ValidationError reports every problem found in a Config in one pass,
// mirroring the teacher's ConfigValidationError accumulate-then-report shape.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Models.Default == "" {
		issues = append(issues, "models.default is required")
	}
	if cfg.Storage.MaxMessages < 0 {
		issues = append(issues, "storage.max_messages must be >= 0")
	}
	if cfg.Approval.DefaultTimeoutMS < 0 {
		issues = append(issues, "approval.default_timeout_ms must be >= 0")
	}
	if !validLogLevel(cfg.Observability.LogLevel) {
		issues = append(issues, "observability.log_level must be \"debug\", \"info\", \"warn\", or \"error\"")
	}
	if !validLogFormat(cfg.Observability.LogFormat) {
		issues = append(issues, "observability.log_format must be \"json\" or \"text\"")
	}
	for name, override := range cfg.Tools.Overrides {
		for _, st := range override.AllowedSessionTypes {
			if !validSessionType(st) {
				issues = append(issues, fmt.Sprintf("tools.overrides[%s].allowed_session_types contains invalid type %q", name, st))
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validLogFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "text":
		return true
	default:
		return false
	}
}

func validSessionType(st string) bool {
	switch models.SessionType(st) {
	case models.SessionMain, models.SessionDM, models.SessionGroup, models.SessionTopic:
		return true
	default:
		return false
	}
}

// ApplyToolOverride layers a config-declared override onto a tool's
// code-registered policy, returning the resulting policy. The tool's own
// SandboxRequired and MaxExecutionTimeSeconds are never weakened by config.
func ApplyToolOverride(base models.ToolPolicy, override ToolOverrideConfig) models.ToolPolicy {
	result := base
	if override.RequiresApproval {
		result.RequiresApproval = true
	}
	if len(override.AllowedSessionTypes) > 0 {
		allowed := make(map[models.SessionType]bool, len(override.AllowedSessionTypes))
		for _, st := range override.AllowedSessionTypes {
			allowed[models.SessionType(st)] = true
		}
		result.AllowedSessionTypes = allowed
	}
	return result
}
