package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
models:
  default: "claude-sonnet-4-20250514"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./sessions", cfg.SessionsDir)
	require.Equal(t, 200, cfg.Storage.MaxMessages)
	require.Equal(t, 300000, cfg.Approval.DefaultTimeoutMS)
	require.Equal(t, "ANTHROPIC_API_KEY", cfg.Models.Anthropic.APIKeyEnv)
	require.Equal(t, "OPENAI_API_KEY", cfg.Models.OpenAI.APIKeyEnv)
	require.Equal(t, "info", cfg.Observability.LogLevel)
	require.Equal(t, "json", cfg.Observability.LogFormat)
	require.Equal(t, ":9090", cfg.Observability.MetricsAddr)
}

func TestLoadRejectsMissingDefaultModel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
sessions_dir: "./sessions"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "models.default is required")
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("AGENTCORE_METRICS_ADDR", ":9999")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
models:
  default: "claude-sonnet-4-20250514"
observability:
  metrics_addr: "${AGENTCORE_METRICS_ADDR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Observability.MetricsAddr)
}

func TestLoadResolvesIncludeWithDeepMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
models:
  default: "claude-sonnet-4-20250514"
tools:
  overrides:
    shell:
      requires_approval: true
      allowed_session_types: ["MAIN"]
`)
	path := writeFile(t, dir, "config.yaml", `
$include: "base.yaml"
sessions_dir: "./custom-sessions"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./custom-sessions", cfg.SessionsDir)
	require.Equal(t, "claude-sonnet-4-20250514", cfg.Models.Default)
	override, ok := cfg.Tools.Overrides["shell"]
	require.True(t, ok)
	require.True(t, override.RequiresApproval)
	require.Equal(t, []string{"MAIN"}, override.AllowedSessionTypes)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
$include: "b.yaml"
`)
	path := writeFile(t, dir, "b.yaml", `
$include: "a.yaml"
`)

	_, err := LoadRaw(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "include cycle")
}

func TestApplyToolOverrideLayersOntoBasePolicy(t *testing.T) {
	base := models.ToolPolicy{
		AllowedSessionTypes:     map[models.SessionType]bool{models.SessionMain: true},
		RequiresApproval:        false,
		SandboxRequired:         true,
		MaxExecutionTimeSeconds: 15,
	}
	override := ToolOverrideConfig{
		RequiresApproval:    true,
		AllowedSessionTypes: []string{"MAIN", "DM"},
	}

	result := ApplyToolOverride(base, override)
	require.True(t, result.RequiresApproval)
	require.True(t, result.SandboxRequired)
	require.Equal(t, 15, result.MaxExecutionTimeSeconds)
	require.True(t, result.Allows(models.SessionDM))
	require.True(t, result.Allows(models.SessionMain))
}

func TestApplyToolOverrideEmptyLeavesBaseUnchanged(t *testing.T) {
	base := models.DefaultToolPolicy()
	result := ApplyToolOverride(base, ToolOverrideConfig{})
	require.Equal(t, base, result)
}

func TestInvalidLogLevelFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
models:
  default: "claude-sonnet-4-20250514"
observability:
  log_level: "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
}
