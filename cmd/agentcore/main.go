// Package main provides the CLI entry point for agentcore, a bounded
// model-tool reasoning loop with human-in-the-loop approval gates.
//
// # Basic Usage
//
// Start an interactive session against stdin/stdout:
//
//	agentcore serve --config agentcore.yaml
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key, name configurable via
//     models.anthropic.api_key_env in the config file.
//   - OPENAI_API_KEY: OpenAI API key, name configurable via
//     models.openai.api_key_env.
//
// Grounded on cmd/nexus/main.go's buildRootCmd()/version-ldflags pattern,
// narrowed to a single serve subcommand; the build information is reported
// through the root command's --version flag.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached. This
// is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - bounded model-tool reasoning loop",
		Long: `agentcore runs a single-process chat turn loop: a Model Adapter proposes
tool calls, a Tool Registry gates them by session trust level, and an
Approval Manager suspends execution of sensitive tools pending an
out-of-band decision.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())

	return rootCmd
}
