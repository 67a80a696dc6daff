package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/adapter"
	"github.com/haasonsaas/agentcore/internal/approval"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/obslog"
	"github.com/haasonsaas/agentcore/internal/registry"
	"github.com/haasonsaas/agentcore/internal/runtime"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/internal/transcript"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// buildServeCmd creates the "serve" command, the primary entry point for
// running an interactive agentcore session against stdin/stdout.
//
// Grounded on cmd/nexus/commands_serve.go's --config/--debug flag pair.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an interactive agentcore session reading from stdin",
		Long: `Start an interactive agentcore session.

Each line read from stdin is treated as a chat turn in a single "cli"
session, except lines of the form "/approve <record-id>" or
"/deny <record-id>", which resolve a pending approval instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// stdoutNotifier prints approval prompts directly to the interactive
// session's own output stream, rather than through structured logging —
// the human on the other end of stdin is the approval channel itself.
type stdoutNotifier struct{}

func (stdoutNotifier) Send(recipientID, content string) bool {
	fmt.Printf("\n[approval] %s\n> ", content)
	return true
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := parseLevel(cfg.Observability.LogLevel)
	if debug {
		logLevel = slog.LevelDebug
	}
	obsLog := obslog.New(obslog.Config{
		Level:  logLevel,
		Format: obslog.Format(cfg.Observability.LogFormat),
	})
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	metrics := observability.NewMetrics()
	stopMetrics := startMetricsServer(cfg.Observability.MetricsAddr)
	defer stopMetrics(context.Background())

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := registerBuiltinTools(reg, cfg); err != nil {
		return fmt.Errorf("failed to register built-in tools: %w", err)
	}

	var store transcript.Store
	if cfg.Storage.Enabled {
		store = transcript.NewFileStore(cfg.SessionsDir)
	}

	approvals := approval.NewManager()
	rt := runtime.New(reg, approvals, store, stdoutNotifier{}, adapters, cfg.Models.Default)
	rt.Metrics = metrics
	rt.ObsLog = obsLog
	rt.ApprovalTimeout = time.Duration(cfg.Approval.DefaultTimeoutMS) * time.Millisecond

	slog.Info("agentcore ready", "model", cfg.Models.Default, "metrics_addr", cfg.Observability.MetricsAddr)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runStdinLoop(ctx, rt)
}

func runStdinLoop(ctx context.Context, rt *runtime.Runtime) error {
	const sessionID = "cli"

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(ctx, rt, sessionID, line)
			fmt.Print("> ")
		}
	}
}

func handleLine(ctx context.Context, rt *runtime.Runtime, sessionID, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if recordID, decision, ok := parseApprovalCommand(line); ok {
		if rt.ResolveApproval(recordID, decision, "cli-operator") {
			fmt.Printf("recorded %s for %s\n", decision, recordID)
		} else {
			fmt.Printf("no pending approval %s\n", recordID)
		}
		return
	}

	reply, err := rt.Chat(ctx, sessionID, "stdin", "operator", line, "")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(reply)
}

func parseApprovalCommand(line string) (recordID string, decision models.Decision, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", false
	}
	switch fields[0] {
	case "/approve":
		return fields[1], models.DecisionApprove, true
	case "/deny":
		return fields[1], models.DecisionDeny, true
	default:
		return "", "", false
	}
}

func buildAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if key := os.Getenv(cfg.Models.Anthropic.APIKeyEnv); key != "" {
		a, err := adapter.NewAnthropicAdapter(adapter.AnthropicConfig{APIKey: key, DefaultModel: cfg.Models.Default})
		if err != nil {
			return nil, fmt.Errorf("failed to build anthropic adapter: %w", err)
		}
		adapters[cfg.Models.Default] = a
	}
	if key := os.Getenv(cfg.Models.OpenAI.APIKeyEnv); key != "" {
		a, err := adapter.NewOpenAIAdapter(adapter.OpenAIConfig{APIKey: key, DefaultModel: cfg.Models.Default})
		if err != nil {
			return nil, fmt.Errorf("failed to build openai adapter: %w", err)
		}
		if _, exists := adapters[cfg.Models.Default]; !exists {
			adapters[cfg.Models.Default] = a
		}
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no model adapter configured: set %s or %s", cfg.Models.Anthropic.APIKeyEnv, cfg.Models.OpenAI.APIKeyEnv)
	}
	return adapters, nil
}

func registerBuiltinTools(reg *registry.Registry, cfg *config.Config) error {
	shell := tools.Shell()
	if override, ok := cfg.Tools.Overrides[shell.Name]; ok {
		shell.Policy = config.ApplyToolOverride(shell.Policy, override)
	}
	if err := reg.Register(shell); err != nil {
		return err
	}

	echo := tools.Echo()
	if override, ok := cfg.Tools.Overrides[echo.Name]; ok {
		echo.Policy = config.ApplyToolOverride(echo.Policy, override)
	}
	return reg.Register(echo)
}

func startMetricsServer(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return server.Shutdown
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
