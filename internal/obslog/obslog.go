// Package obslog provides structured event logging for the reasoning loop
// and its collaborators: tool invocation/denial, policy violations, and
// approval decisions. Grounded on internal/audit/logger.go's per-event
// helper-method shape and its Config{Level, Format} handler selection,
// narrowed to this core's synchronous event set — logging a turn's handful
// of events does not need the teacher's buffered async writer, which exists
// to survive bursty multi-channel traffic that is out of scope here.
package obslog

import (
	"context"
	"log/slog"
	"os"
)

// Format selects the slog handler used for output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls a Logger's output format and minimum level.
type Config struct {
	Level  slog.Level
	Format Format
}

// Logger emits one structured event per call, synchronously, through
// log/slog — the teacher's own ambient logging choice (internal/audit/logger.go),
// not a stdlib substitution for a missing library.
type Logger struct {
	slogger *slog.Logger
}

// New builds a Logger writing to os.Stderr per cfg.
func New(cfg Config) *Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level}
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return &Logger{slogger: slog.New(handler).With("component", "agentcore")}
}

// NewNop builds a Logger that discards everything — the zero-configuration
// default for tests and callers that don't care about event output.
func NewNop() *Logger {
	return &Logger{slogger: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// LogToolInvocation logs a tool about to execute.
func (l *Logger) LogToolInvocation(sessionID, toolName, toolCallID string) {
	if l == nil {
		return
	}
	l.slogger.Info("tool_invoked", "session_id", sessionID, "tool_name", toolName, "tool_call_id", toolCallID)
}

// LogToolCompletion logs a tool execution's outcome.
func (l *Logger) LogToolCompletion(sessionID, toolName, toolCallID string, success bool, durationMs int64) {
	if l == nil {
		return
	}
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	l.slogger.Log(context.Background(), level, "tool_completed",
		"session_id", sessionID, "tool_name", toolName, "tool_call_id", toolCallID,
		"success", success, "duration_ms", durationMs)
}

// LogToolDenied logs a tool call rejected by policy or unknown-name lookup.
func (l *Logger) LogToolDenied(sessionID, toolName, toolCallID, reason string) {
	if l == nil {
		return
	}
	l.slogger.Warn("tool_denied", "session_id", sessionID, "tool_name", toolName, "tool_call_id", toolCallID, "reason", reason)
}

// LogPolicyViolation logs a defensive-gate rejection: the model named a tool
// outside the session-typed schema set it was presented.
func (l *Logger) LogPolicyViolation(sessionID, toolName string, sessionType string) {
	if l == nil {
		return
	}
	l.slogger.Warn("policy_violation", "session_id", sessionID, "tool_name", toolName, "session_type", sessionType)
}

// LogApprovalDecision logs an approval rendezvous resolution.
func (l *Logger) LogApprovalDecision(sessionID, recordID, toolName, decision, resolvedBy string) {
	if l == nil {
		return
	}
	l.slogger.Info("approval_decision", "session_id", sessionID, "record_id", recordID, "tool_name", toolName, "decision", decision, "resolved_by", resolvedBy)
}

// LogModelError logs an aborted turn caused by a classified adapter failure.
func (l *Logger) LogModelError(sessionID, model string, kind string, err error) {
	if l == nil {
		return
	}
	l.slogger.Error("model_error", "session_id", sessionID, "model", model, "kind", kind, "error", err)
}

// LogIterationCapReached logs a turn exhausting the reasoning loop's
// iteration cap.
func (l *Logger) LogIterationCapReached(sessionID string, iterations int) {
	if l == nil {
		return
	}
	l.slogger.Warn("iteration_cap_reached", "session_id", sessionID, "iterations", iterations)
}
