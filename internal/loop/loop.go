// Package loop implements the Reasoning Loop component: the bounded
// model-tool iteration at the center of one chat turn.
//
// Grounded on internal/agent/loop.go's AgenticLoop.Run phase state machine
// (init -> stream -> execute_tools -> continue -> complete), adapted from
// streaming chunk delivery to a single synchronous return, and from the
// teacher's parallel/semaphore tool executor to strictly sequential,
// in-order execution within a turn — a deliberate behavioral change, not an
// oversight: later tool calls in the same batch may depend on side effects
// of earlier ones, and approval prompts must surface in a predictable order.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/agentcore/internal/adapter"
	"github.com/haasonsaas/agentcore/internal/approval"
	"github.com/haasonsaas/agentcore/internal/notifier"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/obslog"
	"github.com/haasonsaas/agentcore/internal/registry"
	"github.com/haasonsaas/agentcore/internal/session"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// MaxIterations is the default cap on model calls per chat turn, used unless
// a Loop is built with WithMaxIterations. It exists as a safety rail against
// runaway tool-call chains, not as a knob most callers should touch.
const MaxIterations = 10

// IterationCapMessage is the sentinel assistant reply appended when the cap
// is exhausted without a tool-call-free response. Its text is treated as a
// successful completion, not an error, from the Runtime's perspective.
const IterationCapMessage = "Error: Maximum tool execution iterations reached"

// Loop wires the four collaborators a single chat turn needs: an Adapter to
// talk to a model, a Registry to resolve and gate tool calls, an
// approval.Manager for human-in-the-loop gates, and an optional Notifier to
// prompt a human. A nil Notifier means approval-gated tools always fail
// closed with "approval required but no channel".
type Loop struct {
	Adapter   adapter.Adapter
	Registry  *registry.Registry
	Approvals *approval.Manager
	Notifier  notifier.Notifier

	// ApprovalTimeout overrides approval.DefaultTimeout for records this
	// Loop creates. Zero means use the Manager's default.
	ApprovalTimeout time.Duration

	// Metrics and ObsLog are optional ambient-stack collaborators. Both are
	// nil-safe: a zero-value Loop logs and records nothing, so wiring them
	// is never required to pass the reasoning loop's own behavior.
	Metrics *observability.Metrics
	ObsLog  *obslog.Logger

	// ModelName labels Metrics/ObsLog output; it does not affect dispatch
	// (the Runtime already selected l.Adapter for this model before
	// constructing the Loop). Empty is a valid label value.
	ModelName string

	// maxIterations overrides MaxIterations for this Loop. Zero means use
	// the package default. Not exposed through the YAML config surface —
	// only through WithMaxIterations, since wider runtime configurability
	// of the cap is explicitly out of scope.
	maxIterations int
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithMaxIterations overrides MaxIterations for one Loop. n must be positive;
// a non-positive n is ignored.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// New builds a Loop from its collaborators.
func New(a adapter.Adapter, r *registry.Registry, am *approval.Manager, n notifier.Notifier, opts ...Option) *Loop {
	l := &Loop{Adapter: a, Registry: r, Approvals: am, Notifier: n}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) iterationCap() int {
	if l.maxIterations > 0 {
		return l.maxIterations
	}
	return MaxIterations
}

// Chat runs one complete turn: append the user message, iterate model calls
// and tool executions up to the iteration cap, and return the final
// assistant reply text. The caller is expected to hold ctx's session lock
// for the entire call, including any approval suspension inside it.
func (l *Loop) Chat(ctx context.Context, sessCtx *session.Context, userText string) (string, error) {
	start := time.Now()
	sessCtx.AppendMessage(models.Message{Role: models.RoleUser, Content: userText})

	tools := l.Registry.SchemasFor(sessCtx.SessionType)
	maxIter := l.iterationCap()

	for iteration := 1; iteration <= maxIter; iteration++ {
		resp, err := l.Adapter.Chat(ctx, sessCtx.Messages(), tools, models.ChatOptions{})
		if err != nil {
			l.Metrics.RecordChat(l.ModelName, "error", time.Since(start).Seconds(), iteration)
			loopErr := l.abort(iteration, err)
			l.ObsLog.LogModelError(sessCtx.SessionID, l.ModelName, string(loopErr.Kind), err)
			return "", loopErr
		}

		if len(resp.ToolCalls) == 0 {
			sessCtx.AppendMessage(models.Message{Role: models.RoleAssistant, Content: resp.Text})
			l.Metrics.RecordChat(l.ModelName, "success", time.Since(start).Seconds(), iteration)
			return resp.Text, nil
		}

		if err := duplicateCallID(resp.ToolCalls); err != nil {
			l.Metrics.RecordChat(l.ModelName, "error", time.Since(start).Seconds(), iteration)
			return "", &Error{Phase: PhaseModelCall, Iteration: iteration, Kind: adapter.KindMalformed, Cause: err}
		}

		sessCtx.AppendMessage(models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := l.executeOne(ctx, sessCtx, call, iteration)
			text, isError := resultText(result)
			sessCtx.AppendMessage(models.Message{
				Role:       models.RoleTool,
				Content:    text,
				ToolCallID: call.ID,
				ToolError:  isError,
			})
		}
	}

	sessCtx.AppendMessage(models.Message{Role: models.RoleAssistant, Content: IterationCapMessage})
	l.Metrics.RecordChat(l.ModelName, "iteration_cap", time.Since(start).Seconds(), maxIter)
	l.ObsLog.LogIterationCapReached(sessCtx.SessionID, maxIter)
	return IterationCapMessage, nil
}

// executeOne runs the two policy gates and, if both pass, the approval
// rendezvous (when required) and the tool body itself. Every failure path
// returns a ToolResult; execute never lets a tool-local error reach the
// caller as a Go error.
func (l *Loop) executeOne(ctx context.Context, sessCtx *session.Context, call models.ToolCallRef, iteration int) models.ToolResult {
	tool, ok := l.Registry.Get(call.Name)
	if !ok {
		l.ObsLog.LogToolDenied(sessCtx.SessionID, call.Name, call.ID, "unknown tool")
		l.Metrics.RecordTool(call.Name, "unknown", 0)
		return models.ToolResult{Success: false, Error: "unknown tool"}
	}
	if !l.Registry.CheckPolicy(tool, sessCtx.SessionType) {
		l.ObsLog.LogPolicyViolation(sessCtx.SessionID, tool.Name, string(sessCtx.SessionType))
		l.Metrics.RecordTool(tool.Name, "denied", 0)
		return models.ToolResult{Success: false, Error: "not permitted in this session"}
	}

	l.ObsLog.LogToolInvocation(sessCtx.SessionID, tool.Name, call.ID)
	start := time.Now()

	if tool.Policy.RequiresApproval {
		if result, gated := l.awaitApproval(ctx, sessCtx, tool, call); gated {
			l.Metrics.RecordTool(tool.Name, "denied", time.Since(start).Seconds())
			l.ObsLog.LogToolCompletion(sessCtx.SessionID, tool.Name, call.ID, false, time.Since(start).Milliseconds())
			return result
		}
	}

	deadline := time.Duration(tool.Policy.MaxExecutionTimeSeconds) * time.Second
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := runTool(execCtx, tool, call.Arguments, workspaceOf(sessCtx), sessCtx.SessionType)
	if err != nil {
		l.Metrics.RecordTool(tool.Name, "error", time.Since(start).Seconds())
		l.ObsLog.LogToolCompletion(sessCtx.SessionID, tool.Name, call.ID, false, time.Since(start).Milliseconds())
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	outcome := "success"
	if !result.Success {
		outcome = "failed"
	}
	l.Metrics.RecordTool(tool.Name, outcome, time.Since(start).Seconds())
	l.ObsLog.LogToolCompletion(sessCtx.SessionID, tool.Name, call.ID, result.Success, time.Since(start).Milliseconds())
	return result
}

// awaitApproval runs the Notifier-and-rendezvous gate for one tool call. The
// bool result reports whether the call is gated (a ToolResult should be
// returned immediately) as opposed to cleared to execute.
func (l *Loop) awaitApproval(ctx context.Context, sessCtx *session.Context, tool models.Tool, call models.ToolCallRef) (models.ToolResult, bool) {
	if l.Notifier == nil {
		return models.ToolResult{Success: false, Error: "approval required but no channel"}, true
	}

	req := models.ApprovalRequest{
		ToolName:   tool.Name,
		Args:       call.Arguments,
		SessionKey: sessCtx.SessionID,
		AgentID:    sessCtx.SenderID,
		Reason:     fmt.Sprintf("tool %q requires approval", tool.Name),
	}
	record := l.Approvals.Create(req, l.ApprovalTimeout)
	l.Notifier.Send(sessCtx.SenderID, notifier.FormatApprovalPrompt(tool.Name, req.Reason, record.ID))

	decision, err := l.Approvals.WaitForDecision(ctx, record)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("approval interrupted: %v", err)}, true
	}

	l.Metrics.RecordApproval(string(decision))
	l.ObsLog.LogApprovalDecision(sessCtx.SessionID, record.ID, tool.Name, string(decision), "")

	switch decision {
	case models.DecisionApprove:
		return models.ToolResult{}, false
	case models.DecisionDeny:
		return models.ToolResult{Success: false, Error: "denied"}, true
	default:
		return models.ToolResult{Success: false, Error: "timed out"}, true
	}
}

func (l *Loop) abort(iteration int, err error) *Error {
	var pe *adapter.ProviderError
	kind := adapter.KindMalformed
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	return &Error{Phase: PhaseModelCall, Iteration: iteration, Kind: kind, Cause: err}
}

func duplicateCallID(calls []models.ToolCallRef) error {
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		if seen[c.ID] {
			return fmt.Errorf("duplicate tool_call_id %q in one response", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// resultText returns the text a ToolResult feeds back to the model and
// whether it represents a failed execution, so adapters can serialize the
// failure as an error flag instead of opaque text.
func resultText(r models.ToolResult) (text string, isError bool) {
	if r.Success {
		return r.Output, false
	}
	return r.Error, true
}

func workspaceOf(sessCtx *session.Context) string {
	if sessCtx.Workspace == "" {
		return "."
	}
	return sessCtx.Workspace
}

// runTool executes a tool body in its own goroutine and recovers a panic
// into an error instead of letting it cross the goroutine boundary and
// crash the process — a panicking tool would otherwise take down every
// other in-flight session, not just the turn that triggered it.
//
// Grounded on executor.go's executeWithTimeout: a buffered result channel
// raced against the execution context's Done(), with the goroutine's own
// deferred recover() converting a panic into a typed failure.
func runTool(ctx context.Context, tool models.Tool, args map[string]any, workspace string, sessionType models.SessionType) (models.ToolResult, error) {
	type outcome struct {
		result models.ToolResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("tool %q panicked: %v\n%s", tool.Name, r, debug.Stack())}
			}
		}()
		result, err := tool.Execute(ctx, args, workspace, sessionType)
		resultCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return models.ToolResult{}, ctx.Err()
	}
}
