package loop

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentcore/internal/adapter"
	"github.com/haasonsaas/agentcore/internal/approval"
	"github.com/haasonsaas/agentcore/internal/notifier"
	"github.com/haasonsaas/agentcore/internal/registry"
	"github.com/haasonsaas/agentcore/internal/session"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// capturingNotifier records the approval record id embedded in each prompt
// it's asked to deliver, so a test can drive resolve(record_id, ...) without
// the Manager needing to expose a "list pending by session" API it has no
// production use for.
type capturingNotifier struct {
	mu  sync.Mutex
	ids []string
}

var recordIDPattern = regexp.MustCompile(`record ([0-9a-fA-F-]+)\)`)

func (c *capturingNotifier) Send(_ string, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := recordIDPattern.FindStringSubmatch(content); m != nil {
		c.ids = append(c.ids, m[1])
	}
	return true
}

func (c *capturingNotifier) lastID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ids) == 0 {
		return ""
	}
	return c.ids[len(c.ids)-1]
}

func newSessionCtx(sessionType models.SessionType) *session.Context {
	return session.NewContext("s1", "cli", "u1", "Alice", sessionType)
}

// Scenario A — simple reply, no tools.
func TestChatSimpleReplyNoTools(t *testing.T) {
	a := adapter.NewLocalAdapter(adapter.ScriptedResponse{
		Response: models.ModelResponse{Text: "hello", StopReason: models.StopEndTurn},
	})
	l := New(a, registry.New(), approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "hi")
	require.NoError(t, err)
	require.Equal(t, "hello", reply)

	msgs := sessCtx.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleUser, msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Equal(t, "hello", msgs[1].Content)
	require.Len(t, a.Calls(), 1)
}

// Scenario B — single tool call.
func TestChatSingleToolCall(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "echo", Arguments: map[string]any{"msg": "ok"}}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "done", StopReason: models.StopEndTurn}},
	)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "echo",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(_ context.Context, args map[string]any, _ string, _ models.SessionType) (models.ToolResult, error) {
			return models.ToolResult{Success: true, Output: args["msg"].(string)}, nil
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "run echo")
	require.NoError(t, err)
	require.Equal(t, "done", reply)

	msgs := sessCtx.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Equal(t, "t1", msgs[1].ToolCalls[0].ID)
	require.Equal(t, models.RoleTool, msgs[2].Role)
	require.Equal(t, "t1", msgs[2].ToolCallID)
	require.Equal(t, "ok", msgs[2].Content)
	require.Equal(t, "done", msgs[3].Content)
	require.Len(t, a.Calls(), 2)
}

// A tool whose body panics must not take the whole turn down with it: the
// panic is recovered into a failed ToolResult and the turn continues
// normally, same as any other tool failure.
func TestChatToolExecutionPanicRecovers(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "boom", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "handled it", StopReason: models.StopEndTurn}},
	)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "boom",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			panic("nil map write")
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "run boom")
	require.NoError(t, err)
	require.Equal(t, "handled it", reply)

	msgs := sessCtx.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, models.RoleTool, msgs[2].Role)
	require.True(t, msgs[2].ToolError)
	require.Contains(t, msgs[2].Content, "panicked")
	require.Len(t, a.Calls(), 2)
}

// Scenario C — policy denial.
func TestChatPolicyDenial(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "shell", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "can't do that", StopReason: models.StopEndTurn}},
	)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "shell",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			t.Fatal("shell must never execute under GROUP policy")
			return models.ToolResult{}, nil
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionGroup)

	reply, err := l.Chat(context.Background(), sessCtx, "run shell")
	require.NoError(t, err)
	require.Equal(t, "can't do that", reply)

	msgs := sessCtx.Messages()
	require.Equal(t, "not permitted in this session", msgs[2].Content)
}

// Scenario D — approval approved.
func TestChatApprovalApproved(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "write", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "written", StopReason: models.StopEndTurn}},
	)
	r := registry.New()
	executed := false
	require.NoError(t, r.Register(models.Tool{
		Name: "write",
		Policy: models.ToolPolicy{
			AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true},
			RequiresApproval:    true,
		},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			executed = true
			return models.ToolResult{Success: true, Output: "ok"}, nil
		},
	}))
	am := approval.NewManager()
	n := &capturingNotifier{}
	l := New(a, r, am, n)
	sessCtx := newSessionCtx(models.SessionMain)

	go func() {
		for i := 0; i < 100 && n.lastID() == ""; i++ {
			time.Sleep(time.Millisecond)
		}
		am.Resolve(n.lastID(), models.DecisionApprove, "u1")
	}()

	reply, err := l.Chat(context.Background(), sessCtx, "please write")
	require.NoError(t, err)
	require.Equal(t, "written", reply)
	require.True(t, executed)

	rec, ok := am.Get(n.lastID())
	require.True(t, ok)
	require.Equal(t, models.DecisionApprove, *rec.Decision)
	require.Equal(t, "u1", rec.ResolvedBy)
}

// Scenario E — approval timeout.
func TestChatApprovalTimeout(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "write", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "ok, skipped", StopReason: models.StopEndTurn}},
	)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name: "write",
		Policy: models.ToolPolicy{
			AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true},
			RequiresApproval:    true,
		},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			t.Fatal("write must never execute when approval times out")
			return models.ToolResult{}, nil
		},
	}))
	am := approval.NewManager()
	am.Prune(0) // exercise Prune's no-op path on an empty table
	n := &capturingNotifier{}
	l := New(a, r, am, n)
	l.ApprovalTimeout = 15 * time.Millisecond
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "please write")
	require.NoError(t, err)
	require.Equal(t, "ok, skipped", reply)

	msgs := sessCtx.Messages()
	require.Equal(t, "timed out", msgs[2].Content)

	rec, ok := am.Get(n.lastID())
	require.True(t, ok)
	require.Equal(t, models.DecisionTimeout, *rec.Decision)

	// A late resolve after timeout is a no-op, per the first-transition-wins rule.
	require.False(t, am.Resolve(n.lastID(), models.DecisionApprove, "late"))
}

// Scenario F — iteration cap.
func TestChatIterationCapReached(t *testing.T) {
	script := make([]adapter.ScriptedResponse, MaxIterations)
	for i := range script {
		script[i] = adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "noop", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}}
	}
	a := adapter.NewLocalAdapter(script...)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "noop",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			return models.ToolResult{Success: true}, nil
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "go forever")
	require.NoError(t, err)
	require.Equal(t, IterationCapMessage, reply)
	require.Len(t, a.Calls(), MaxIterations)
}

func TestChatDuplicateToolCallIDFailsTurn(t *testing.T) {
	a := adapter.NewLocalAdapter(adapter.ScriptedResponse{Response: models.ModelResponse{
		ToolCalls: []models.ToolCallRef{
			{ID: "t1", Name: "noop"},
			{ID: "t1", Name: "noop"},
		},
		StopReason: models.StopToolUse,
	}})
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "noop",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			return models.ToolResult{Success: true}, nil
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	_, err := l.Chat(context.Background(), sessCtx, "dup")
	require.Error(t, err)
}

func TestChatWithMaxIterationsOverridesCap(t *testing.T) {
	script := make([]adapter.ScriptedResponse, 3)
	for i := range script {
		script[i] = adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "noop", Arguments: map[string]any{}}},
			StopReason: models.StopToolUse,
		}}
	}
	a := adapter.NewLocalAdapter(script...)
	r := registry.New()
	require.NoError(t, r.Register(models.Tool{
		Name:   "noop",
		Policy: models.ToolPolicy{AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true}},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			return models.ToolResult{Success: true}, nil
		},
	}))
	l := New(a, r, approval.NewManager(), notifier.LogNotifier{}, WithMaxIterations(3))
	sessCtx := newSessionCtx(models.SessionMain)

	reply, err := l.Chat(context.Background(), sessCtx, "go forever")
	require.NoError(t, err)
	require.Equal(t, IterationCapMessage, reply)
	require.Len(t, a.Calls(), 3)
}

func TestWithMaxIterationsIgnoresNonPositiveValue(t *testing.T) {
	l := New(nil, nil, nil, nil, WithMaxIterations(0))
	require.Equal(t, MaxIterations, l.iterationCap())
}

func TestChatModelErrorAbortsTurn(t *testing.T) {
	a := adapter.NewLocalAdapter(adapter.ScriptedResponse{
		Err: adapter.NewProviderError("anthropic", "claude", context.DeadlineExceeded),
	})
	l := New(a, registry.New(), approval.NewManager(), notifier.LogNotifier{})
	sessCtx := newSessionCtx(models.SessionMain)

	_, err := l.Chat(context.Background(), sessCtx, "hi")
	require.Error(t, err)
	var loopErr *Error
	require.ErrorAs(t, err, &loopErr)
	require.Equal(t, adapter.KindTimeout, loopErr.Kind)
}
