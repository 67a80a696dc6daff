package runtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentcore/internal/adapter"
	"github.com/haasonsaas/agentcore/internal/approval"
	"github.com/haasonsaas/agentcore/internal/notifier"
	"github.com/haasonsaas/agentcore/internal/registry"
	"github.com/haasonsaas/agentcore/internal/transcript"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func newTestRuntime(t *testing.T, adapters map[string]adapter.Adapter) (*Runtime, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "agentcore-runtime-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store := transcript.NewFileStore(dir)
	r := New(registry.New(), approval.NewManager(), store, notifier.LogNotifier{}, adapters, "local")
	return r, dir
}

func TestChatCreatesSessionAndPersists(t *testing.T) {
	a := adapter.NewLocalAdapter(adapter.ScriptedResponse{
		Response: models.ModelResponse{Text: "hello", StopReason: models.StopEndTurn},
	})
	r, _ := newTestRuntime(t, map[string]adapter.Adapter{"local": a})

	reply, err := r.Chat(context.Background(), "main_1_u1", "cli", "u1", "hi", "")
	require.NoError(t, err)
	require.Equal(t, "hello", reply)

	sessCtx, ok := r.GetSession("main_1_u1")
	require.True(t, ok)
	require.Equal(t, models.SessionMain, sessCtx.SessionType)
	require.Len(t, sessCtx.Messages(), 2)
}

func TestChatRehydratesTranscriptOnRecreate(t *testing.T) {
	a1 := adapter.NewLocalAdapter(adapter.ScriptedResponse{
		Response: models.ModelResponse{Text: "first", StopReason: models.StopEndTurn},
	})
	dir, err := os.MkdirTemp("", "agentcore-runtime-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	store := transcript.NewFileStore(dir)

	r1 := New(registry.New(), approval.NewManager(), store, notifier.LogNotifier{}, map[string]adapter.Adapter{"local": a1}, "local")
	_, err = r1.Chat(context.Background(), "main_1_u1", "cli", "u1", "hi", "")
	require.NoError(t, err)

	a2 := adapter.NewLocalAdapter(adapter.ScriptedResponse{
		Response: models.ModelResponse{Text: "second", StopReason: models.StopEndTurn},
	})
	r2 := New(registry.New(), approval.NewManager(), store, notifier.LogNotifier{}, map[string]adapter.Adapter{"local": a2}, "local")
	_, err = r2.Chat(context.Background(), "main_1_u1", "cli", "u1", "again", "")
	require.NoError(t, err)

	sessCtx, ok := r2.GetSession("main_1_u1")
	require.True(t, ok)
	msgs := sessCtx.Messages()
	require.Len(t, msgs, 4) // rehydrated [user(hi), assistant(first)] + new [user(again), assistant(second)]
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, "second", msgs[3].Content)
}

func TestChatUnknownModelReturnsError(t *testing.T) {
	r, _ := newTestRuntime(t, map[string]adapter.Adapter{})
	_, err := r.Chat(context.Background(), "main_1_u1", "cli", "u1", "hi", "ghost-model")
	require.Error(t, err)
}

func TestResolveApprovalRejectsTimeoutDecision(t *testing.T) {
	r, _ := newTestRuntime(t, map[string]adapter.Adapter{})
	ok := r.ResolveApproval("whatever", models.DecisionTimeout, "u1")
	require.False(t, ok)
}

func TestClearSessionUnblocksPendingApprovalAndEvicts(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{
			ToolCalls:  []models.ToolCallRef{{ID: "t1", Name: "write"}},
			StopReason: models.StopToolUse,
		}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "after interrupted approval", StopReason: models.StopEndTurn}},
	)
	r, _ := newTestRuntime(t, map[string]adapter.Adapter{"local": a})
	require.NoError(t, r.RegisterTool(models.Tool{
		Name: "write",
		Policy: models.ToolPolicy{
			AllowedSessionTypes: map[models.SessionType]bool{models.SessionMain: true},
			RequiresApproval:    true,
		},
		Execute: func(context.Context, map[string]any, string, models.SessionType) (models.ToolResult, error) {
			return models.ToolResult{Success: true}, nil
		},
	}))

	done := make(chan struct{})
	go func() {
		r.Chat(context.Background(), "main_1_u1", "cli", "u1", "write something", "")
		close(done)
	}()

	// Give the turn time to reach the approval suspension before clearing.
	time.Sleep(20 * time.Millisecond)
	r.ClearSession("main_1_u1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ClearSession did not unblock an in-flight turn")
	}

	_, ok := r.GetSession("main_1_u1")
	require.False(t, ok)
}

func TestListSessionsSorted(t *testing.T) {
	a := adapter.NewLocalAdapter(
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "a", StopReason: models.StopEndTurn}},
		adapter.ScriptedResponse{Response: models.ModelResponse{Text: "b", StopReason: models.StopEndTurn}},
	)
	r, _ := newTestRuntime(t, map[string]adapter.Adapter{"local": a})
	_, err := r.Chat(context.Background(), "main_2_u2", "cli", "u2", "hi", "")
	require.NoError(t, err)
	_, err = r.Chat(context.Background(), "main_1_u1", "cli", "u1", "hi", "")
	require.NoError(t, err)

	require.Equal(t, []string{"main_1_u1", "main_2_u2"}, r.ListSessions())
}
