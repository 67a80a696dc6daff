package adapter

import (
	"context"
	"sync"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ScriptedResponse is one canned reply a LocalAdapter returns in sequence.
type ScriptedResponse struct {
	Response models.ModelResponse
	Err      error
}

// LocalAdapter is a deterministic, in-process Adapter used by tests and
// offline operation. No vendored "local model" library exists anywhere in
// the example pack to ground a substitution on, so this adapter is
// deliberately stdlib-only: it plays back a fixed script of responses
// rather than calling out to any inference engine.
type LocalAdapter struct {
	mu       sync.Mutex
	script   []ScriptedResponse
	position int
	calls    []Call
}

// Call records one Chat invocation for assertions in tests.
type Call struct {
	Messages []models.Message
	Tools    []models.Tool
	Options  models.ChatOptions
}

// NewLocalAdapter builds a LocalAdapter that returns script[i] on its i-th
// Chat call. Calling Chat past the end of script panics — tests should
// script exactly as many turns as the scenario exercises.
func NewLocalAdapter(script ...ScriptedResponse) *LocalAdapter {
	return &LocalAdapter{script: script}
}

// Chat implements Adapter.
func (a *LocalAdapter) Chat(_ context.Context, messages []models.Message, tools []models.Tool, opts models.ChatOptions) (models.ModelResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, Call{Messages: messages, Tools: tools, Options: opts})

	if a.position >= len(a.script) {
		panic("adapter: LocalAdapter script exhausted")
	}
	next := a.script[a.position]
	a.position++
	return next.Response, next.Err
}

// Calls returns every Chat invocation observed so far, in order.
func (a *LocalAdapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}
