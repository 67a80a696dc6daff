package loop

import (
	"fmt"

	"github.com/haasonsaas/agentcore/internal/adapter"
)

// Phase names a distinct stage of one chat turn, carried on an Error so
// a caller can tell a provider outage from a malformed-response abort.
//
// Grounded on internal/agent/errors.go's LoopPhase, trimmed to the phases
// this core's single-call (non-streaming) loop actually passes through.
type Phase string

const (
	PhaseModelCall   Phase = "model_call"
	PhaseExecuteTool Phase = "execute_tool"
)

// Error wraps a fatal turn abort (the ModelError and Malformed-response
// kinds from the error taxonomy) with the phase and iteration it happened
// in. Tool-local failures never produce an Error: they are materialized as
// ToolResult data and fed back to the model instead.
type Error struct {
	Phase     Phase
	Iteration int
	Kind      adapter.Kind
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("loop: %s at iteration %d (%s): %v", e.Phase, e.Iteration, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
