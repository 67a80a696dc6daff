// Package models defines the wire- and store-level data shapes shared across
// the agent orchestration core: messages, tool calls, model responses, and
// approval records. Types here are intentionally plain data — behavior lives
// in the internal packages that operate on them.
package models

import "encoding/json"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one immutable turn record in a session transcript.
//
// Once appended to a SessionContext or the Transcript Store, a Message is
// never mutated or removed; corrections happen by appending new messages.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Timestamp  string        `json:"timestamp,omitempty"`

	// ToolError marks a role=tool message as carrying a failed ToolResult's
	// error text rather than its output, so an adapter can serialize it with
	// an explicit error flag instead of opaque text. Meaningless on any
	// other role.
	ToolError bool `json:"tool_error,omitempty"`
}

// ToolCallRef is a single structured request from the model to execute a
// named tool with arguments. Its ID is unique within the model response that
// produced it.
type ToolCallRef struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the data-first outcome of a tool invocation. Unsuccessful
// results are first-class data, not failures of the call itself: a tool
// that rejects its input returns Success=false, it does not panic or error
// out of the execution path.
type ToolResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// StopReason is the closed set of normalized reasons a model turn ended.
// Adapter implementations MUST collapse any provider-specific reason outside
// this set to StopOther.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse   StopReason = "tool_use"
	StopStop      StopReason = "stop"
	StopOther     StopReason = "other"
)

// Usage reports token accounting for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ModelResponse is the normalized result of one Adapter.Chat call. If
// ToolCalls is non-empty the model is requesting tool execution; otherwise
// Text is the final assistant reply for the turn.
type ModelResponse struct {
	Text       string        `json:"text,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	StopReason StopReason    `json:"stop_reason"`
	Usage      Usage         `json:"usage"`
}

// ChatOptions carries per-call model parameters. Unknown or unsupported
// options are ignored by an adapter rather than rejected.
type ChatOptions struct {
	MaxTokens   int
	Temperature *float64
	Stop        []string
}

// RawSchema is a tool's JSON Schema parameter document, kept opaque to
// everything but the registry and the adapters that translate it to a
// provider's native tool-definition wire format.
type RawSchema = json.RawMessage
