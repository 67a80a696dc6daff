// Package adapter implements the Model Adapter component: a uniform
// chat(messages, tools, options) -> ModelResponse contract over
// heterogeneous LLM providers, with provider-specific wire translation kept
// entirely local to each adapter implementation.
package adapter

import (
	"context"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Adapter is the provider-agnostic chat contract. Cross-provider differences
// (tool-call blocks vs. separate arrays, tool-result roles vs. embedded
// blocks) are absorbed inside the implementation and MUST NOT leak to
// callers.
type Adapter interface {
	// Chat sends messages (and, if non-empty, tool schemas) to the
	// underlying model and returns a single normalized response. tools may
	// be nil, meaning the model is given no tools this turn.
	Chat(ctx context.Context, messages []models.Message, tools []models.Tool, opts models.ChatOptions) (models.ModelResponse, error)
}

// ToolSchema is the provider-agnostic shape an adapter turns into its native
// tool/function definition wire format.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  models.RawSchema
}

// SchemasFromTools projects registry tools into the adapter-facing shape.
func SchemasFromTools(tools []models.Tool) []ToolSchema {
	if len(tools) == 0 {
		return nil
	}
	schemas := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Schema})
	}
	return schemas
}

// normalizeStopReason collapses a provider-native stop/finish reason string
// into the closed ModelResponse.StopReason set. Anthropic's "end_turn" and
// OpenAI's "stop" are kept as distinct values per the closed enum in the
// data model; anything unrecognized becomes StopOther rather than
// propagating a provider-specific string.
func normalizeStopReason(native string) models.StopReason {
	switch native {
	case "end_turn":
		return models.StopEndTurn
	case "stop", "completed":
		return models.StopStop
	case "max_tokens", "length":
		return models.StopMaxTokens
	case "tool_use", "tool_calls", "function_call":
		return models.StopToolUse
	default:
		return models.StopOther
	}
}
