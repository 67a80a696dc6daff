package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// defaultAnthropicModel is used when AnthropicConfig.DefaultModel is empty.
const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicAdapter implements Adapter over github.com/anthropics/anthropic-sdk-go,
// issuing one non-streaming Messages.New call per Chat invocation — the core's
// contract is request/response, so the SDK's SSE streaming path is not used
// here (unlike a chat application that relays tokens as they arrive).
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicAdapter builds an AnthropicAdapter from config.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("adapter: anthropic api key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
	}, nil
}

func (a *AnthropicAdapter) modelOrDefault(model string) string {
	if model == "" {
		return a.defaultModel
	}
	return model
}

// Chat implements Adapter.
func (a *AnthropicAdapter) Chat(ctx context.Context, messages []models.Message, tools []models.Tool, opts models.ChatOptions) (models.ModelResponse, error) {
	wireMessages, system, err := anthropicMessages(messages)
	if err != nil {
		return models.ModelResponse{}, &ProviderError{Kind: KindMalformed, Provider: "anthropic", Message: err.Error(), Cause: err}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelOrDefault("")),
		Messages:  wireMessages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	if len(tools) > 0 {
		toolParams, err := anthropicTools(tools)
		if err != nil {
			return models.ModelResponse{}, &ProviderError{Kind: KindMalformed, Provider: "anthropic", Message: err.Error(), Cause: err}
		}
		params.Tools = toolParams
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return models.ModelResponse{}, classifyAnthropicError(err)
	}

	return anthropicResponse(resp), nil
}

func anthropicMessages(messages []models.Message) ([]anthropic.MessageParam, string, error) {
	var system strings.Builder
	var result []anthropic.MessageParam

	// Tool results for a given assistant turn arrive as separate role=tool
	// Messages in our internal model; Anthropic wants them folded into one
	// user-role message of tool_result blocks. We buffer consecutive tool
	// messages and flush them as a single user message, matching the 1:1
	// tool_call_id correspondence the wire format requires.
	var pendingToolResults []anthropic.ContentBlockParamUnion
	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(msg.Content)
		case models.RoleTool:
			pendingToolResults = append(pendingToolResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.ToolError))
		case models.RoleAssistant:
			flushToolResults()
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(content) > 0 {
				result = append(result, anthropic.NewAssistantMessage(content...))
			}
		default: // user
			flushToolResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flushToolResults()

	return result, system.String(), nil
}

func anthropicTools(tools []models.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func anthropicResponse(msg *anthropic.Message) models.ModelResponse {
	resp := models.ModelResponse{
		StopReason: normalizeStopReason(string(msg.StopReason)),
		Usage: models.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(block.Text)
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal(block.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCallRef{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	resp.Text = text.String()

	if len(resp.ToolCalls) > 0 {
		resp.StopReason = models.StopToolUse
	}
	return resp
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicAPIError(err, &apiErr); ok {
		kind := KindMalformed
		switch apiErr.StatusCode {
		case 401, 403:
			kind = KindAuth
		case 429:
			kind = KindRateLimited
		case 408, 504:
			kind = KindTimeout
		case 500, 502, 503:
			kind = KindUnavailable
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "context") {
				kind = KindContextOverflow
			} else {
				kind = KindMalformed
			}
		}
		return &ProviderError{Kind: kind, Provider: "anthropic", Message: apiErr.Message, Cause: err}
	}
	return NewProviderError("anthropic", "", err)
}

// asAnthropicAPIError isolates the errors.As call so classifyAnthropicError
// stays simple even though the SDK's error type is version-sensitive.
func asAnthropicAPIError(err error, target **anthropic.Error) bool {
	return errors.As(err, target)
}
