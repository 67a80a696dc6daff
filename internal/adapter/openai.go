package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/pkg/models"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIAdapter implements Adapter over github.com/sashabaranov/go-openai,
// using the non-streaming CreateChatCompletion call.
type OpenAIAdapter struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIAdapter builds an OpenAIAdapter from config.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("adapter: openai api key is required")
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdapter{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
	}, nil
}

// Chat implements Adapter.
func (a *OpenAIAdapter) Chat(ctx context.Context, messages []models.Message, tools []models.Tool, opts models.ChatOptions) (models.ModelResponse, error) {
	wireMessages, err := openaiMessages(messages)
	if err != nil {
		return models.ModelResponse{}, &ProviderError{Kind: KindMalformed, Provider: "openai", Message: err.Error(), Cause: err}
	}

	req := openai.ChatCompletionRequest{
		Model:    a.defaultModel,
		Messages: wireMessages,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
	if len(tools) > 0 {
		req.Tools = openaiTools(tools)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.ModelResponse{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return models.ModelResponse{}, &ProviderError{Kind: KindMalformed, Provider: "openai", Message: "response had no choices"}
	}

	return openaiResponse(resp), nil
}

func openaiMessages(messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == models.RoleTool {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode tool call arguments for %s: %w", tc.Name, err)
			}
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result, nil
}

func openaiTools(tools []models.Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Schema),
			},
		})
	}
	return result
}

func openaiResponse(resp openai.ChatCompletionResponse) models.ModelResponse {
	choice := resp.Choices[0]
	result := models.ModelResponse{
		Text:       choice.Message.Content,
		StopReason: normalizeStopReason(string(choice.FinishReason)),
		Usage: models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		result.ToolCalls = append(result.ToolCalls, models.ToolCallRef{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if len(result.ToolCalls) > 0 {
		result.StopReason = models.StopToolUse
	}
	return result
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if asOpenAIAPIError(err, &apiErr) {
		kind := KindMalformed
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			kind = KindAuth
		case 429:
			kind = KindRateLimited
		case 408, 504:
			kind = KindTimeout
		case 500, 502, 503:
			kind = KindUnavailable
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "context") || strings.Contains(strings.ToLower(apiErr.Message), "maximum context") {
				kind = KindContextOverflow
			}
		}
		return &ProviderError{Kind: kind, Provider: "openai", Message: apiErr.Message, Cause: err}
	}
	return NewProviderError("openai", "", err)
}

func asOpenAIAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
