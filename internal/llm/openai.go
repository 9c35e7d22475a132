package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient uses Chat Completions. OpenAI caches prompt prefixes on its own,
// so CacheHint flags are ignored; cached prompt tokens are still reported.
type OpenAIClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIClient{client: openai.NewClient(all...)}, nil
}

func (c *OpenAIClient) Provider() string { return "openai" }

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, err := buildOpenAIParams(req)
	if err != nil {
		return nil, err
	}
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return convertOpenAICompletion(completion)
}

func buildOpenAIParams(req *Request) (openai.ChatCompletionNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai request requires at least one message")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		converted, err := openAIMessages(msg)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, converted...)
	}

	for _, def := range req.Tools {
		fn := shared.FunctionDefinitionParam{
			Name:       def.Name,
			Parameters: shared.FunctionParameters(def.InputSchema),
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return params, nil
}

// openAIMessages splits one neutral message into OpenAI messages: tool results
// become individual tool-role messages, in order.
func openAIMessages(msg Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	if msg.Role == RoleAssistant {
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if text := msg.Text(); text != "" {
			assistant.Content.OfString = openai.String(text)
		}
		for _, b := range msg.Content {
			if b.Type != BlockToolUse {
				continue
			}
			args, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("encode arguments for %s: %w", b.Name, err)
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: b.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil
	}

	var out []openai.ChatCompletionMessageParamUnion
	for _, b := range msg.Content {
		switch b.Type {
		case BlockToolResult:
			out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
		case BlockText:
			if b.Text != "" {
				out = append(out, openai.UserMessage(b.Text))
			}
		}
	}
	return out, nil
}

func convertOpenAICompletion(completion *openai.ChatCompletion) (*Response, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := completion.Choices[0]
	resp := &Response{
		Model: completion.Model,
		Usage: Usage{
			InputTokens:     int(completion.Usage.PromptTokens),
			OutputTokens:    int(completion.Usage.CompletionTokens),
			CacheReadTokens: int(completion.Usage.PromptTokensDetails.CachedTokens),
		},
	}

	if choice.Message.Content != "" {
		resp.Content = append(resp.Content, TextBlock(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		input := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("decode arguments for %s: %w", call.Function.Name, err)
			}
		}
		resp.Content = append(resp.Content, ToolUseBlock(call.ID, call.Function.Name, input))
	}

	resp.StopReason = openAIStopReason(choice.FinishReason, len(choice.Message.ToolCalls) > 0)
	return resp, nil
}

func openAIStopReason(finish string, hasToolCalls bool) StopReason {
	switch finish {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	case "content_filter":
		return StopRefusal
	case "stop":
		if hasToolCalls {
			return StopToolUse
		}
		return StopEndTurn
	default:
		return StopOther
	}
}
