package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicClient talks to the Messages API and maps CacheHint flags onto
// ephemeral cache_control breakpoints.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client for apiKey. Extra request options
// (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{client: anthropic.NewClient(all...)}, nil
}

func (c *AnthropicClient) Provider() string { return "anthropic" }

func (c *AnthropicClient) SupportsPromptCache() bool { return true }

func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, err := buildAnthropicParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return convertAnthropicMessage(msg)
}

func anthropicCacheControl(ttl string) anthropic.CacheControlEphemeralParam {
	cc := anthropic.NewCacheControlEphemeralParam()
	switch ttl {
	case "1h":
		cc.TTL = anthropic.CacheControlEphemeralTTLTTL1h
	case "5m":
		cc.TTL = anthropic.CacheControlEphemeralTTLTTL5m
	}
	return cc
}

func buildAnthropicParams(req *Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic request requires at least one message")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}

	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if req.SystemCacheHint {
			block.CacheControl = anthropicCacheControl(req.CacheTTL)
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	for _, msg := range req.Messages {
		blocks, err := anthropicBlocks(msg.Content, req.CacheTTL)
		if err != nil {
			return params, err
		}
		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, anthropicTool(def, req.CacheTTL))
	}

	return params, nil
}

func anthropicBlocks(content []ContentBlock, ttl string) ([]anthropic.ContentBlockParamUnion, error) {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, b := range content {
		switch b.Type {
		case BlockText:
			if b.Text == "" {
				continue
			}
			block := anthropic.NewTextBlock(b.Text)
			if b.CacheHint && block.OfText != nil {
				block.OfText.CacheControl = anthropicCacheControl(ttl)
			}
			out = append(out, block)
		case BlockToolUse:
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(b.ID, input, b.Name))
		case BlockToolResult:
			block := anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError)
			if b.CacheHint && block.OfToolResult != nil {
				block.OfToolResult.CacheControl = anthropicCacheControl(ttl)
			}
			out = append(out, block)
		default:
			return nil, fmt.Errorf("unsupported content block type %q", b.Type)
		}
	}
	return out, nil
}

func anthropicTool(def ToolDefinition, ttl string) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
	if props, ok := def.InputSchema["properties"]; ok {
		schema.Properties = props
	}
	if required := stringSlice(def.InputSchema["required"]); len(required) > 0 {
		schema.Required = required
	}

	tool := &anthropic.ToolParam{
		Name:        def.Name,
		InputSchema: schema,
		Type:        anthropic.ToolTypeCustom,
	}
	if def.Description != "" {
		tool.Description = anthropic.String(def.Description)
	}
	if def.CacheHint {
		tool.CacheControl = anthropicCacheControl(ttl)
	}
	return anthropic.ToolUnionParam{OfTool: tool}
}

func convertAnthropicMessage(msg *anthropic.Message) (*Response, error) {
	if msg == nil {
		return nil, fmt.Errorf("anthropic returned an empty message")
	}

	resp := &Response{
		StopReason: StopReason(msg.StopReason),
		Model:      string(msg.Model),
		Usage: Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, TextBlock(block.Text))
		case "tool_use":
			input := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return nil, fmt.Errorf("decode tool_use input for %s: %w", block.Name, err)
				}
			}
			resp.Content = append(resp.Content, ToolUseBlock(block.ID, block.Name, input))
		}
	}
	return resp, nil
}

func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
