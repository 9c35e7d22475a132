package llm

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

// GeminiClient uses the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Provider() string { return "gemini" }

func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini request requires at least one message")
	}
	contents := geminiContents(req.Messages)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, geminiConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return convertGeminiResponse(resp), nil
}

func geminiConfig(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.InputSchema,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}
	return cfg
}

// geminiContents needs tool names on function responses, so it remembers the
// name of every tool_use id it has seen.
func geminiContents(messages []Message) []*genai.Content {
	names := make(map[string]string)
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		parts := make([]*genai.Part, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					parts = append(parts, genai.NewPartFromText(b.Text))
				}
			case BlockToolUse:
				names[b.ID] = b.Name
				part := genai.NewPartFromFunctionCall(b.Name, b.Input)
				part.FunctionCall.ID = b.ID
				parts = append(parts, part)
			case BlockToolResult:
				key := "output"
				if b.IsError {
					key = "error"
				}
				part := genai.NewPartFromFunctionResponse(names[b.ToolUseID], map[string]any{key: b.Content})
				part.FunctionResponse.ID = b.ToolUseID
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			parts = append(parts, genai.NewPartFromText(""))
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func convertGeminiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{StopReason: StopOther}
	if resp == nil {
		return out
	}
	out.Model = resp.ModelVersion
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:     int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int(resp.UsageMetadata.CandidatesTokenCount),
			CacheReadTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			out.StopReason = StopRefusal
		}
		return out
	}

	candidate := resp.Candidates[0]
	calls := 0
	if candidate.Content != nil {
		for i, part := range candidate.Content.Parts {
			switch {
			case part == nil:
			case part.FunctionCall != nil:
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", i)
				}
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				out.Content = append(out.Content, ToolUseBlock(id, part.FunctionCall.Name, args))
				calls++
			case part.Text != "" && !part.Thought:
				out.Content = append(out.Content, TextBlock(part.Text))
			}
		}
	}

	switch {
	case calls > 0:
		out.StopReason = StopToolUse
	case candidate.FinishReason == genai.FinishReasonStop:
		out.StopReason = StopEndTurn
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		out.StopReason = StopMaxTokens
	case candidate.FinishReason == genai.FinishReasonSafety:
		out.StopReason = StopRefusal
	}
	return out
}
