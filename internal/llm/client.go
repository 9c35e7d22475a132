// Package llm defines the provider-neutral conversation model used by the agent
// loop and adapts it to the Anthropic, OpenAI and Gemini SDKs.
package llm

import (
	"context"
	"strings"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// StopReason is why the backend ended its response.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopSequence  StopReason = "stop_sequence"
	StopRefusal   StopReason = "refusal"
	StopPauseTurn StopReason = "pause_turn"
	StopOther     StopReason = "other"
)

// ContentBlock is one element of a message. Which fields are meaningful
// depends on Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// CacheHint asks the backend to place a prompt-cache breakpoint after this block.
	CacheHint bool `json:"-"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one conversation entry.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserText builds a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	return joinText(m.Content)
}

// ToolInvocation is a tool_use block in executable form.
type ToolInvocation struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers one ToolInvocation.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// Block converts the result into a tool_result content block.
func (r ToolResult) Block() ContentBlock {
	return ToolResultBlock(r.ToolUseID, r.Content, r.IsError)
}

// ToolDefinition is the wire description of a tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	CacheHint   bool           `json:"-"`
}

// Request is one backend call.
type Request struct {
	Model           string
	System          string
	SystemCacheHint bool
	Messages        []Message
	Tools           []ToolDefinition
	MaxTokens       int
	// CacheTTL is "5m" or "1h"; empty uses the provider default.
	CacheTTL string
}

// Usage is the token accounting reported for a single call.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
}

// Response is the backend's answer to a Request.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// Text concatenates the response's text blocks.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return joinText(r.Content)
}

// ToolInvocations returns the tool_use blocks in emission order.
func (r *Response) ToolInvocations() []ToolInvocation {
	if r == nil {
		return nil
	}
	var out []ToolInvocation
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, ToolInvocation{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return out
}

// AssistantMessage turns the response into the message appended to the conversation.
func (r *Response) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: append([]ContentBlock(nil), r.Content...)}
}

func joinText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type != BlockText || b.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Text)
	}
	return sb.String()
}

// Client is a stateless LLM backend shared by concurrent runs.
type Client interface {
	// Complete performs one non-streaming call.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Provider names the backend ("anthropic", "openai", ...).
	Provider() string
}

// CacheCapable is implemented by clients that honour CacheHint flags.
type CacheCapable interface {
	SupportsPromptCache() bool
}
