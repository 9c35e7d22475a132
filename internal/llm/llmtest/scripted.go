// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/codefionn/driveagent/internal/llm"
)

// Step is one scripted backend reply. Err takes precedence over Response.
type Step struct {
	Response *llm.Response
	Err      error
	// Wait blocks the call until the channel closes or the context ends.
	Wait <-chan struct{}
}

// ScriptedClient replays Steps in order and records every request.
// When the script runs out, Fallback is used if set.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []Step
	Fallback func(req *llm.Request) (*llm.Response, error)
	Requests []*llm.Request
	Cache    bool
}

func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

func (c *ScriptedClient) Provider() string { return "scripted" }

func (c *ScriptedClient) SupportsPromptCache() bool { return c.Cache }

func (c *ScriptedClient) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, cloneRequest(req))
	var (
		step Step
		ok   bool
	)
	if len(c.steps) > 0 {
		step, c.steps, ok = c.steps[0], c.steps[1:], true
	}
	fallback := c.Fallback
	c.mu.Unlock()

	if !ok {
		if fallback != nil {
			return fallback(req)
		}
		return nil, fmt.Errorf("scripted client: no step left for call %d", c.Calls())
	}
	if step.Wait != nil {
		select {
		case <-step.Wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Calls reports how many requests were received.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// Last returns the most recent request, or nil.
func (c *ScriptedClient) Last() *llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return nil
	}
	return c.Requests[len(c.Requests)-1]
}

// Text builds an end_turn response carrying text.
func Text(text string, usage llm.Usage) Step {
	return Step{Response: &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
		Usage:      usage,
	}}
}

// ToolUse builds a tool_use response carrying the given invocations.
func ToolUse(usage llm.Usage, calls ...llm.ToolInvocation) Step {
	blocks := make([]llm.ContentBlock, 0, len(calls))
	for _, call := range calls {
		blocks = append(blocks, llm.ToolUseBlock(call.ID, call.Name, call.Input))
	}
	return Step{Response: &llm.Response{
		Content:    blocks,
		StopReason: llm.StopToolUse,
		Usage:      usage,
	}}
}

// cloneRequest snapshots the request so later appends by the caller do not
// change what the test inspects.
func cloneRequest(req *llm.Request) *llm.Request {
	if req == nil {
		return nil
	}
	out := *req
	out.Messages = make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		out.Messages[i] = llm.Message{Role: m.Role, Content: append([]llm.ContentBlock(nil), m.Content...)}
	}
	out.Tools = append([]llm.ToolDefinition(nil), req.Tools...)
	return &out
}
