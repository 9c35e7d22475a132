package loop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codefionn/driveagent/internal/llm"
)

func toolResults(sizes ...int) llm.Message {
	msg := llm.Message{Role: llm.RoleUser}
	for i, n := range sizes {
		msg.Content = append(msg.Content, llm.ToolResultBlock(string(rune('a'+i)), strings.Repeat("x", n), false))
	}
	return msg
}

func TestApplyCacheHints(t *testing.T) {
	defs := []llm.ToolDefinition{{Name: "one"}, {Name: "two"}}

	tests := []struct {
		name       string
		req        *llm.Request
		wantPlaced int
		// wantMarked lists (message index, block index) pairs expected to carry a hint.
		wantMarked [][2]int
		wantSystem bool
	}{
		{
			name:       "question only",
			req:        &llm.Request{System: "sys", Tools: defs, Messages: []llm.Message{llm.UserText("q")}},
			wantPlaced: 2,
			wantSystem: true,
		},
		{
			name: "empty system prompt",
			req: &llm.Request{Tools: defs, Messages: []llm.Message{
				llm.UserText("q"),
				{Role: llm.RoleAssistant},
				toolResults(2000),
			}},
			wantPlaced: 2,
			wantMarked: [][2]int{{2, 0}},
		},
		{
			name: "only last result of batch",
			req: &llm.Request{System: "sys", Tools: defs, Messages: []llm.Message{
				llm.UserText("q"),
				{Role: llm.RoleAssistant},
				toolResults(5000, 5000, 1500),
			}},
			wantPlaced: 3,
			wantMarked: [][2]int{{2, 2}},
			wantSystem: true,
		},
		{
			name: "last result below threshold",
			req: &llm.Request{System: "sys", Tools: defs, Messages: []llm.Message{
				llm.UserText("q"),
				{Role: llm.RoleAssistant},
				toolResults(5000, 10),
			}},
			wantPlaced: 2,
			wantSystem: true,
		},
		{
			name: "exactly at threshold",
			req: &llm.Request{System: "sys", Messages: []llm.Message{
				llm.UserText("q"),
				{Role: llm.RoleAssistant},
				toolResults(1024),
			}},
			wantPlaced: 2,
			wantMarked: [][2]int{{2, 0}},
			wantSystem: true,
		},
		{
			name: "stale hints on older results are cleared",
			req: &llm.Request{System: "sys", Tools: defs, Messages: []llm.Message{
				llm.UserText("q"),
				{Role: llm.RoleAssistant},
				{Role: llm.RoleUser, Content: []llm.ContentBlock{
					{Type: llm.BlockToolResult, ToolUseID: "old", Content: strings.Repeat("y", 4000), CacheHint: true},
				}},
				{Role: llm.RoleAssistant},
				toolResults(3000),
			}},
			wantPlaced: 3,
			wantMarked: [][2]int{{4, 0}},
			wantSystem: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placed := ApplyCacheHints(tt.req, 1024)
			assert.Equal(t, tt.wantPlaced, placed)
			assert.Equal(t, placed, CountCacheHints(tt.req))
			assert.LessOrEqual(t, placed, 3)
			assert.Equal(t, tt.wantSystem, tt.req.SystemCacheHint)

			if len(tt.req.Tools) > 0 {
				for i, def := range tt.req.Tools {
					assert.Equal(t, i == len(tt.req.Tools)-1, def.CacheHint, "tool %d", i)
				}
			}

			marked := map[[2]int]bool{}
			for _, m := range tt.wantMarked {
				marked[m] = true
			}
			for mi, msg := range tt.req.Messages {
				for bi, b := range msg.Content {
					assert.Equal(t, marked[[2]int{mi, bi}], b.CacheHint, "message %d block %d", mi, bi)
				}
			}
		})
	}
}

func TestApplyCacheHintsDoesNotMutateSharedSlices(t *testing.T) {
	defs := []llm.ToolDefinition{{Name: "one"}}
	latest := toolResults(2000)
	req := &llm.Request{System: "sys", Tools: defs, Messages: []llm.Message{llm.UserText("q"), {Role: llm.RoleAssistant}, latest}}

	ApplyCacheHints(req, 1024)

	assert.False(t, defs[0].CacheHint)
	assert.False(t, latest.Content[0].CacheHint)
	assert.True(t, req.Tools[0].CacheHint)
	assert.True(t, req.Messages[2].Content[0].CacheHint)
}

func TestApplyCacheHintsDefaultsThreshold(t *testing.T) {
	req := &llm.Request{Messages: []llm.Message{llm.UserText("q"), {Role: llm.RoleAssistant}, toolResults(1000)}}
	assert.Equal(t, 0, ApplyCacheHints(req, 0))
	assert.Equal(t, 0, ApplyCacheHints(nil, 0))
}
