package loop

import (
	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/llm"
)

// ApplyCacheHints marks the stable prefix of req for prompt caching and
// returns the number of breakpoints placed:
//
//   - the system prompt, when non-empty
//   - the last tool definition (covers the whole tools block)
//   - the last tool_result of the most recent user message, when its content
//     is at least minChars long
//
// Every other block hint is cleared, so the total never exceeds
// consts.MaxCacheBreakpoints. req.Tools and the latest user message are
// copied before being marked; other messages are only cleared in place.
func ApplyCacheHints(req *llm.Request, minChars int) int {
	if req == nil {
		return 0
	}
	if minChars <= 0 {
		minChars = consts.MinCacheableChars
	}
	placed := 0

	req.SystemCacheHint = req.System != ""
	if req.SystemCacheHint {
		placed++
	}

	if len(req.Tools) > 0 {
		defs := make([]llm.ToolDefinition, len(req.Tools))
		copy(defs, req.Tools)
		for i := range defs {
			defs[i].CacheHint = false
		}
		defs[len(defs)-1].CacheHint = true
		req.Tools = defs
		placed++
	}

	latestUser := -1
	for i := range req.Messages {
		if req.Messages[i].Role == llm.RoleUser {
			latestUser = i
		}
		clearHints(req.Messages[i].Content)
	}
	if latestUser < 0 || placed >= consts.MaxCacheBreakpoints {
		return placed
	}

	content := req.Messages[latestUser].Content
	last := -1
	for i := range content {
		if content[i].Type == llm.BlockToolResult {
			last = i
		}
	}
	if last < 0 || len(content[last].Content) < minChars {
		return placed
	}

	marked := make([]llm.ContentBlock, len(content))
	copy(marked, content)
	marked[last].CacheHint = true
	req.Messages[latestUser].Content = marked
	return placed + 1
}

func clearHints(blocks []llm.ContentBlock) {
	for i := range blocks {
		blocks[i].CacheHint = false
	}
}

// CountCacheHints returns how many breakpoints req carries.
func CountCacheHints(req *llm.Request) int {
	if req == nil {
		return 0
	}
	n := 0
	if req.SystemCacheHint {
		n++
	}
	for _, def := range req.Tools {
		if def.CacheHint {
			n++
		}
	}
	for _, msg := range req.Messages {
		for _, b := range msg.Content {
			if b.CacheHint {
				n++
			}
		}
	}
	return n
}
