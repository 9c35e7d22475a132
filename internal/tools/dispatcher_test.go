package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/driveagent/internal/llm"
)

func TestDispatchPreservesOrder(t *testing.T) {
	reg := NewRegistry().MustRegister(
		&stubTool{name: "slow", out: "slow done", delay: 40 * time.Millisecond},
		&stubTool{name: "fast", out: "fast done"},
	)
	d := NewDispatcher(reg, 0)

	results := d.Dispatch(context.Background(), []llm.ToolInvocation{
		{ID: "a", Name: "slow"},
		{ID: "b", Name: "fast"},
		{ID: "c", Name: "missing"},
	})
	require.Len(t, results, 3)
	assert.Equal(t, llm.ToolResult{ToolUseID: "a", Content: "slow done"}, results[0])
	assert.Equal(t, llm.ToolResult{ToolUseID: "b", Content: "fast done"}, results[1])
	assert.Equal(t, "c", results[2].ToolUseID)
	assert.True(t, results[2].IsError)
}

func TestDispatchOrderedAndRepeatable(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))
	for _, k := range []int{0, 1, 2, 5, 16, 64} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			reg := NewRegistry()
			calls := make([]llm.ToolInvocation, k)
			for i := range calls {
				name := fmt.Sprintf("tool_%d", i)
				if i%7 == 3 {
					name = "missing"
				} else {
					reg.MustRegister(&stubTool{
						name:  name,
						out:   "out " + name,
						delay: time.Duration(rng.IntN(5)) * time.Millisecond,
					})
				}
				calls[i] = llm.ToolInvocation{ID: fmt.Sprintf("call_%d", i), Name: name}
			}
			d := NewDispatcher(reg, 0)

			first := d.Dispatch(context.Background(), calls)
			second := d.Dispatch(context.Background(), calls)

			require.Len(t, first, k)
			for i, res := range first {
				assert.Equal(t, calls[i].ID, res.ToolUseID)
				assert.Equal(t, calls[i].Name == "missing", res.IsError)
			}
			assert.Equal(t, first, second)
		})
	}
}

func TestDispatchEmpty(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 4)
	assert.Empty(t, d.Dispatch(context.Background(), nil))
}

func TestDispatchRunsConcurrently(t *testing.T) {
	reg := NewRegistry().MustRegister(&stubTool{name: "wait", out: "ok", delay: 50 * time.Millisecond})
	d := NewDispatcher(reg, 0)

	calls := make([]llm.ToolInvocation, 4)
	for i := range calls {
		calls[i] = llm.ToolInvocation{ID: string(rune('a' + i)), Name: "wait"}
	}

	start := time.Now()
	results := d.Dispatch(context.Background(), calls)
	elapsed := time.Since(start)

	for _, r := range results {
		assert.False(t, r.IsError, r.Content)
	}
	assert.Less(t, elapsed, 150*time.Millisecond, "four 50ms calls should overlap")
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	tool := &stubTool{name: "count", out: "ok", delay: 10 * time.Millisecond}
	tool.run = func(context.Context) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}
	d := NewDispatcher(NewRegistry().MustRegister(tool), 2)

	calls := make([]llm.ToolInvocation, 6)
	for i := range calls {
		calls[i] = llm.ToolInvocation{ID: string(rune('a' + i)), Name: "count"}
	}
	d.Dispatch(context.Background(), calls)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatchRecoversPanics(t *testing.T) {
	reg := NewRegistry().MustRegister(
		&stubTool{name: "panics", panic: true},
		&stubTool{name: "fine", out: "fine"},
	)
	d := NewDispatcher(reg, 0)

	results := d.Dispatch(context.Background(), []llm.ToolInvocation{
		{ID: "p", Name: "panics"},
		{ID: "f", Name: "fine"},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "p", results[0].ToolUseID)
	assert.Contains(t, results[0].Content, "tool panics panicked: kaboom")
	assert.Equal(t, "fine", results[1].Content)
}

func TestDispatchCanceledContext(t *testing.T) {
	reg := NewRegistry().MustRegister(&stubTool{name: "never", out: "ran"})
	d := NewDispatcher(reg, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := d.Dispatch(ctx, []llm.ToolInvocation{{ID: "n", Name: "never"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "context canceled")
}
