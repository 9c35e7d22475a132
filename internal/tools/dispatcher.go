package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/logger"
)

// Dispatcher executes a batch of tool invocations concurrently and returns
// their results in invocation order.
type Dispatcher struct {
	registry *Registry
	// MaxConcurrency bounds in-flight calls; 0 runs every call at once.
	MaxConcurrency int
	log            *logger.Logger
}

func NewDispatcher(registry *Registry, maxConcurrency int) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		MaxConcurrency: maxConcurrency,
		log:            logger.Global().WithPrefix("dispatch"),
	}
}

// Registry returns the registry the dispatcher executes against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs every invocation and waits for all of them. Failures never
// escape: each slot holds either the tool output or an error text.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolInvocation) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	start := time.Now()
	var g errgroup.Group
	if d.MaxConcurrency > 0 {
		g.SetLimit(d.MaxConcurrency)
	}

	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.run(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug("dispatched %d tool calls in %dms", len(calls), time.Since(start).Milliseconds())
	return results
}

func (d *Dispatcher) run(ctx context.Context, call llm.ToolInvocation) (result llm.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool %s panicked: %v\n%s", call.Name, r, debug.Stack())
			result = llm.ToolResult{
				ToolUseID: call.ID,
				Content:   fmt.Sprintf("error: tool %s panicked: %v", call.Name, r),
				IsError:   true,
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return llm.ToolResult{ToolUseID: call.ID, Content: "error: " + err.Error(), IsError: true}
	}

	began := time.Now()
	result = d.registry.Execute(ctx, call)
	d.log.Debug("tool %s (%s) finished in %dms error=%v", call.Name, call.ID, time.Since(began).Milliseconds(), result.IsError)
	return result
}
