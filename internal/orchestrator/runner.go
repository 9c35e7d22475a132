// Package orchestrator serves agent runs to callers: it owns the shared
// backend client and tool registry, resolves the model, and bounds every
// run by a wall-clock timeout.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/codefionn/driveagent/internal/config"
	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/tools"
)

// Runner is safe for concurrent use; each call gets its own conversation.
type Runner struct {
	cfg      *config.Config
	client   llm.Client
	registry *tools.Registry
	ctrl     *loop.Controller
	timeout  time.Duration
	log      *logger.Logger
	started  time.Time

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewRunner wires a controller from cfg. The client and registry are shared
// by every run.
func NewRunner(cfg *config.Config, client llm.Client, registry *tools.Registry) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	log := logger.Global().WithPrefix("runner")

	loopCfg := loop.DefaultConfig()
	loopCfg.Model = cfg.Model
	loopCfg.MaxTurns = cfg.MaxTurns
	loopCfg.MaxTokens = cfg.MaxTokens
	loopCfg.EnableCacheHints = cfg.EnablePromptCache
	loopCfg.MinCacheableChars = cfg.MinCacheableChars
	loopCfg.CacheTTL = cfg.PromptCacheTTL

	timeout := cfg.RunTimeout()
	if timeout <= 0 {
		timeout = consts.RunTimeout
	}

	return &Runner{
		cfg:      cfg,
		client:   client,
		registry: registry,
		ctrl: loop.NewController(loopCfg, &loop.Dependencies{
			Client:     client,
			Dispatcher: tools.NewDispatcher(registry, cfg.ToolConcurrency),
			Logger:     log,
		}),
		timeout: timeout,
		log:     log,
		started: time.Now(),
	}
}

// Client returns the shared backend, for side calls such as judging.
func (r *Runner) Client() llm.Client { return r.client }

// Registry returns the shared tool registry.
func (r *Runner) Registry() *tools.Registry { return r.registry }

// Timeout is the wall-clock bound applied to each run.
func (r *Runner) Timeout() time.Duration { return r.timeout }

// SetTimeout changes the wall-clock bound; zero or less restores the default.
// Call it before the runner is shared.
func (r *Runner) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = consts.RunTimeout
	}
	r.timeout = d
}

// ResolveModel applies the allow-list: unknown models fall back to the default.
func (r *Runner) ResolveModel(requested string) string {
	return r.cfg.ResolveModel(requested)
}

// Ask runs one question to completion. Events go to req.Sink; at most one
// terminal event is delivered even when the timeout races the loop.
func (r *Runner) Ask(ctx context.Context, req loop.RunRequest) (*loop.RunResult, error) {
	req.Model = r.ResolveModel(req.Model)
	req.Sink = progress.OnceTerminal(req.Sink)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result *loop.RunResult
		err    error
	}
	finished := make(chan outcome, 1)

	r.active.Add(1)
	defer r.active.Add(-1)

	go func() {
		result, err := r.ctrl.Run(runCtx, req)
		finished <- outcome{result, err}
	}()

	var out outcome
	select {
	case out = <-finished:
	case <-runCtx.Done():
		err := runCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = loop.ErrTimeout
			r.log.Warn("run exceeded %s; abandoning", r.timeout)
		}
		progress.Emit(req.Sink, progress.Error(loop.UserMessage(err), loop.FailureKind(err)))
		out = outcome{err: err}
	}

	if out.err != nil {
		r.failed.Add(1)
		return nil, out.err
	}
	r.completed.Add(1)
	return out.result, nil
}

// Stream starts a run and returns its events. The channel is closed after
// the terminal event. Canceling ctx stops delivery and ends the run.
func (r *Runner) Stream(ctx context.Context, req loop.RunRequest) <-chan progress.Event {
	sink := progress.NewChannelSink(consts.StreamBuffer)
	req.Sink = sink

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = r.Ask(ctx, req)
		// A run rejected before any event still has to end the stream.
		sink.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			sink.Abandon()
		case <-finished:
		}
	}()
	return sink.Events()
}

// HealthReport summarizes the runner for the health endpoint.
type HealthReport struct {
	Status        string   `json:"status"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	Tools         []string `json:"tools"`
	ActiveRuns    int64    `json:"active_runs"`
	CompletedRuns int64    `json:"completed_runs"`
	FailedRuns    int64    `json:"failed_runs"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// Health returns the current report.
func (r *Runner) Health() HealthReport {
	report := HealthReport{
		Status:        "ok",
		Model:         r.cfg.Model,
		ActiveRuns:    r.active.Load(),
		CompletedRuns: r.completed.Load(),
		FailedRuns:    r.failed.Load(),
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
	}
	if r.client != nil {
		report.Provider = r.client.Provider()
	} else {
		report.Status = "degraded"
	}
	if r.registry != nil {
		report.Tools = r.registry.Names()
	}
	return report
}
