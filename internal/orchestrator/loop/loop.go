package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/tools"
)

// Config contains the defaults applied to every run of a Controller.
type Config struct {
	// Model is used when RunRequest.Model is empty.
	Model string

	// MaxTurns bounds backend calls per run (default: 10)
	MaxTurns int

	// MaxTokens bounds output tokens per backend call (default: 4096)
	MaxTokens int

	// EnableCacheHints turns on the prompt-cache annotation pass (default: true)
	EnableCacheHints bool

	// MinCacheableChars is the smallest tool result worth a breakpoint (default: 1024)
	MinCacheableChars int

	// CacheTTL is passed through to backends that support it ("5m" or "1h")
	CacheTTL string
}

// DefaultConfig returns a Config with the interactive budgets.
func DefaultConfig() *Config {
	return &Config{
		MaxTurns:          consts.DefaultMaxTurns,
		MaxTokens:         consts.DefaultMaxTokens,
		EnableCacheHints:  true,
		MinCacheableChars: consts.MinCacheableChars,
	}
}

// Dependencies are shared by every run of a Controller.
type Dependencies struct {
	// Client is the language model backend. Required.
	Client llm.Client

	// Dispatcher executes tool batches against the registry. Required.
	Dispatcher *tools.Dispatcher

	// Sink receives progress events (optional)
	Sink progress.Sink

	// Logger defaults to the global logger
	Logger *logger.Logger
}

// RunRequest describes one question. Zero values fall back to Config.
type RunRequest struct {
	Question     string
	SystemPrompt string
	Model        string
	MaxTurns     int
	MaxTokens    int
	// Sink overrides Dependencies.Sink for this run.
	Sink progress.Sink
}

// RunResult is the answer of a successful run.
type RunResult struct {
	Answer     string         `json:"answer"`
	Model      string         `json:"model,omitempty"`
	StopReason llm.StopReason `json:"stop_reason,omitempty"`
	Usage
}

// Controller drives the turn loop. It holds no per-run state.
type Controller struct {
	config *Config
	deps   *Dependencies
	log    *logger.Logger
}

func NewController(config *Config, deps *Dependencies) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	if deps == nil {
		deps = &Dependencies{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Controller{config: config, deps: deps, log: log.WithPrefix("loop")}
}

// Config returns the controller's defaults.
func (c *Controller) Config() *Config {
	return c.config
}

// run is the state of a single Run call.
type run struct {
	ctrl         *Controller
	req          RunRequest
	model        string
	maxTurns     int
	maxTokens    int
	sink         progress.Sink
	conversation []llm.Message
	usage        *Accumulator
	state        State
	turn         int
	defs         []llm.ToolDefinition
}

// Run answers req.Question. On success it returns the RunResult and emits a
// done event; on failure it returns one of the errors described by
// FailureKind and emits an error event.
func (c *Controller) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	r, err := c.newRun(req)
	if err != nil {
		progress.Emit(c.sinkFor(req), progress.Error(UserMessage(err), FailureKind(err)))
		return nil, err
	}

	start := time.Now()
	result, err := r.loop(ctx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		c.log.Warn("run aborted while %s after %d turns in %dms: %v", r.state, r.turn, elapsed, err)
		r.state = Aborted
		progress.Emit(r.sink, progress.Error(UserMessage(err), FailureKind(err)))
		return nil, err
	}

	r.state = Done
	c.log.Info("run done: turns=%d tools=%d in=%d out=%d cache_read=%d in %dms",
		result.Turns, result.ToolCalls, result.InputTokens, result.OutputTokens, result.CacheReadTokens, elapsed)
	progress.Emit(r.sink, progress.Done(result))
	return result, nil
}

func (c *Controller) sinkFor(req RunRequest) progress.Sink {
	if req.Sink != nil {
		return req.Sink
	}
	if c.deps.Sink != nil {
		return c.deps.Sink
	}
	return progress.Discard
}

func (c *Controller) newRun(req RunRequest) (*run, error) {
	if c.deps.Client == nil {
		return nil, errors.New("loop: no language model client configured")
	}
	if c.deps.Dispatcher == nil {
		return nil, errors.New("loop: no tool dispatcher configured")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("loop: question must not be empty")
	}

	r := &run{
		ctrl:      c,
		req:       req,
		model:     firstNonEmpty(req.Model, c.config.Model),
		maxTurns:  firstPositive(req.MaxTurns, c.config.MaxTurns, consts.DefaultMaxTurns),
		maxTokens: firstPositive(req.MaxTokens, c.config.MaxTokens, consts.DefaultMaxTokens),
		sink:      c.sinkFor(req),
		usage:     NewAccumulator(),
		state:     AwaitingModel,
		defs:      c.deps.Dispatcher.Registry().Definitions(),
	}
	if r.model == "" {
		return nil, errors.New("loop: no model configured")
	}
	r.conversation = []llm.Message{llm.UserText(question)}
	return r, nil
}

func (r *run) loop(ctx context.Context) (*RunResult, error) {
	c := r.ctrl
	for {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		r.turn++
		if r.turn > r.maxTurns {
			return nil, &MaxTurnsExceededError{MaxTurns: r.maxTurns}
		}
		r.state = AwaitingModel
		r.usage.AddTurn()
		if r.turn == 1 {
			progress.Emit(r.sink, progress.Thinking("Thinking..."))
		} else {
			progress.Emit(r.sink, progress.Thinking(fmt.Sprintf("Thinking... (turn %d)", r.turn)))
		}

		request := r.buildRequest()
		resp, err := c.deps.Client.Complete(ctx, request)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, contextError(ctxErr)
			}
			return nil, &BackendError{Turn: r.turn, Err: err}
		}
		if resp == nil {
			return nil, &BackendError{Turn: r.turn, Err: errors.New("empty response")}
		}
		r.usage.Add(resp.Usage)
		c.log.Debug("turn %d: stop=%s blocks=%d in=%d out=%d",
			r.turn, resp.StopReason, len(resp.Content), resp.Usage.InputTokens, resp.Usage.OutputTokens)

		if resp.StopReason != llm.StopToolUse {
			if resp.StopReason != llm.StopEndTurn {
				c.log.Warn("turn %d ended with stop reason %q; using partial text", r.turn, resp.StopReason)
			}
			return r.result(resp), nil
		}

		r.conversation = append(r.conversation, resp.AssistantMessage())
		calls := resp.ToolInvocations()
		if len(calls) == 0 {
			continue
		}

		r.state = DispatchingTools
		progress.Emit(r.sink, progress.Thinking(describeCalls(calls)))
		results := c.deps.Dispatcher.Dispatch(ctx, calls)

		blocks := make([]llm.ContentBlock, len(results))
		for i, res := range results {
			blocks[i] = res.Block()
		}
		r.conversation = append(r.conversation, llm.Message{Role: llm.RoleUser, Content: blocks})
		r.usage.AddToolCalls(len(calls))
	}
}

// buildRequest snapshots the conversation so cache hints never leak into it.
func (r *run) buildRequest() *llm.Request {
	messages := make([]llm.Message, len(r.conversation))
	for i, m := range r.conversation {
		messages[i] = llm.Message{Role: m.Role, Content: append([]llm.ContentBlock(nil), m.Content...)}
	}
	req := &llm.Request{
		Model:     r.model,
		System:    r.req.SystemPrompt,
		Messages:  messages,
		Tools:     append([]llm.ToolDefinition(nil), r.defs...),
		MaxTokens: r.maxTokens,
		CacheTTL:  r.ctrl.config.CacheTTL,
	}
	if r.ctrl.config.EnableCacheHints {
		ApplyCacheHints(req, r.ctrl.config.MinCacheableChars)
	}
	return req
}

func (r *run) result(resp *llm.Response) *RunResult {
	model := resp.Model
	if model == "" {
		model = r.model
	}
	return &RunResult{
		Answer:     resp.Text(),
		Model:      model,
		StopReason: resp.StopReason,
		Usage:      r.usage.Snapshot(),
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func describeCalls(calls []llm.ToolInvocation) string {
	names := make([]string, 0, len(calls))
	for _, call := range calls {
		switch call.Name {
		case tools.ToolNameSearchDrive:
			names = append(names, fmt.Sprintf("searching Drive for %q", tools.StringArg(call.Input, "query")))
		case tools.ToolNameReadDocument:
			names = append(names, "reading "+tools.StringArg(call.Input, "file_id"))
		case tools.ToolNameListFiles:
			if folder := tools.StringArg(call.Input, "folder_id"); folder != "" {
				names = append(names, "listing folder "+folder)
			} else {
				names = append(names, "listing recent files")
			}
		default:
			names = append(names, call.Name)
		}
	}
	out := strings.Join(names, ", ")
	if out == "" {
		return "Running tools..."
	}
	first, size := utf8.DecodeRuneInString(out)
	return string(unicode.ToUpper(first)) + out[size:] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
