package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
)

// Streamer starts an agent run and returns its events.
type Streamer interface {
	Stream(ctx context.Context, req loop.RunRequest) <-chan progress.Event
	ResolveModel(requested string) string
}

// LineReader yields one line of user input per call. *readline.Instance
// satisfies it.
type LineReader interface {
	Readline() (string, error)
}

// Chat is an interactive question/answer session. Each question is an
// independent run; no history carries over.
type Chat struct {
	agent        Streamer
	render       *Renderer
	model        string
	systemPrompt string
	log          *logger.Logger
}

// NewChat creates a session answering with systemPrompt on model.
func NewChat(agent Streamer, render *Renderer, model, systemPrompt string) *Chat {
	return &Chat{
		agent:        agent,
		render:       render,
		model:        agent.ResolveModel(model),
		systemPrompt: systemPrompt,
		log:          logger.Global().WithPrefix("chat"),
	}
}

// Model is the model questions are currently sent to.
func (c *Chat) Model() string { return c.model }

// NewReadline opens the console prompt.
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "\033[36m> \033[0m",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// Run reads questions until EOF, /quit, or ctx ends.
func (c *Chat) Run(ctx context.Context, in LineReader) error {
	c.render.Banner(c.model)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(line); quit {
				return nil
			}
			continue
		}
		c.Ask(ctx, line)
	}
}

func (c *Chat) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/model":
		if arg == "" {
			c.render.Info("model " + c.model)
			return false
		}
		resolved := c.agent.ResolveModel(arg)
		if resolved != arg {
			c.render.Info("model " + arg + " is not allowed, using " + resolved)
		} else {
			c.render.Info("model " + resolved)
		}
		c.model = resolved
	default:
		c.render.Info("unknown command " + name)
	}
	return false
}

// Ask runs one question and renders its events. It returns the result of a
// successful run, or nil when the run failed.
func (c *Chat) Ask(ctx context.Context, question string) *loop.RunResult {
	c.log.Debug("question on %s: %q", c.model, question)
	c.render.Status("")

	events := c.agent.Stream(ctx, loop.RunRequest{
		Question:     question,
		SystemPrompt: c.systemPrompt,
		Model:        c.model,
	})

	var result *loop.RunResult
	for e := range events {
		switch e.Kind {
		case progress.KindThinking:
			c.render.Status(e.Message)
		case progress.KindDone:
			res, _ := e.Payload.(*loop.RunResult)
			if res == nil {
				c.render.Error("run finished without a result")
				continue
			}
			result = res
			c.render.Answer(res.Answer)
			c.render.Summary(res)
		case progress.KindError:
			c.render.Error(e.Message)
		}
	}
	c.render.ClearStatus()
	if result == nil && ctx.Err() != nil {
		c.render.Error("canceled")
	}
	return result
}
