package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/prompts"
)

// Agent answers one question. *orchestrator.Runner satisfies it.
type Agent interface {
	Ask(ctx context.Context, req loop.RunRequest) (*loop.RunResult, error)
}

// Grader decides whether an answer is correct. *Judge satisfies it.
type Grader interface {
	Grade(ctx context.Context, q Question, answer string) (Verdict, error)
}

// Harness runs question sets against prompt variants, one question at a
// time.
type Harness struct {
	agent  Agent
	grader Grader

	// MaxTurns and MaxTokens are the per-question budgets (default: 6 and 2048).
	MaxTurns  int
	MaxTokens int

	// Sink receives a result event per row and per aggregate, then done.
	Sink progress.Sink

	// EstimateTokens sizes each prompt for the report (default: llm.CountTokens).
	EstimateTokens func(string) int

	now func() time.Time
	log *logger.Logger
}

func NewHarness(agent Agent, grader Grader) *Harness {
	return &Harness{
		agent:          agent,
		grader:         grader,
		MaxTurns:       consts.EvalMaxTurns,
		MaxTokens:      consts.EvalMaxTokens,
		EstimateTokens: llm.CountTokens,
		now:            time.Now,
		log:            logger.Global().WithPrefix("eval"),
	}
}

// Result event messages distinguishing row and aggregate payloads.
const (
	EventRow       = "row"
	EventAggregate = "aggregate"
)

// Fingerprint returns a short stable identifier of a prompt's text.
func Fingerprint(prompt string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(prompt))
}

// Run evaluates every question under each variant (one or two) with model.
// A question whose run fails becomes a failure row; only cancellation of ctx
// stops the evaluation early.
func (h *Harness) Run(ctx context.Context, questions []Question, variants []prompts.Variant, model string) (*Record, error) {
	record, err := h.run(ctx, questions, variants, model)
	if err != nil {
		progress.Emit(h.Sink, progress.Error(err.Error(), loop.FailureKind(err)))
		return nil, err
	}
	progress.Emit(h.Sink, progress.Done(record))
	return record, nil
}

func (h *Harness) run(ctx context.Context, questions []Question, variants []prompts.Variant, model string) (*Record, error) {
	if len(variants) == 0 || len(variants) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 prompt variants, got %d", len(variants))
	}
	if len(questions) == 0 {
		return nil, errors.New("no questions to evaluate")
	}
	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}

	record := &Record{Timestamp: h.now().UTC(), Model: model}
	estimate := h.EstimateTokens
	if estimate == nil {
		estimate = llm.CountTokens
	}

	for _, v := range variants {
		result := VariantResult{
			Label:        v.Label,
			Fingerprint:  Fingerprint(v.Prompt),
			PromptTokens: estimate(v.Prompt),
			Prompt:       v.Prompt,
			Rows:         make([]Row, 0, len(questions)),
		}
		h.log.Info("variant %s: %d questions, prompt %s (~%d tokens)", v.Label, len(questions), result.Fingerprint, result.PromptTokens)

		for _, q := range questions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row := h.evaluate(ctx, v, q, model)
			result.Rows = append(result.Rows, row)
			progress.Emit(h.Sink, progress.Event{Kind: progress.KindResult, Message: EventRow, Payload: row})
		}

		result.Aggregate = Summarize(v.Label, result.Rows)
		progress.Emit(h.Sink, progress.Event{Kind: progress.KindResult, Message: EventAggregate, Payload: result.Aggregate})
		h.log.Info("variant %s: accuracy %.0f%% (%d/%d), %d failures",
			v.Label, result.Aggregate.Accuracy*100, result.Aggregate.Correct, result.Aggregate.Questions, result.Aggregate.Failures)
		record.Variants = append(record.Variants, result)
	}
	return record, nil
}

func (h *Harness) evaluate(ctx context.Context, v prompts.Variant, q Question, model string) Row {
	row := Row{ID: q.ID, Variant: v.Label, Question: q.Question, ExpectedAnswer: q.ExpectedAnswer}
	start := time.Now()

	result, err := h.agent.Ask(ctx, loop.RunRequest{
		Question:     q.Question,
		SystemPrompt: v.Prompt,
		Model:        model,
		MaxTurns:     h.MaxTurns,
		MaxTokens:    h.MaxTokens,
	})
	if err != nil {
		h.log.Warn("question %s (variant %s) failed: %v", q.ID, v.Label, err)
		row.Response = ErrorPrefix + err.Error()
		row.Error = err.Error()
		row.FailureKind = loop.FailureKind(err)
		row.DurationMs = time.Since(start).Milliseconds()
		return row
	}

	row.Response = result.Answer
	row.InputTokens = result.InputTokens
	row.OutputTokens = result.OutputTokens
	row.CacheReadTokens = result.CacheReadTokens
	row.CacheCreationTokens = result.CacheCreationTokens
	row.ToolCalls = result.ToolCalls
	row.Turns = result.Turns

	verdict, err := h.grader.Grade(ctx, q, result.Answer)
	if err != nil {
		h.log.Warn("judging %s (variant %s) failed: %v", q.ID, v.Label, err)
		row.Error = err.Error()
	} else {
		row.Correct = verdict.Correct
		row.MarkerFound = verdict.MarkerFound
		row.JudgeReasoning = verdict.Reasoning
		if !verdict.MarkerFound {
			h.log.Warn("judge gave no verdict for %s (variant %s); counted incorrect", q.ID, v.Label)
		}
	}
	row.DurationMs = time.Since(start).Milliseconds()
	return row
}
