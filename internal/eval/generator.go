package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/prompts"
)

// ErrNoQuestionArray means the generator's answer held no JSON array.
var ErrNoQuestionArray = errors.New("model did not return a valid JSON array")

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// ClampCount keeps a requested question count within the generator limits.
func ClampCount(n int) int {
	if n < consts.MinGeneratedQuestions {
		return consts.MinGeneratedQuestions
	}
	if n > consts.MaxGeneratedQuestions {
		return consts.MaxGeneratedQuestions
	}
	return n
}

// ExtractQuestions decodes the outermost JSON array in answer. The result
// is not validated; callers decide whether incomplete items are acceptable.
func ExtractQuestions(answer string) ([]Question, error) {
	match := jsonArrayPattern.FindString(answer)
	if match == "" {
		return nil, ErrNoQuestionArray
	}
	var questions []Question
	if err := json.Unmarshal([]byte(match), &questions); err != nil {
		return nil, fmt.Errorf("parse question array: %w", err)
	}
	return questions, nil
}

// Generation is the outcome of a question generation run.
type Generation struct {
	Questions []Question      `json:"questions"`
	Result    *loop.RunResult `json:"tokens"`
}

// Generate lets the agent explore the document repository and write count
// benchmark questions (clamped to 1..20).
func Generate(ctx context.Context, agent Agent, count int, model string) (*Generation, error) {
	count = ClampCount(count)
	result, err := agent.Ask(ctx, loop.RunRequest{
		Question:     prompts.GeneratorRequest(count),
		SystemPrompt: prompts.Generator(count),
		Model:        model,
		MaxTurns:     consts.GeneratorMaxTurns,
	})
	if err != nil {
		return nil, err
	}
	questions, err := ExtractQuestions(result.Answer)
	if err != nil {
		return &Generation{Result: result}, err
	}
	return &Generation{Questions: questions, Result: result}, nil
}
