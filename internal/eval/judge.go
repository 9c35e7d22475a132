package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/prompts"
)

// ParseVerdict extracts the verdict from judge output. Lines are scanned
// from the end and the first one containing the marker decides. Without a
// marker the answer counts as incorrect.
func ParseVerdict(text string) Verdict {
	lines := strings.Split(strings.TrimRight(text, "\n\r\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.ToUpper(lines[i])
		idx := strings.Index(line, prompts.VerdictMarker)
		if idx < 0 {
			continue
		}
		value := strings.Trim(line[idx+len(prompts.VerdictMarker):], " \t*_.`'\"")
		return Verdict{
			Correct:     strings.HasPrefix(value, "CORRECT"),
			Reasoning:   strings.TrimSpace(strings.Join(lines[:i], "\n")),
			MarkerFound: true,
		}
	}
	return Verdict{Reasoning: strings.TrimSpace(text)}
}

// Judge grades answers with one independent backend call each.
type Judge struct {
	client    llm.Client
	model     string
	maxTokens int
}

func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{client: client, model: model, maxTokens: consts.JudgeMaxTokens}
}

// Grade asks the judge whether answer matches q.ExpectedAnswer.
func (j *Judge) Grade(ctx context.Context, q Question, answer string) (Verdict, error) {
	resp, err := j.client.Complete(ctx, &llm.Request{
		Model:     j.model,
		Messages:  []llm.Message{llm.UserText(prompts.Judge(q.Question, q.ExpectedAnswer, answer))},
		MaxTokens: j.maxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("judge call failed: %w", err)
	}
	return ParseVerdict(resp.Text()), nil
}
