// Package eval benchmarks system prompts: it runs a fixed question set
// through the agent once per prompt variant, grades every answer with an
// LLM judge and aggregates accuracy and token usage.
package eval

import (
	"fmt"
	"strings"
	"time"
)

// Question is one benchmark item.
type Question struct {
	ID             string `json:"id" yaml:"id"`
	Question       string `json:"question" yaml:"question"`
	ExpectedAnswer string `json:"expected_answer" yaml:"expected_answer"`
}

// Validate checks the required fields.
func (q Question) Validate() error {
	var missing []string
	if strings.TrimSpace(q.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(q.Question) == "" {
		missing = append(missing, "question")
	}
	if strings.TrimSpace(q.ExpectedAnswer) == "" {
		missing = append(missing, "expected_answer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("question %q is missing %s", q.ID, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateQuestions checks every question and rejects duplicate ids.
func ValidateQuestions(questions []Question) error {
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// Verdict is the judge's decision on one answer.
type Verdict struct {
	Correct   bool   `json:"correct"`
	Reasoning string `json:"reasoning,omitempty"`
	// MarkerFound is false when the judge produced no verdict line and the
	// answer was marked incorrect by default.
	MarkerFound bool `json:"marker_found"`
}

// Row is the outcome of one question under one variant.
type Row struct {
	ID             string `json:"id" db:"question_id"`
	Variant        string `json:"prompt" db:"variant"`
	Question       string `json:"question" db:"question"`
	ExpectedAnswer string `json:"expected_answer" db:"expected_answer"`
	Response       string `json:"response" db:"response"`
	Correct        bool   `json:"correct" db:"correct"`
	MarkerFound    bool   `json:"marker_found" db:"marker_found"`
	JudgeReasoning string `json:"judge_reasoning,omitempty" db:"judge_reasoning"`
	Error          string `json:"error,omitempty" db:"error"`
	FailureKind    string `json:"failure_kind,omitempty" db:"failure_kind"`

	InputTokens         int   `json:"input_tokens" db:"input_tokens"`
	OutputTokens        int   `json:"output_tokens" db:"output_tokens"`
	CacheReadTokens     int   `json:"cache_read_tokens" db:"cache_read_tokens"`
	CacheCreationTokens int   `json:"cache_creation_tokens" db:"cache_creation_tokens"`
	ToolCalls           int   `json:"tool_calls" db:"tool_calls"`
	Turns               int   `json:"turns" db:"turns"`
	DurationMs          int64 `json:"duration_ms" db:"duration_ms"`
}

// Failed reports whether the run behind the row produced no answer.
func (r Row) Failed() bool {
	return r.FailureKind != ""
}

// ErrorPrefix starts the response of a row whose run failed.
const ErrorPrefix = "ERROR: "

// Aggregate summarizes the rows of one variant. Means are taken over all
// rows, failed ones included.
type Aggregate struct {
	Variant                 string  `json:"prompt"`
	Questions               int     `json:"questions"`
	Correct                 int     `json:"correct"`
	Failures                int     `json:"failures"`
	Accuracy                float64 `json:"accuracy"`
	MeanInputTokens         float64 `json:"mean_input_tokens"`
	MeanOutputTokens        float64 `json:"mean_output_tokens"`
	MeanCacheReadTokens     float64 `json:"mean_cache_read_tokens"`
	MeanCacheCreationTokens float64 `json:"mean_cache_creation_tokens"`
	MeanToolCalls           float64 `json:"mean_tool_calls"`
	MeanTurns               float64 `json:"mean_turns"`
}

// VariantResult holds one variant's rows in question order.
type VariantResult struct {
	Label string `json:"label"`
	// Fingerprint identifies the exact prompt text, so runs of the same
	// prompt can be compared over time.
	Fingerprint  string    `json:"prompt_fingerprint"`
	PromptTokens int       `json:"prompt_tokens"`
	Prompt       string    `json:"prompt,omitempty"`
	Rows         []Row     `json:"rows"`
	Aggregate    Aggregate `json:"aggregate"`
}

// Record is a complete, persisted evaluation run.
type Record struct {
	ID        int64           `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Model     string          `json:"model"`
	Variants  []VariantResult `json:"variants"`
}

// Rows returns every row ordered by (question, variant): the report order.
func (r *Record) Rows() []Row {
	if r == nil || len(r.Variants) == 0 {
		return nil
	}
	var out []Row
	for i := range r.Variants[0].Rows {
		for _, v := range r.Variants {
			if i < len(v.Rows) {
				out = append(out, v.Rows[i])
			}
		}
	}
	return out
}
