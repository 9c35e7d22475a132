package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/eval"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/prompts"
)

var (
	evalPrompt    string
	evalQuestions string
	evalResults   string
	evalNoStore   bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Compare system prompts on an evaluation question set",
	Long: `Run every question in the set under prompt A (default research prompt),
prompt B (concise), or both. Each answer is graded by an LLM judge against the
expected answer. The comparison is printed, written to the results directory
and stored in the eval database.

Examples:
  # Compare both prompts on eval/questions.json
  driveagent eval

  # Only the concise prompt, a different set and model
  driveagent eval --prompt b --questions my_set.yaml --model claude-haiku-4-5-20251001`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalPrompt, "prompt", "", "Prompt variant to run: a, b, or empty for both")
	evalCmd.Flags().StringVar(&evalQuestions, "questions", "", "Question set (JSON or YAML, default from config)")
	evalCmd.Flags().StringVar(&evalResults, "results-dir", "", "Directory for run_<timestamp>.json (default from config)")
	evalCmd.Flags().BoolVar(&evalNoStore, "no-store", false, "Do not store the run in the eval database")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	variants, err := prompts.Variants(evalPrompt)
	if err != nil {
		return err
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	cfg := app.cfg

	path := evalQuestions
	if path == "" {
		path = cfg.QuestionsPath
	}
	questions, err := eval.LoadQuestions(path)
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}

	model := app.runner.ResolveModel(modelFlag)
	fmt.Fprintf(os.Stderr, "Evaluating %d questions with %d prompt(s) on %s\n\n", len(questions), len(variants), model)

	h := eval.NewHarness(app.runner, eval.NewJudge(app.runner.Client(), model))
	h.MaxTurns = cfg.EvalMaxTurns
	h.MaxTokens = cfg.EvalMaxTokens
	h.Sink = rowPrinter(os.Stderr)

	rec, err := h.Run(ctx, questions, variants, model)
	if err != nil {
		return err
	}

	fmt.Println()
	eval.PrintReport(os.Stdout, rec)

	dir := evalResults
	if dir == "" {
		dir = cfg.ResultsDir
	}
	file, err := eval.WriteResultsFile(dir, rec)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	fmt.Printf("\nResults written to %s\n", file)

	if evalNoStore {
		return nil
	}
	store, err := eval.OpenStore(cfg.DatabasePath)
	if err != nil {
		logger.Warn("eval store unavailable: %v", err)
		fmt.Fprintln(os.Stderr, color.YellowString("Warning: run not stored: %v", err))
		return nil
	}
	defer store.Close()
	id, err := store.SaveRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	fmt.Printf("Stored as run %d in %s\n", id, store.Path())
	return nil
}

// rowPrinter reports each graded question as it finishes.
func rowPrinter(w io.Writer) progress.Sink {
	return progress.SinkFunc(func(e progress.Event) {
		if e.Kind != progress.KindResult || e.Message != eval.EventRow {
			return
		}
		row, ok := e.Payload.(eval.Row)
		if !ok {
			return
		}
		status := color.GreenString("PASS")
		switch {
		case row.Failed():
			status = color.YellowString("ERROR")
		case !row.Correct:
			status = color.RedString("FAIL")
		}
		fmt.Fprintf(w, "[%s] %-12s %s  %d turns, %d tool calls, %d tokens\n",
			row.Variant, row.ID, status, row.Turns, row.ToolCalls, row.InputTokens+row.OutputTokens)
	})
}
