package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/cli"
	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/eval"
)

var (
	generateCount  int
	generateOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Let the agent draft evaluation questions from your documents",
	Long: `The agent explores the documents and writes question/answer pairs grounded
in what it read. Without --output the set is printed as JSON; with it, the set
is validated and saved (JSON or YAML by extension).`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().IntVar(&generateCount, "count", consts.DefaultGeneratedQuestions,
		fmt.Sprintf("Number of questions (%d-%d)", consts.MinGeneratedQuestions, consts.MaxGeneratedQuestions))
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Save the questions to this file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	model := app.runner.ResolveModel(modelFlag)
	fmt.Fprintf(os.Stderr, "Generating %d questions with %s...\n", eval.ClampCount(generateCount), model)

	gen, err := eval.Generate(ctx, app.runner, generateCount, model)
	if gen != nil && gen.Result != nil {
		fmt.Fprintln(os.Stderr, cli.FormatUsage(gen.Result.Usage))
	}
	if err != nil {
		return err
	}

	if generateOutput != "" {
		if err := eval.SaveQuestions(generateOutput, gen.Questions); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d questions to %s\n", len(gen.Questions), generateOutput)
		return nil
	}

	out, err := json.MarshalIndent(gen.Questions, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
