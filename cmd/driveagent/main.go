package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/securemem"
)

var (
	configFile string
	logLevel   string
	localDir   string
	modelFlag  string
)

// rootCmd runs the interactive chat when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "driveagent",
	Short: "Research assistant for your Google Drive",
	Long: `driveagent answers questions about the files in a Google Drive by letting a
language model search, list and read documents through tools.

- chat:     interactive questions in the terminal (default)
- serve:    HTTP and websocket API with a small web UI
- eval:     compare system prompts on a question set, graded by an LLM judge
- generate: let the agent draft an evaluation question set
- auth:     authorize Drive access with an OAuth client

Use --local DIR to work on a folder on disk instead of Google Drive.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func main() {
	err := rootCmd.Execute()
	securemem.Purge()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON, default ~/.config/driveagent/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().StringVar(&localDir, "local", "", "Serve documents from a local directory instead of Google Drive")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (must be in allowed_models for anthropic)")
}
