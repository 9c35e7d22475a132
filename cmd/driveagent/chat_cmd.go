package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/cli"
	"github.com/codefionn/driveagent/internal/prompts"
	"github.com/codefionn/driveagent/internal/securemem"
)

var chatPrompt string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your Drive in the terminal",
	Long: `Start an interactive session. Every question is answered independently:
the agent searches and reads documents, then replies with what it found.

Commands inside the session:
  /model [name]  show or switch the model
  /quit          leave (Ctrl-D works too)`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "a", "System prompt variant: a (default research prompt) or b (concise)")
}

func runChat(cmd *cobra.Command, args []string) error {
	// Ctrl-C outside the prompt wipes keys and exits.
	securemem.Init()

	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}

	variant := chatPrompt
	if variant == "" {
		variant = "a"
	}
	variants, err := prompts.Variants(variant)
	if err != nil {
		return err
	}

	rl, err := cli.NewReadline(filepath.Join(filepath.Dir(app.cfg.LogPath), "history"))
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	chat := cli.NewChat(app.runner, cli.NewRenderer(os.Stdout), modelFlag, variants[0].Prompt)
	return chat.Run(ctx, rl)
}
