package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/driveagent/internal/eval"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/web"
)

var (
	serveAddr  string
	serveToken string
	serveAuth  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web UI",
	Long: `Serve chat (SSE and websocket), file listing and search, and the evaluation
endpoints. The question set file is watched and reloaded when it changes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, or :$PORT)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token on API routes")
	serveCmd.Flags().BoolVar(&serveAuth, "auth", false, "Generate a random bearer token and require it")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	cfg := app.cfg

	questions, err := eval.NewQuestionWatcher(cfg.QuestionsPath)
	if err != nil {
		return fmt.Errorf("failed to watch questions: %w", err)
	}
	defer questions.Close()
	if err := questions.Err(); err != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("Warning: %s: %v", questions.Path(), err))
	}

	store, err := eval.OpenStore(cfg.DatabasePath)
	if err != nil {
		logger.Warn("eval store unavailable, runs will not be kept: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	token := strings.TrimSpace(serveToken)
	if token == "" && serveAuth {
		if token, err = web.GenerateAuthToken(); err != nil {
			return fmt.Errorf("failed to generate auth token: %w", err)
		}
	}

	srv, err := web.NewServer(web.Options{
		Config:     cfg,
		Runner:     app.runner,
		Repository: app.repo,
		Questions:  questions,
		Store:      store,
		AuthToken:  token,
	})
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	url := "http://" + displayHost(addr)
	if token != "" {
		url += "/?token=" + token
	}
	fmt.Fprintf(os.Stderr, "Listening on %s\n", color.CyanString(url))
	return srv.ListenAndServe(ctx, addr)
}

func displayHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
