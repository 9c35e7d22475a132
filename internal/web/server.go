// Package web serves the research assistant over HTTP: chat and eval runs
// stream progress as server-sent events (or over a websocket), and the
// document repository and question set are exposed as small JSON endpoints.
package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/driveagent/internal/config"
	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/drive"
	"github.com/codefionn/driveagent/internal/eval"
	"github.com/codefionn/driveagent/internal/logger"
	"github.com/codefionn/driveagent/internal/orchestrator"
)

//go:embed static/*
var StaticFiles embed.FS

const authTokenLength = 32

// Options are the collaborators of a Server. Runner and Repository are
// required; the rest are optional.
type Options struct {
	Config     *config.Config
	Runner     *orchestrator.Runner
	Repository drive.Repository
	// Questions backs /eval/questions and is the default set for /eval.
	Questions *eval.QuestionWatcher
	// Store keeps finished eval runs for /eval/runs.
	Store *eval.Store
	// Grader overrides the LLM judge, mainly for tests.
	Grader eval.Grader
	// AuthToken, when set, is required on every route except /health, as a
	// bearer token or a token query parameter.
	AuthToken string
}

// Server represents the web server
type Server struct {
	cfg        *config.Config
	runner     *orchestrator.Runner
	repo       drive.Repository
	questions  *eval.QuestionWatcher
	store      *eval.Store
	grader     eval.Grader
	authToken  string
	router     *httprouter.Router
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates a new web server
func NewServer(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("web server requires a runner")
	}
	if opts.Repository == nil {
		return nil, errors.New("web server requires a document repository")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:       cfg,
		runner:    opts.Runner,
		repo:      opts.Repository,
		questions: opts.Questions,
		store:     opts.Store,
		grader:    opts.Grader,
		authToken: opts.AuthToken,
		router:    httprouter.New(),
		log:       logger.Global().WithPrefix("web"),
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	static, err := fs.Sub(StaticFiles, "static")
	if err == nil {
		s.router.ServeFiles("/static/*filepath", http.FS(static))
	}
	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/default-prompt", s.protect(s.handleDefaultPrompt))

	s.router.POST("/chat", s.protect(s.handleChat))
	s.router.GET("/ws/chat", s.protect(s.handleWebSocket))

	s.router.GET("/files", s.protect(s.handleFiles))
	s.router.GET("/search", s.protect(s.handleSearch))

	s.router.POST("/eval", s.protect(s.handleEval))
	s.router.GET("/eval/questions", s.protect(s.handleGetQuestions))
	s.router.POST("/eval/questions", s.protect(s.handleSaveQuestions))
	s.router.POST("/eval/generate-questions", s.protect(s.handleGenerateQuestions))
	s.router.GET("/eval/runs", s.protect(s.handleListRuns))
	s.router.GET("/eval/runs/:id", s.protect(s.handleGetRun))
	s.router.DELETE("/eval/runs/:id", s.protect(s.handleDeleteRun))
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Streams run for minutes, so there is no write timeout.
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.Timeout10Seconds,
		ErrorLog:          logger.NewStdLogger(s.log, slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening on %s", ln.Addr())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("stopping web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// protect enforces the auth token when one is configured.
func (s *Server) protect(h httprouter.Handle) httprouter.Handle {
	if s.authToken == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not authenticated", "auth_required": true})
			return
		}
		h(w, r, ps)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

// handleIndex serves the single-page UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, err := StaticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, struct {
		orchestrator.HealthReport
		Time string `json:"time"`
	}{s.runner.Health(), time.Now().Format(time.RFC3339)})
}

// GenerateAuthToken returns a random hex token for Options.AuthToken.
func GenerateAuthToken() (string, error) {
	bytes := make([]byte, authTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
