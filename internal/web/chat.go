package web

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/prompts"
)

// chatRequest is the body of POST /chat and of each websocket message.
type chatRequest struct {
	Question     string `json:"question"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
}

func (c chatRequest) runRequest() loop.RunRequest {
	return loop.RunRequest{
		Question:     strings.TrimSpace(c.Question),
		SystemPrompt: strings.TrimSpace(c.SystemPrompt),
		Model:        strings.TrimSpace(c.Model),
	}
}

func (s *Server) handleDefaultPrompt(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"prompt": prompts.Default})
}

// handleChat streams one run: thinking events, then done or error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body chatRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := body.runRequest()
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "No question provided.")
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Debug("chat: model=%q question=%q", s.runner.ResolveModel(req.Model), req.Question)
	if err := stream.send(progress.Thinking("")); err != nil {
		return
	}
	stream.forward(s.runner.Stream(r.Context(), req))
}
