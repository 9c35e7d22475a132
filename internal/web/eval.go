package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/eval"
	"github.com/codefionn/driveagent/internal/orchestrator/loop"
	"github.com/codefionn/driveagent/internal/progress"
	"github.com/codefionn/driveagent/internal/prompts"
)

// maxEvalPrompts is how many prompt variants one /eval call compares.
const maxEvalPrompts = 2

type evalRequest struct {
	// Prompts are labelled "1" and "2"; an empty string means no system prompt.
	Prompts []string `json:"prompts"`
	Model   string   `json:"model"`
	// Questions replace the stored set when non-empty.
	Questions []eval.Question `json:"questions"`
}

func (e evalRequest) variants() []prompts.Variant {
	texts := e.Prompts
	if len(texts) == 0 {
		texts = []string{""}
	}
	if len(texts) > maxEvalPrompts {
		texts = texts[:maxEvalPrompts]
	}
	out := make([]prompts.Variant, 0, len(texts))
	for i, t := range texts {
		out = append(out, prompts.Variant{Label: strconv.Itoa(i + 1), Prompt: strings.TrimSpace(t)})
	}
	return out
}

// stream runs fn in the background with a channel-backed sink. Events stop
// flowing when ctx ends; the channel closes after the terminal event or
// when fn returns.
func stream(ctx context.Context, fn func(ctx context.Context, sink progress.Sink)) <-chan progress.Event {
	sink := progress.NewChannelSink(consts.StreamBuffer)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fn(ctx, sink)
		sink.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			sink.Abandon()
		case <-finished:
		}
	}()
	return sink.Events()
}

// handleEval streams a row per (variant, question), an aggregate per
// variant, then done with the full record.
func (s *Server) handleEval(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body evalRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	questions := body.Questions
	if len(questions) == 0 && s.questions != nil {
		questions = s.questions.Questions()
	}
	model := s.runner.ResolveModel(strings.TrimSpace(body.Model))
	variants := body.variants()

	es, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := es.send(progress.Thinking("")); err != nil {
		return
	}
	s.log.Info("eval: %d questions, %d prompts, model %s", len(questions), len(variants), model)

	es.forward(stream(r.Context(), func(ctx context.Context, sink progress.Sink) {
		h := eval.NewHarness(s.runner, s.graderFor(model))
		h.MaxTurns = s.cfg.EvalMaxTurns
		h.MaxTokens = s.cfg.EvalMaxTokens
		h.Sink = progress.SinkFunc(func(e progress.Event) {
			if rec, ok := e.Payload.(*eval.Record); ok && e.Kind == progress.KindDone {
				s.persist(ctx, rec)
			}
			sink.Emit(e)
		})
		_, _ = h.Run(ctx, questions, variants, model)
	}))
}

func (s *Server) graderFor(model string) eval.Grader {
	if s.grader != nil {
		return s.grader
	}
	return eval.NewJudge(s.runner.Client(), model)
}

// persist stores rec when a store is configured. Failures are logged; the
// stream still completes.
func (s *Server) persist(ctx context.Context, rec *eval.Record) {
	if s.store == nil {
		return
	}
	if _, err := s.store.SaveRecord(ctx, rec); err != nil {
		s.log.Error("failed to store eval run: %v", err)
		return
	}
	s.log.Info("stored eval run %d", rec.ID)
}

type questionsPayload struct {
	Questions []eval.Question `json:"questions"`
	Error     string          `json:"error,omitempty"`
}

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.questions == nil {
		writeJSON(w, http.StatusOK, questionsPayload{Questions: []eval.Question{}, Error: "no question set configured"})
		return
	}
	out := questionsPayload{Questions: s.questions.Questions()}
	if out.Questions == nil {
		out.Questions = []eval.Question{}
	}
	if err := s.questions.Err(); err != nil {
		out.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body questionsPayload
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, q := range body.Questions {
		if q.Validate() != nil {
			writeError(w, http.StatusBadRequest, "Each question needs id, question, expected_answer")
			return
		}
	}
	if err := eval.ValidateQuestions(body.Questions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.questions == nil {
		writeError(w, http.StatusInternalServerError, "no question set configured")
		return
	}
	if err := s.questions.Save(body.Questions); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(body.Questions)})
}

type generateRequest struct {
	Count *int   `json:"count"`
	Model string `json:"model"`
}

// handleGenerateQuestions lets the agent draft a question set from the
// repository. The result is returned, not saved.
func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body generateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count := consts.DefaultGeneratedQuestions
	if body.Count != nil {
		count = *body.Count
	}
	model := s.runner.ResolveModel(strings.TrimSpace(body.Model))

	es, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := es.send(progress.Thinking("")); err != nil {
		return
	}

	es.forward(stream(r.Context(), func(ctx context.Context, sink progress.Sink) {
		gen, err := eval.Generate(ctx, s.runner, count, model)
		switch {
		case err == nil:
			sink.Emit(progress.Done(gen))
		case errors.Is(err, eval.ErrNoQuestionArray):
			sink.Emit(progress.Error("Model did not return valid JSON array", loop.FailureInternal))
		case gen != nil:
			sink.Emit(progress.Error("JSON parse error: "+errors.Unwrap(err).Error(), loop.FailureInternal))
		default:
			sink.Emit(progress.Error(loop.UserMessage(err), loop.FailureKind(err)))
		}
	}))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []eval.RunSummary{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []eval.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) runID(w http.ResponseWriter, ps httprouter.Params) (int64, bool) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no eval store configured")
		return 0, false
	}
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := s.runID(w, ps)
	if !ok {
		return
	}
	rec, err := s.store.LoadRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := s.runID(w, ps)
	if !ok {
		return
	}
	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
