package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/driveagent/internal/config"
	"github.com/codefionn/driveagent/internal/drive"
	"github.com/codefionn/driveagent/internal/eval"
	"github.com/codefionn/driveagent/internal/llm"
	"github.com/codefionn/driveagent/internal/llm/llmtest"
	"github.com/codefionn/driveagent/internal/orchestrator"
	"github.com/codefionn/driveagent/internal/prompts"
	"github.com/codefionn/driveagent/internal/tools"
)

type sseEvent struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		out = append(out, e)
	}
	return out
}

// passGrader accepts any answer containing the expected text.
type passGrader struct{}

func (passGrader) Grade(_ context.Context, q eval.Question, answer string) (eval.Verdict, error) {
	return eval.Verdict{Correct: strings.Contains(answer, q.ExpectedAnswer), MarkerFound: true}, nil
}

type testEnv struct {
	server *Server
	client *llmtest.ScriptedClient
	repo   *drive.MemoryRepository
	dir    string
}

func newTestEnv(t *testing.T, opts Options, steps ...llmtest.Step) *testEnv {
	t.Helper()
	repo := drive.NewMemoryRepository(
		drive.MemoryFile{
			FileSummary: drive.FileSummary{ID: "f1", Name: "Q3 Roadmap", MimeType: drive.MimePlainText},
			Parent:      "planning",
			Content:     "The Q3 launch is on September 14.",
		},
		drive.MemoryFile{
			FileSummary: drive.FileSummary{ID: "f2", Name: "Budget 2025", MimeType: drive.MimePlainText},
			Content:     "Travel budget: $12,000",
		},
	)
	client := llmtest.NewScriptedClient(steps...)
	cfg := config.DefaultConfig()
	runner := orchestrator.NewRunner(cfg, client, tools.NewDriveRegistry(repo))

	dir := t.TempDir()
	questions, err := eval.NewQuestionWatcher(filepath.Join(dir, "questions.json"))
	require.NoError(t, err)
	t.Cleanup(func() { questions.Close() })

	opts.Config = cfg
	opts.Runner = runner
	opts.Repository = repo
	opts.Questions = questions
	if opts.Grader == nil {
		opts.Grader = passGrader{}
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)
	return &testEnv{server: srv, client: client, repo: repo, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "scripted", body["provider"])
	assert.ElementsMatch(t, []any{"search_drive", "list_files", "read_document"}, body["tools"])
	assert.NotEmpty(t, body["time"])
}

func TestIndexAndDefaultPrompt(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>driveagent</title>")

	rec = env.do(t, http.MethodGet, "/api/default-prompt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, prompts.Default, body["prompt"])
}

func TestChatStream(t *testing.T) {
	env := newTestEnv(t, Options{},
		llmtest.ToolUse(llm.Usage{InputTokens: 100, OutputTokens: 10},
			llm.ToolInvocation{ID: "t1", Name: tools.ToolNameSearchDrive, Input: map[string]any{"query": "launch"}}),
		llmtest.Text("The Q3 launch is on September 14.", llm.Usage{InputTokens: 150, OutputTokens: 12}),
	)

	rec := env.do(t, http.MethodPost, "/chat", `{"question":"When is the Q3 launch?","model":"not-a-model"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "thinking", events[0].Type)
	last := events[len(events)-1]
	require.Equal(t, "done", last.Type)
	for _, e := range events[:len(events)-1] {
		assert.Equal(t, "thinking", e.Type)
	}

	var result struct {
		Answer       string `json:"answer"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
		ToolCalls    int    `json:"tool_calls"`
		Turns        int    `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(last.Payload, &result))
	assert.Equal(t, "The Q3 launch is on September 14.", result.Answer)
	assert.Equal(t, 250, result.InputTokens)
	assert.Equal(t, 22, result.OutputTokens)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Equal(t, 2, result.Turns)

	// Unknown models fall back to the default.
	assert.Equal(t, config.DefaultModel, env.client.Last().Model)
}

func TestChatRejectsEmptyQuestion(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, body := range []string{`{"question":"   "}`, ""} {
		rec := env.do(t, http.MethodPost, "/chat", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "No question provided.")
	}
	assert.Zero(t, env.client.Calls())
}

func TestChatBackendError(t *testing.T) {
	env := newTestEnv(t, Options{}, llmtest.Step{Err: assert.AnError})

	rec := env.do(t, http.MethodPost, "/chat", `{"question":"anything"}`)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
	assert.NotEmpty(t, last.Message)

	var kind string
	require.NoError(t, json.Unmarshal(last.Payload, &kind))
	assert.Equal(t, "backend", kind)
}

func TestFilesAndSearch(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var files filesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files.Files, 2)

	rec = env.do(t, http.MethodGet, "/files?folder_id=planning", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "f1", files.Files[0].ID)

	rec = env.do(t, http.MethodGet, "/search?q=budget", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, "f2", files.Files[0].ID)

	rec = env.do(t, http.MethodGet, "/search?q=nothing-matches-this", "")
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/search?q=%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No query."}`, rec.Body.String())
}

func TestQuestionsEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/eval/questions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"questions":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/eval/questions", `{"questions":[{"id":"q1","question":"When?"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Each question needs id, question, expected_answer")

	rec = env.do(t, http.MethodPost, "/eval/questions",
		`{"questions":[{"id":"q1","question":"When is the launch?","expected_answer":"September 14"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"count":1}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/eval/questions", "")
	var got questionsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "September 14", got.Questions[0].ExpectedAnswer)

	stored, err := eval.LoadQuestions(filepath.Join(env.dir, "questions.json"))
	require.NoError(t, err)
	assert.Equal(t, got.Questions, stored)
}

func TestEvalStreamAndRuns(t *testing.T) {
	store, err := eval.OpenStore(filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	defer store.Close()

	env := newTestEnv(t, Options{Store: store},
		llmtest.Text("It is on September 14.", llm.Usage{InputTokens: 40, OutputTokens: 8}),
		llmtest.Text("No idea.", llm.Usage{InputTokens: 30, OutputTokens: 3}),
	)

	rec := env.do(t, http.MethodPost, "/eval", `{
		"prompts": [""],
		"questions": [
			{"id":"q1","question":"When is the launch?","expected_answer":"September 14"},
			{"id":"q2","question":"What is the travel budget?","expected_answer":"$12,000"}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Type+":"+e.Message)
	}
	assert.Equal(t, []string{"thinking:", "result:row", "result:row", "result:aggregate", "done:"}, kinds)

	var row eval.Row
	require.NoError(t, json.Unmarshal(events[1].Payload, &row))
	assert.Equal(t, "q1", row.ID)
	assert.Equal(t, "1", row.Variant)
	assert.True(t, row.Correct)
	assert.Equal(t, 40, row.InputTokens)

	var agg eval.Aggregate
	require.NoError(t, json.Unmarshal(events[3].Payload, &agg))
	assert.Equal(t, 0.5, agg.Accuracy)

	// Eval budgets apply to every question.
	for _, req := range env.client.Requests {
		assert.Equal(t, 2048, req.MaxTokens)
		assert.Empty(t, req.System)
	}

	rec = env.do(t, http.MethodGet, "/eval/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Runs []eval.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, 0.5, runs.Runs[0].Aggregates[0].Accuracy)

	id := runs.Runs[0].ID
	rec = env.do(t, http.MethodGet, "/eval/runs/"+jsonInt(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored eval.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Len(t, stored.Rows(), 2)

	rec = env.do(t, http.MethodDelete, "/eval/runs/"+jsonInt(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/eval/runs/"+jsonInt(id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/eval/runs/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonInt(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestEvalWithoutQuestions(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/eval", `{"prompts":["a","b","c"]}`)
	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].Type)
	assert.Contains(t, events[1].Message, "no questions")
	assert.Zero(t, env.client.Calls())
}

func TestEvalRunsWithoutStore(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/eval/runs", "")
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/eval/runs/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateQuestions(t *testing.T) {
	env := newTestEnv(t, Options{},
		llmtest.ToolUse(llm.Usage{}, llm.ToolInvocation{ID: "t1", Name: tools.ToolNameListFiles, Input: map[string]any{}}),
		llmtest.Text(`Here they are: [{"id":"q1","question":"When is the launch?","expected_answer":"September 14"}]`, llm.Usage{InputTokens: 90}),
	)

	rec := env.do(t, http.MethodPost, "/eval/generate-questions", `{"count":99}`)
	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	require.Equal(t, "done", events[1].Type)

	var gen eval.Generation
	require.NoError(t, json.Unmarshal(events[1].Payload, &gen))
	require.Len(t, gen.Questions, 1)
	assert.Equal(t, "September 14", gen.Questions[0].ExpectedAnswer)
	assert.Equal(t, 90, gen.Result.InputTokens)

	first := env.client.Requests[0]
	assert.Contains(t, first.System, "generate 20 diverse")
}

func TestGenerateQuestionsWithoutArray(t *testing.T) {
	env := newTestEnv(t, Options{}, llmtest.Text("I found no files.", llm.Usage{}))

	rec := env.do(t, http.MethodPost, "/eval/generate-questions", `{"count":3}`)
	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].Type)
	assert.Equal(t, "Model did not return valid JSON array", events[1].Message)
}

func TestAuthToken(t *testing.T) {
	env := newTestEnv(t, Options{AuthToken: "secret"})

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/files", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_required")

	rec = env.do(t, http.MethodGet, "/files?token=secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("Authorization", "Bearer secret")
	out := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)

	token, err := GenerateAuthToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
}

func TestWebSocketChat(t *testing.T) {
	env := newTestEnv(t, Options{}, llmtest.Text("Budget is $12,000.", llm.Usage{InputTokens: 5}))

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"question": "   "}))
	var e sseEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "error", e.Type)
	assert.Equal(t, "No question provided.", e.Message)

	require.NoError(t, conn.WriteJSON(map[string]string{"question": "What is the travel budget?"}))
	var kinds []string
	for {
		var ev sseEvent
		require.NoError(t, conn.ReadJSON(&ev))
		kinds = append(kinds, ev.Type)
		if ev.Type == "done" || ev.Type == "error" {
			var result struct {
				Answer string `json:"answer"`
			}
			require.NoError(t, json.Unmarshal(ev.Payload, &result))
			assert.Equal(t, "Budget is $12,000.", result.Answer)
			break
		}
	}
	assert.Equal(t, "thinking", kinds[0])
	assert.Equal(t, "done", kinds[len(kinds)-1])
}
