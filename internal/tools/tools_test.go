package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/driveagent/internal/drive"
	"github.com/codefionn/driveagent/internal/llm"
)

func testRepo() *drive.MemoryRepository {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 9, 0, 0, 0, time.UTC) }
	return drive.NewMemoryRepository(
		drive.MemoryFile{
			FileSummary: drive.FileSummary{ID: "f1", Name: "Q3 Roadmap", MimeType: drive.MimeGoogleDoc, ModifiedTime: day(10)},
			Parent:      "planning",
			Content:     "The Q3 roadmap ships search in August.",
		},
		drive.MemoryFile{
			FileSummary: drive.FileSummary{ID: "f2", Name: "Budget 2025", MimeType: drive.MimeGoogleSheet, ModifiedTime: day(12)},
			Parent:      "finance",
			Content:     "team,amount\nsearch,120000",
		},
		drive.MemoryFile{
			FileSummary: drive.FileSummary{ID: "planning", Name: "Planning", MimeType: drive.MimeFolder, ModifiedTime: day(1)},
		},
	)
}

func decodeListing(t *testing.T, out string) listing {
	t.Helper()
	var l listing
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	return l
}

func TestDriveRegistryDefinitions(t *testing.T) {
	reg := NewDriveRegistry(testRepo())
	assert.Equal(t, []string{ToolNameSearchDrive, ToolNameListFiles, ToolNameReadDocument}, reg.Names())

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	for _, def := range defs {
		assert.Equal(t, "object", def.InputSchema["type"], def.Name)
		assert.Contains(t, def.InputSchema, "properties", def.Name)
		assert.NotEmpty(t, def.Description, def.Name)
	}

	search := defs[0].InputSchema
	assert.ElementsMatch(t, []any{"query"}, search["required"])
	props := search["properties"].(map[string]any)
	maxResults := props["max_results"].(map[string]any)
	assert.Equal(t, "integer", maxResults["type"])
	assert.EqualValues(t, 10, maxResults["default"])

	read := defs[2].InputSchema
	assert.ElementsMatch(t, []any{"file_id"}, read["required"])
}

func TestRegistryRejectsDuplicatesAndEmptyNames(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubTool{name: "a"}))
	assert.Error(t, reg.Register(&stubTool{name: "a"}))
	assert.Error(t, reg.Register(&stubTool{name: ""}))
	assert.Panics(t, func() { reg.MustRegister(&stubTool{name: "a"}) })
}

func TestSearchDriveAppliesDefaultsAndFindsContent(t *testing.T) {
	reg := NewDriveRegistry(testRepo())

	res := reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "t1", Name: ToolNameSearchDrive, Input: map[string]any{"query": "search"},
	})
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "t1", res.ToolUseID)

	l := decodeListing(t, res.Content)
	assert.Equal(t, "search", l.Query)
	require.Equal(t, 2, l.Count)
	assert.Equal(t, "f2", l.Files[0].ID, "newest first")
	assert.Equal(t, "f1", l.Files[1].ID)
	assert.NotContains(t, res.Content, "120000", "search returns metadata only")
}

func TestSearchDriveHonorsMaxResults(t *testing.T) {
	reg := NewDriveRegistry(testRepo())
	res := reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "t1", Name: ToolNameSearchDrive, Input: map[string]any{"query": "search", "max_results": float64(1)},
	})
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, 1, decodeListing(t, res.Content).Count)
}

func TestSearchDriveRejectsInvalidInput(t *testing.T) {
	reg := NewDriveRegistry(testRepo())
	tests := []struct {
		name  string
		input map[string]any
	}{
		{name: "missing query", input: map[string]any{}},
		{name: "empty query", input: map[string]any{"query": ""}},
		{name: "query wrong type", input: map[string]any{"query": 42.0}},
		{name: "max_results too large", input: map[string]any{"query": "x", "max_results": 500.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Execute(context.Background(), llm.ToolInvocation{ID: "x", Name: ToolNameSearchDrive, Input: tt.input})
			assert.True(t, res.IsError)
			assert.True(t, strings.HasPrefix(res.Content, "error: invalid input for search_drive"), res.Content)
		})
	}
}

func TestListFiles(t *testing.T) {
	reg := NewDriveRegistry(testRepo())

	res := reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "l1", Name: ToolNameListFiles, Input: map[string]any{"folder_id": "planning"},
	})
	require.False(t, res.IsError, res.Content)
	l := decodeListing(t, res.Content)
	assert.Equal(t, "planning", l.FolderID)
	require.Equal(t, 1, l.Count)
	assert.Equal(t, "Q3 Roadmap", l.Files[0].Name)

	res = reg.Execute(context.Background(), llm.ToolInvocation{ID: "l2", Name: ToolNameListFiles})
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, 3, decodeListing(t, res.Content).Count)

	res = reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "l3", Name: ToolNameListFiles, Input: map[string]any{"folder_id": "nowhere"},
	})
	require.False(t, res.IsError, res.Content)
	l = decodeListing(t, res.Content)
	assert.Equal(t, 0, l.Count)
	assert.NotNil(t, l.Files)
}

func TestReadDocument(t *testing.T) {
	repo := testRepo()
	reg := NewDriveRegistry(repo)

	res := reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "r1", Name: ToolNameReadDocument, Input: map[string]any{"file_id": "f1"},
	})
	require.False(t, res.IsError, res.Content)
	assert.True(t, strings.HasPrefix(res.Content, "# Q3 Roadmap\n"), res.Content)
	assert.Contains(t, res.Content, "ID: f1")
	assert.Contains(t, res.Content, "ships search in August")

	repo.SetReadBudget(10)
	res = reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "r2", Name: ToolNameReadDocument, Input: map[string]any{"file_id": "f1"},
	})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "[truncated, ")

	res = reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "r3", Name: ToolNameReadDocument, Input: map[string]any{"file_id": "missing"},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "file not found")

	res = reg.Execute(context.Background(), llm.ToolInvocation{
		ID: "r4", Name: ToolNameReadDocument, Input: map[string]any{"file_id": "planning"},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "unsupported file type")
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewDriveRegistry(testRepo())
	res := reg.Execute(context.Background(), llm.ToolInvocation{ID: "u1", Name: "delete_everything"})
	assert.True(t, res.IsError)
	assert.Equal(t, "u1", res.ToolUseID)
	assert.Equal(t, "unknown tool: delete_everything", res.Content)
}

func TestExecuteToolErrorBecomesText(t *testing.T) {
	reg := NewRegistry().MustRegister(&stubTool{name: "boom", err: errors.New("backend unavailable")})
	res := reg.Execute(context.Background(), llm.ToolInvocation{ID: "b1", Name: "boom"})
	assert.True(t, res.IsError)
	assert.Equal(t, "error: backend unavailable", res.Content)
}

func TestExecuteDoesNotMutateCallerInput(t *testing.T) {
	reg := NewDriveRegistry(testRepo())
	input := map[string]any{"query": "roadmap"}
	res := reg.Execute(context.Background(), llm.ToolInvocation{ID: "s", Name: ToolNameSearchDrive, Input: input})
	require.False(t, res.IsError, res.Content)
	assert.NotContains(t, input, "max_results")
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		value any
		want  int
	}{
		{float64(7), 7},
		{int(3), 3},
		{int64(4), 4},
		{json.Number("9"), 9},
		{"12", 5},
		{nil, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntArg(map[string]any{"n": tt.value}, "n", 5), "%#v", tt.value)
	}
}

// stubTool is a configurable tool for registry and dispatcher tests.
type stubTool struct {
	name  string
	out   string
	err   error
	delay time.Duration
	panic bool
	run   func(ctx context.Context)
}

func (s *stubTool) Spec() Spec {
	return Spec{Name: s.name, Description: "stub", Schema: openapi3.NewObjectSchema()}
}

func (s *stubTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	if s.run != nil {
		s.run(ctx)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.panic {
		panic("kaboom")
	}
	return s.out, s.err
}
