package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func TestTruncate(t *testing.T) {
	kept, total, cut := Truncate("héllo world", 5)
	assert.Equal(t, "héllo", kept)
	assert.Equal(t, 11, total)
	assert.True(t, cut)

	kept, total, cut = Truncate("short", 100)
	assert.Equal(t, "short", kept)
	assert.Equal(t, 5, total)
	assert.False(t, cut)
}

func TestDocumentRender(t *testing.T) {
	doc := &Document{
		FileSummary: FileSummary{ID: "f1", Name: "Plan", MimeType: MimeGoogleDoc,
			ModifiedTime: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		Content:    "abc",
		TotalChars: 10,
		Truncated:  true,
	}
	out := doc.Render()
	assert.True(t, strings.HasPrefix(out, "# Plan\nType: "+MimeGoogleDoc+" | ID: f1 | Modified: 2026-03-04\n\nabc"))
	assert.Contains(t, out, "[truncated, 7 more characters]")
}

func TestQueries(t *testing.T) {
	assert.Equal(t,
		`(name contains 'Bob\'s notes' or fullText contains 'Bob\'s notes') and trashed = false`,
		SearchQuery(" Bob's notes "))
	assert.Equal(t, "trashed = false", ListQuery(""))
	assert.Equal(t, "'abc' in parents and trashed = false", ListQuery("abc"))
}

func memoryFixture() *MemoryRepository {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewMemoryRepository(
		MemoryFile{FileSummary: FileSummary{ID: "folder", Name: "Finance", MimeType: MimeFolder, ModifiedTime: base}},
		MemoryFile{FileSummary: FileSummary{ID: "b", Name: "Budget 2026", MimeType: MimeGoogleDoc, ModifiedTime: base.Add(2 * time.Hour)},
			Parent: "folder", Content: "Total budget is $1.2M"},
		MemoryFile{FileSummary: FileSummary{ID: "r", Name: "Roadmap", MimeType: MimePlainText, ModifiedTime: base.Add(time.Hour)},
			Content: "Launch in Q3. The budget review is in May."},
	)
}

func TestMemoryRepositorySearch(t *testing.T) {
	repo := memoryFixture()
	got, err := repo.Search(context.Background(), "BUDGET", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "newest first")
	assert.Equal(t, "r", got[1].ID)

	got, err = repo.Search(context.Background(), "budget", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryRepositoryList(t *testing.T) {
	repo := memoryFixture()
	got, err := repo.List(context.Background(), "folder", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Budget 2026", got[0].Name)

	all, err := repo.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryRepositoryRead(t *testing.T) {
	repo := memoryFixture()
	repo.SetReadBudget(5)

	doc, err := repo.Read(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "Total", doc.Content)
	assert.True(t, doc.Truncated)

	_, err = repo.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Read(context.Background(), "folder")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestMemoryRepositoryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memoryFixture().Search(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeDrive serves the handful of Drive v3 endpoints GoogleRepository uses.
func fakeDrive(t *testing.T) *httptest.Server {
	t.Helper()
	files := map[string]map[string]any{
		"doc1":  {"id": "doc1", "name": "Plan", "mimeType": MimeGoogleDoc, "modifiedTime": "2026-02-01T10:00:00Z"},
		"txt1":  {"id": "txt1", "name": "notes.txt", "mimeType": MimePlainText, "size": "11"},
		"img1":  {"id": "img1", "name": "photo.png", "mimeType": "image/png"},
		"sheet": {"id": "sheet", "name": "Numbers", "mimeType": MimeGoogleSheet},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		var out []map[string]any
		if strings.Contains(q, "fullText contains 'plan'") {
			out = append(out, files["doc1"])
		} else if strings.Contains(q, "in parents") {
			out = append(out, files["txt1"], files["img1"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": out})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/files/")
		id, action, _ := strings.Cut(rest, "/")
		f, ok := files[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
			return
		}
		switch {
		case action == "export" && id == "doc1":
			_, _ = w.Write([]byte(`<html><head><style>p{}</style></head><body><h1>Plan</h1><p>Ship in <b>May</b>.</p><p>Owner: Ana</p></body></html>`))
		case action == "export" && id == "sheet":
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		case r.URL.Query().Get("alt") == "media":
			_, _ = w.Write([]byte("hello notes"))
		default:
			_ = json.NewEncoder(w).Encode(f)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFakeRepo(t *testing.T) *GoogleRepository {
	srv := fakeDrive(t)
	repo, err := NewGoogleRepository(context.Background(), 8000,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return repo
}

func TestGoogleRepositorySearchAndList(t *testing.T) {
	repo := newFakeRepo(t)

	found, err := repo.Search(context.Background(), "plan", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Plan", found[0].Name)
	assert.Equal(t, 2026, found[0].ModifiedTime.Year())

	listed, err := repo.List(context.Background(), "folder1", 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, int64(11), listed[0].Size)

	_, err = repo.Search(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestGoogleRepositoryRead(t *testing.T) {
	repo := newFakeRepo(t)

	doc, err := repo.Read(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "# Plan")
	assert.Contains(t, doc.Content, "**May**")
	assert.NotContains(t, doc.Content, "p{}")

	txt, err := repo.Read(context.Background(), "txt1")
	require.NoError(t, err)
	assert.Equal(t, "hello notes", txt.Content)

	sheet, err := repo.Read(context.Background(), "sheet")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", sheet.Content)

	_, err = repo.Read(context.Background(), "img1")
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = repo.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = readLimited(strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "more than 5 bytes")
}

func TestPDFTextRejectsGarbage(t *testing.T) {
	_, err := PDFText([]byte("not a pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "token.json")
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}
	require.NoError(t, SaveToken(path, tok))

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", loaded.RefreshToken)
}

func TestClientOptionsMissingToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	content := `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	require.NoError(t, writeFile(creds, content))

	_, err := ClientOptions(context.Background(), creds, filepath.Join(dir, "token.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driveagent auth")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
