package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/drive"
)

// NewDriveRegistry registers the three Drive research tools over repo.
func NewDriveRegistry(repo drive.Repository) *Registry {
	return NewRegistry().MustRegister(
		&SearchDriveTool{repo: repo},
		&ListFilesTool{repo: repo},
		&ReadDocumentTool{repo: repo},
	)
}

// listing is what search and list return: metadata only, never content.
type listing struct {
	Query    string              `json:"query,omitempty"`
	FolderID string              `json:"folder_id,omitempty"`
	Count    int                 `json:"count"`
	Files    []drive.FileSummary `json:"files"`
}

func renderListing(l listing) (string, error) {
	if l.Files == nil {
		l.Files = []drive.FileSummary{}
	}
	l.Count = len(l.Files)
	raw, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SearchDriveTool finds files by name or content.
type SearchDriveTool struct {
	repo drive.Repository
}

func (t *SearchDriveTool) Spec() Spec {
	return Spec{
		Name: ToolNameSearchDrive,
		Description: "Search Google Drive for files whose name or text matches the query. " +
			"Returns file metadata (id, name, mimeType, modifiedTime), not content. " +
			"Use read_document with an id to get the text.",
		Schema: openapi3.NewObjectSchema().
			WithProperty("query", openapi3.NewStringSchema().WithMinLength(1)).
			WithProperty("max_results", openapi3.NewIntegerSchema().
				WithMin(1).WithMax(100).WithDefault(consts.DefaultSearchResults)).
			WithRequired([]string{"query"}),
	}
}

func (t *SearchDriveTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	query := strings.TrimSpace(StringArg(input, "query"))
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	files, err := t.repo.Search(ctx, query, IntArg(input, "max_results", consts.DefaultSearchResults))
	if err != nil {
		return "", err
	}
	return renderListing(listing{Query: query, Files: files})
}

// ListFilesTool browses a folder or the most recently modified files.
type ListFilesTool struct {
	repo drive.Repository
}

func (t *ListFilesTool) Spec() Spec {
	return Spec{
		Name: ToolNameListFiles,
		Description: "List files in a Drive folder, newest first. Omit folder_id to list " +
			"recently modified files across the drive. Returns metadata only.",
		Schema: openapi3.NewObjectSchema().
			WithProperty("folder_id", openapi3.NewStringSchema()).
			WithProperty("max_results", openapi3.NewIntegerSchema().
				WithMin(1).WithMax(100).WithDefault(consts.DefaultListResults)),
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	folder := strings.TrimSpace(StringArg(input, "folder_id"))
	files, err := t.repo.List(ctx, folder, IntArg(input, "max_results", consts.DefaultListResults))
	if err != nil {
		return "", err
	}
	return renderListing(listing{FolderID: folder, Files: files})
}

// ReadDocumentTool returns the text of one file.
type ReadDocumentTool struct {
	repo drive.Repository
}

func (t *ReadDocumentTool) Spec() Spec {
	return Spec{
		Name: ToolNameReadDocument,
		Description: fmt.Sprintf("Read the text content of a Drive file by id. Google Docs, Sheets, "+
			"Slides, PDFs and plain text are supported. Long documents are truncated to about %d characters.",
			consts.ReadCharBudget),
		Schema: openapi3.NewObjectSchema().
			WithProperty("file_id", openapi3.NewStringSchema().WithMinLength(1)).
			WithRequired([]string{"file_id"}),
	}
}

func (t *ReadDocumentTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	id := strings.TrimSpace(StringArg(input, "file_id"))
	if id == "" {
		return "", fmt.Errorf("file_id must not be empty")
	}
	doc, err := t.repo.Read(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Render(), nil
}
