// Package drive reads documents from a remote document repository. The
// production implementation is Google Drive; MemoryRepository backs tests
// and offline demos.
package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Google Workspace and common MIME types.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleSlides = "application/vnd.google-apps.presentation"
	MimePDF          = "application/pdf"
	MimePlainText    = "text/plain"
	MimeHTML         = "text/html"
	MimeCSV          = "text/csv"
	MimeMarkdown     = "text/markdown"
	MimeJSON         = "application/json"
)

// ErrUnsupportedType is returned by Read for files whose content cannot be
// rendered as text.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrTooLarge is returned when raw content exceeds the download cap.
var ErrTooLarge = errors.New("file too large")

// ErrNotFound is returned when a file id does not exist.
var ErrNotFound = errors.New("file not found")

// FileSummary is the metadata returned by search and list. It never carries content.
type FileSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime,omitzero"`
	Size         int64     `json:"size,omitempty"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
}

// Document is the text of one file after conversion and truncation.
type Document struct {
	FileSummary
	Content string
	// TotalChars is the length before truncation.
	TotalChars int
	Truncated  bool
}

// Render formats the document for a model: a short metadata header followed
// by the (possibly truncated) text.
func (d *Document) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Name)
	fmt.Fprintf(&b, "Type: %s | ID: %s", d.MimeType, d.ID)
	if !d.ModifiedTime.IsZero() {
		fmt.Fprintf(&b, " | Modified: %s", d.ModifiedTime.Format("2006-01-02"))
	}
	b.WriteString("\n\n")
	b.WriteString(d.Content)
	if d.Truncated {
		fmt.Fprintf(&b, "\n\n[truncated, %d more characters]", d.TotalChars-len([]rune(d.Content)))
	}
	return b.String()
}

// Repository is the read-only document store the agent's tools query.
type Repository interface {
	// Search matches query against file names and full text.
	Search(ctx context.Context, query string, max int) ([]FileSummary, error)
	// List returns the children of folderID, or recently modified files when
	// folderID is empty.
	List(ctx context.Context, folderID string, max int) ([]FileSummary, error)
	// Read returns the text of a file, truncated to the repository's budget.
	Read(ctx context.Context, fileID string) (*Document, error)
}

// Truncate cuts text to at most budget characters (runes). It returns the
// kept text, the original length and whether anything was cut.
func Truncate(text string, budget int) (string, int, bool) {
	runes := []rune(text)
	if budget <= 0 || len(runes) <= budget {
		return text, len(runes), false
	}
	return string(runes[:budget]), len(runes), true
}
