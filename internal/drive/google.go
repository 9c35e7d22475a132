package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/htmlconv"
	"github.com/codefionn/driveagent/internal/logger"
)

const summaryFields = "id,name,mimeType,modifiedTime,size,webViewLink"

// GoogleRepository reads files through the Drive v3 API.
type GoogleRepository struct {
	svc    *gdrive.Service
	budget int
	log    *logger.Logger
}

// NewGoogleRepository creates a repository; opts usually carry a token
// source from LoadTokenSource.
func NewGoogleRepository(ctx context.Context, readBudget int, opts ...option.ClientOption) (*GoogleRepository, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if readBudget <= 0 {
		readBudget = consts.ReadCharBudget
	}
	return &GoogleRepository{svc: svc, budget: readBudget, log: logger.Global().WithPrefix("drive")}, nil
}

// SearchQuery builds the Drive query for a free-text search.
func SearchQuery(query string) string {
	escaped := escapeQueryValue(strings.TrimSpace(query))
	return fmt.Sprintf("(name contains '%s' or fullText contains '%s') and trashed = false", escaped, escaped)
}

// ListQuery builds the Drive query for a folder listing.
func ListQuery(folderID string) string {
	if folderID == "" {
		return "trashed = false"
	}
	return fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryValue(folderID))
}

func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

func (r *GoogleRepository) Search(ctx context.Context, query string, max int) ([]FileSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	// Drive rejects orderBy on fullText queries, so results keep relevance order.
	call := r.svc.Files.List().
		Q(SearchQuery(query)).
		PageSize(pageSize(max, consts.DefaultSearchResults)).
		Fields(googleapi.Field("files(" + summaryFields + ")")).
		Context(ctx)
	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("drive search: %w", err)
	}
	r.log.Debug("search %q returned %d files", query, len(list.Files))
	return summaries(list.Files), nil
}

func (r *GoogleRepository) List(ctx context.Context, folderID string, max int) ([]FileSummary, error) {
	call := r.svc.Files.List().
		Q(ListQuery(folderID)).
		PageSize(pageSize(max, consts.DefaultListResults)).
		OrderBy("modifiedTime desc").
		Fields(googleapi.Field("files(" + summaryFields + ")")).
		Context(ctx)
	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("drive list: %w", err)
	}
	return summaries(list.Files), nil
}

func (r *GoogleRepository) Read(ctx context.Context, fileID string) (*Document, error) {
	meta, err := r.svc.Files.Get(fileID).Fields(googleapi.Field(summaryFields)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return nil, fmt.Errorf("drive get %s: %w", fileID, err)
	}

	summary := toSummary(meta)
	text, err := r.text(ctx, summary)
	if err != nil {
		return nil, err
	}

	kept, total, cut := Truncate(text, r.budget)
	return &Document{FileSummary: summary, Content: kept, TotalChars: total, Truncated: cut}, nil
}

// text fetches and converts file content according to its MIME type.
func (r *GoogleRepository) text(ctx context.Context, f FileSummary) (string, error) {
	switch {
	case f.MimeType == MimeGoogleDoc:
		raw, err := r.export(ctx, f.ID, MimeHTML)
		if err != nil {
			return "", err
		}
		md, err := htmlconv.ToMarkdown(string(raw))
		if err != nil {
			r.log.Warn("markdown conversion failed for %s: %v", f.ID, err)
			return r.exportText(ctx, f.ID, MimePlainText)
		}
		return md, nil
	case f.MimeType == MimeGoogleSheet:
		return r.exportText(ctx, f.ID, MimeCSV)
	case f.MimeType == MimeGoogleSlides:
		return r.exportText(ctx, f.ID, MimePlainText)
	case f.MimeType == MimePDF:
		raw, err := r.download(ctx, f.ID)
		if err != nil {
			return "", err
		}
		return PDFText(raw)
	case f.MimeType == MimeHTML:
		raw, err := r.download(ctx, f.ID)
		if err != nil {
			return "", err
		}
		md, _ := htmlconv.ConvertIfHTML(string(raw))
		return md, nil
	case strings.HasPrefix(f.MimeType, "text/") || f.MimeType == MimeJSON:
		raw, err := r.download(ctx, f.ID)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, f.Name, f.MimeType)
	}
}

func (r *GoogleRepository) export(ctx context.Context, id, mime string) ([]byte, error) {
	resp, err := r.svc.Files.Export(id, mime).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive export %s as %s: %w", id, mime, err)
	}
	defer resp.Body.Close()
	raw, err := readLimited(resp.Body, consts.MaxDownloadBytes)
	if err != nil {
		return nil, fmt.Errorf("drive export %s: %w", id, err)
	}
	return raw, nil
}

func (r *GoogleRepository) exportText(ctx context.Context, id, mime string) (string, error) {
	raw, err := r.export(ctx, id, mime)
	return string(raw), err
}

func (r *GoogleRepository) download(ctx context.Context, id string) ([]byte, error) {
	resp, err := r.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", id, err)
	}
	defer resp.Body.Close()
	raw, err := readLimited(resp.Body, consts.MaxDownloadBytes)
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", id, err)
	}
	return raw, nil
}

// readLimited returns ErrTooLarge rather than a prefix when r holds more
// than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// PDFText extracts the plain text layer of a PDF.
func PDFText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedType, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func pageSize(max, fallback int) int64 {
	if max <= 0 {
		max = fallback
	}
	if max > 1000 {
		max = 1000
	}
	return int64(max)
}

func summaries(files []*gdrive.File) []FileSummary {
	out := make([]FileSummary, 0, len(files))
	for _, f := range files {
		if f != nil {
			out = append(out, toSummary(f))
		}
	}
	return out
}

func toSummary(f *gdrive.File) FileSummary {
	s := FileSummary{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		s.ModifiedTime = t
	}
	return s
}
